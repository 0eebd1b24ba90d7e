package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/voxreel/voxreel-agent/internal/export"
	"github.com/voxreel/voxreel-agent/internal/render"
)

const projectDoc = `
id: demo
name: Demo Reel
clips:
  - id: c1
    order: 0
    path: media/a.mp4
    source_start: 0
    source_end: 10
  - id: c2
    order: 1
    path: media/b.mp4
    source_start: 0
    source_end: 8
segments:
  - id: s1
    clip_id: c1
    start: 1
    end: 3
    text: Welcome to the reel.
`

const overlappingDoc = `
name: Overlap
clips:
  - id: c1
    order: 0
    path: /media/a.mp4
    source_start: 0
    source_end: 10
    timeline_start: 0
  - id: c2
    order: 1
    path: /media/b.mp4
    source_start: 0
    source_end: 10
    timeline_start: 5
`

func writeProject(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "project.yaml")
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("write project: %v", err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCommand("test")
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, _, err := runCommand(t, "version")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if strings.TrimSpace(out) != "voxreel-agent version test" {
		t.Errorf("output = %q", out)
	}
}

func TestValidateCommand_Ready(t *testing.T) {
	out, _, err := runCommand(t, "validate", "--no-probe", writeProject(t, projectDoc))
	if err != nil {
		t.Fatalf("Execute() error = %v\n%s", err, out)
	}
	for _, want := range []string{"Demo Reel", "0:18.0 total", "c2", "s1", "media_unprobed", "ready to export"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestValidateCommand_Blocked(t *testing.T) {
	out, stderr, err := runCommand(t, "validate", "--no-probe", writeProject(t, overlappingDoc))
	if !errors.Is(err, errReported) {
		t.Fatalf("Execute() error = %v, want errReported", err)
	}
	if !strings.Contains(out, "clip_overlap") || !strings.Contains(out, "export blocked") {
		t.Errorf("output = %s", out)
	}
	if strings.Contains(stderr, "command failed") {
		t.Errorf("error should not be printed twice: %s", stderr)
	}
}

func TestValidateCommand_MissingFile(t *testing.T) {
	_, _, err := runCommand(t, "validate", filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || errors.Is(err, errReported) {
		t.Fatalf("Execute() error = %v, want load error", err)
	}
}

func TestEDLCommand(t *testing.T) {
	path := writeProject(t, projectDoc)
	out := filepath.Join(filepath.Dir(path), "reel.edl")

	if _, _, err := runCommand(t, "edl", "--fps", "25", "-o", out, path); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	edl := string(data)
	for _, want := range []string{"TITLE: Demo Reel", "FCM: NON-DROP FRAME", "00:00:10:00", filepath.Join(filepath.Dir(path), "media", "b.mp4")} {
		if !strings.Contains(edl, want) {
			t.Errorf("edl missing %q:\n%s", want, edl)
		}
	}
}

func TestEDLCommand_Stdout(t *testing.T) {
	out, _, err := runCommand(t, "edl", writeProject(t, projectDoc))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.HasPrefix(out, "TITLE: Demo Reel\n") {
		t.Errorf("output = %q", out)
	}
}

func TestPrintCapabilities(t *testing.T) {
	ready := &render.Capabilities{
		FFmpeg:       render.ToolInfo{Available: true, Path: "/usr/bin/ffmpeg", Version: "6.1"},
		FFprobe:      render.ToolInfo{Available: true, Path: "/usr/bin/ffprobe", Version: "6.1"},
		HasX264:      true,
		HasAAC:       true,
		HasSubtitles: false,
	}
	var buf bytes.Buffer
	if !printCapabilities(&buf, ready) {
		t.Fatalf("printCapabilities() = false\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "ffmpeg: 6.1") || !strings.Contains(buf.String(), "captions disabled") {
		t.Errorf("output = %s", buf.String())
	}

	missing := &render.Capabilities{
		FFmpeg:  render.ToolInfo{Error: "not found"},
		FFprobe: render.ToolInfo{Available: true, Version: "6.1"},
	}
	buf.Reset()
	if printCapabilities(&buf, missing) {
		t.Fatal("printCapabilities() = true without ffmpeg")
	}
	if !strings.Contains(buf.String(), "ffmpeg: NOT FOUND") || !strings.Contains(buf.String(), "missing: ffmpeg") {
		t.Errorf("output = %s", buf.String())
	}
}

type memConfig map[string]string

func (m memConfig) GetConfig(ctx context.Context, key string) (string, error) {
	return m[key], nil
}

func (m memConfig) SetConfig(ctx context.Context, key, value string) error {
	m[key] = value
	return nil
}

func TestEnsureAuthToken(t *testing.T) {
	store := memConfig{}
	first, err := ensureAuthToken(context.Background(), store)
	if err != nil {
		t.Fatalf("ensureAuthToken() error = %v", err)
	}
	if len(first) != 64 {
		t.Errorf("token length = %d, want 64", len(first))
	}
	second, err := ensureAuthToken(context.Background(), store)
	if err != nil {
		t.Fatalf("ensureAuthToken() error = %v", err)
	}
	if second != first {
		t.Error("token changed on second call")
	}
}

func TestRenderBar(t *testing.T) {
	cases := []struct {
		percent float64
		filled  int
	}{
		{0, 0},
		{50, 10},
		{100, 20},
		{140, 20},
		{-5, 0},
	}
	for _, tc := range cases {
		bar := renderBar(tc.percent, 20)
		if got := strings.Count(bar, "█"); got != tc.filled {
			t.Errorf("renderBar(%v) filled = %d, want %d", tc.percent, got, tc.filled)
		}
		if got := strings.Count(bar, "█") + strings.Count(bar, "░"); got != 20 {
			t.Errorf("renderBar(%v) width = %d, want 20", tc.percent, got)
		}
	}
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestProgressModel_Events(t *testing.T) {
	events := make(chan export.Event, 8)
	var m tea.Model = newProgressModel("Exporting Demo", events, nil)

	steps := []export.Event{
		{Stage: export.StagePreprocessing, Percent: 12, Message: "synthesizing s1", Level: export.LevelInfo},
		{Stage: export.StagePreprocessing, Percent: 10, Message: "segment s2 skipped", Level: export.LevelWarning},
		{Stage: export.StageEncoding, Percent: 60, ETASeconds: 14, Message: "encoding", Level: export.LevelInfo},
	}
	for _, e := range steps {
		var cmd tea.Cmd
		m, cmd = m.Update(eventMsg(e))
		if cmd == nil {
			t.Fatalf("Update(%s) returned no command", e.Stage)
		}
	}

	pm := m.(progressModel)
	if pm.percent != 60 || pm.stage != export.StageEncoding {
		t.Errorf("model = %v%% at %s, want 60%% at encoding", pm.percent, pm.stage)
	}
	if len(pm.warnings) != 1 || pm.message != "encoding" {
		t.Errorf("warnings = %v, message = %q", pm.warnings, pm.message)
	}
	view := pm.View()
	for _, want := range []string{"Exporting Demo", "60.0%", "segment s2 skipped", "eta 0:14.0", "ctrl+c to cancel"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q:\n%s", want, view)
		}
	}

	m, cmd := m.Update(eventMsg{Stage: export.StageCompleted, Percent: 100, Message: "export completed", Level: export.LevelInfo})
	if !isQuit(cmd) {
		t.Error("terminal event should quit")
	}
	pm = m.(progressModel)
	if pm.final == nil || pm.final.Stage != export.StageCompleted {
		t.Errorf("final = %+v", pm.final)
	}
	if strings.Contains(pm.View(), "ctrl+c") {
		t.Error("finished view should not offer cancel")
	}
}

func TestProgressModel_CancelOnce(t *testing.T) {
	calls := 0
	m := newProgressModel("x", make(chan export.Event), func() error {
		calls++
		return nil
	})

	var model tea.Model = m
	for range 3 {
		model, _ = model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	}
	if calls != 1 {
		t.Errorf("cancel called %d times, want 1", calls)
	}
	if !strings.Contains(model.View(), "cancelling") {
		t.Errorf("View() = %s", model.View())
	}
}

func TestProgressModel_StreamClosed(t *testing.T) {
	events := make(chan export.Event)
	close(events)
	m := newProgressModel("x", events, nil)

	msg := m.Init()()
	if _, ok := msg.(streamClosedMsg); !ok {
		t.Fatalf("Init() msg = %T, want streamClosedMsg", msg)
	}
	if _, cmd := m.Update(msg); !isQuit(cmd) {
		t.Error("closed stream should quit")
	}
}

func TestStreamPlain(t *testing.T) {
	events := make(chan export.Event, 4)
	events <- export.Event{Stage: export.StageValidating, Percent: 0, Message: "validating timeline", Level: export.LevelInfo}
	events <- export.Event{Stage: export.StagePreprocessing, Percent: 8, Message: "segment s2 skipped", Level: export.LevelWarning}
	events <- export.Event{Stage: export.StageFailed, Percent: 40, Message: "encoder exited with code 1", Level: export.LevelError}
	close(events)

	var buf bytes.Buffer
	final := streamPlain(&buf, events)
	if final == nil || final.Stage != export.StageFailed {
		t.Fatalf("final = %+v, want failed", final)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[1], "warning: segment s2 skipped") || !strings.Contains(lines[2], "error: encoder exited") {
		t.Errorf("output:\n%s", buf.String())
	}
}

func TestClock(t *testing.T) {
	cases := map[float64]string{
		0:     "0:00.0",
		9.5:   "0:09.5",
		75.3:  "1:15.3",
		-3:    "0:00.0",
	}
	for in, want := range cases {
		if got := clock(in); got != want {
			t.Errorf("clock(%v) = %q, want %q", in, got, want)
		}
	}
}
