package render

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voxreel/voxreel-agent/internal/config"
	"github.com/voxreel/voxreel-agent/internal/graph"
	"github.com/voxreel/voxreel-agent/internal/timeline"
)

func TestRunResult_IsSuccess(t *testing.T) {
	tests := []struct {
		exitCode int
		want     bool
	}{
		{0, true},
		{1, false},
		{-1, false},
		{187, false},
	}
	for _, tt := range tests {
		r := RunResult{ExitCode: tt.exitCode}
		if got := r.IsSuccess(); got != tt.want {
			t.Errorf("RunResult{ExitCode: %d}.IsSuccess() = %v, want %v", tt.exitCode, got, tt.want)
		}
	}
}

func TestSettingsFor(t *testing.T) {
	for _, p := range config.Presets {
		s, err := SettingsFor(p)
		if err != nil {
			t.Errorf("SettingsFor(%s) error = %v", p, err)
			continue
		}
		if s.VideoCodec == "" || s.CRF == 0 || s.Preset == "" {
			t.Errorf("SettingsFor(%s) = %+v, incomplete", p, s)
		}
	}

	draft, _ := SettingsFor(config.PresetDraft)
	high, _ := SettingsFor(config.PresetHigh)
	if draft.CRF <= high.CRF {
		t.Errorf("draft CRF %d should be higher than high CRF %d", draft.CRF, high.CRF)
	}

	if _, err := SettingsFor("ultra"); err == nil {
		t.Error("SettingsFor(ultra) should fail")
	}
}

func TestBuildArgs(t *testing.T) {
	settings, _ := SettingsFor(config.PresetStandard)
	req := Request{
		Description: &graph.Description{
			Inputs:        []graph.Input{{Path: "/media/a.mp4", Args: []string{"-t", "10"}}},
			FilterComplex: "[0:v:0]setpts=PTS-STARTPTS[n0]",
			VideoLabel:    "[n0]",
			AudioLabel:    "[n1]",
			Format:        timeline.Format{Width: 1920, Height: 1080, FrameRate: 25},
			Duration:      10.0004,
		},
		Settings:   settings,
		OutputPath: "/out/final.mp4",
	}

	args := strings.Join(BuildArgs(req), " ")
	for _, want := range []string{
		"-progress pipe:1",
		"-t 10 -i /media/a.mp4",
		"-map [n0] -map [n1]",
		"-c:v libx264 -preset medium -crf 20",
		"-r 25",
		"-t 10 -movflags",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("args missing %q:\n%s", want, args)
		}
	}
	if !strings.HasSuffix(args, "/out/final.mp4") {
		t.Errorf("output path must be last: %s", args)
	}
}

func TestReadProgress(t *testing.T) {
	stream := strings.Join([]string{
		"frame=10",
		"out_time_us=2500000",
		"speed=2.5x",
		"progress=continue",
		"out_time_ms=5000000",
		"speed= 1.25x",
		"progress=continue",
		"out_time_us=N/A",
		"progress=end",
	}, "\n")

	var got []Progress
	readProgress(strings.NewReader(stream), func(p Progress) { got = append(got, p) })

	if len(got) != 3 {
		t.Fatalf("samples = %d, want 3", len(got))
	}
	if got[0].OutTime != 2.5 || got[0].Speed != 2.5 {
		t.Errorf("first sample = %+v", got[0])
	}
	if got[1].OutTime != 5 || got[1].Speed != 1.25 {
		t.Errorf("second sample = %+v", got[1])
	}
	if !got[2].Done || got[2].OutTime != 5 {
		t.Errorf("final sample = %+v, want done keeping last time", got[2])
	}
}

func TestProgress_FractionAndETA(t *testing.T) {
	p := Progress{OutTime: 5, Speed: 2}
	if got := p.Fraction(20); got != 0.25 {
		t.Errorf("Fraction() = %v, want 0.25", got)
	}
	if got := p.ETA(20); math.Abs(got-7.5) > 1e-9 {
		t.Errorf("ETA() = %v, want 7.5", got)
	}
	if got := (Progress{OutTime: 30}).Fraction(20); got != 1 {
		t.Errorf("Fraction() over total = %v, want 1", got)
	}
	if got := (Progress{}).ETA(20); got != 0 {
		t.Errorf("ETA() with unknown speed = %v, want 0", got)
	}
}

func TestLimitedWriter_KeepsOnlyTail(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 10}

	lw.Write([]byte("hello"))
	if buf.String() != "hello" {
		t.Errorf("after short write got %q, want %q", buf.String(), "hello")
	}

	lw.Write([]byte(" world of test data"))
	if got := buf.String(); got != " test data" {
		t.Errorf("after overflow got %q, want %q", got, " test data")
	}
}

func TestToolchain_Probe(t *testing.T) {
	fake := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		switch {
		case name == "ffprobe":
			return nil, errors.New("executable file not found in $PATH")
		case args[len(args)-1] == "-version":
			return []byte("ffmpeg version 6.1.1 Copyright (c) 2000-2023\nbuilt with gcc"), nil
		case args[len(args)-1] == "-encoders":
			return []byte(" V....D libx264              libx264 H.264\n A....D aac                  AAC (Advanced Audio Coding)\n"), nil
		case args[len(args)-1] == "-filters":
			return []byte(" ... subtitles         V->V       Render text subtitles\n"), nil
		}
		return nil, nil
	}

	caps, err := (&Toolchain{FFmpeg: "ffmpeg", FFprobe: "ffprobe", Command: fake}).Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if !caps.FFmpeg.Available || caps.FFmpeg.Version != "6.1.1" {
		t.Errorf("ffmpeg = %+v", caps.FFmpeg)
	}
	if caps.FFprobe.Available {
		t.Error("ffprobe should be unavailable")
	}
	if !caps.HasX264 || !caps.HasAAC || !caps.HasSubtitles {
		t.Errorf("caps = %+v", caps)
	}
	if caps.CanExport() {
		t.Error("CanExport() = true without ffprobe")
	}
	if missing := caps.Missing(); len(missing) != 1 || missing[0] != "ffprobe" {
		t.Errorf("Missing() = %v, want [ffprobe]", missing)
	}
}

type countingProber struct {
	calls atomic.Int32
	fail  bool
}

func (p *countingProber) Probe(ctx context.Context) (*Capabilities, error) {
	p.calls.Add(1)
	if p.fail {
		return nil, errors.New("boom")
	}
	return &Capabilities{ProbedAt: time.Now()}, nil
}

func TestCachedDoctor(t *testing.T) {
	prober := &countingProber{}
	d := NewCachedDoctor(prober, nil)

	if d.Peek() != nil {
		t.Error("Peek() before first probe should be nil")
	}
	for i := 0; i < 3; i++ {
		if _, err := d.Get(context.Background()); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
	}
	if n := prober.calls.Load(); n != 1 {
		t.Errorf("probe calls = %d, want 1", n)
	}

	prober.fail = true
	caps, err := d.Refresh(context.Background())
	if err != nil || caps == nil {
		t.Errorf("Refresh() should fall back to stale cache, got %v, %v", caps, err)
	}

	d.Invalidate()
	if _, err := d.Get(context.Background()); err == nil {
		t.Error("Get() after Invalidate with failing prober should error")
	}
}
