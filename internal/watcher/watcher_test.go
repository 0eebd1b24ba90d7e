package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/voxreel/voxreel-agent/internal/logging"
)

func waitEvent(t *testing.T, ch <-chan EventType) EventType {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
		return 0
	}
}

func TestPollWatcher_Lifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.yaml")

	w := NewPollWatcher(10*time.Millisecond, logging.Discard())
	events := make(chan EventType, 8)
	w.OnChange(func(p string, ev EventType) {
		if p != path {
			t.Errorf("path = %q, want %q", p, path)
		}
		events <- ev
	})
	if err := w.Watch(context.Background(), path); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("name: a\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev := waitEvent(t, events); ev != EventCreate {
		t.Errorf("event = %s, want create", ev)
	}

	if err := os.WriteFile(path, []byte("name: longer\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev := waitEvent(t, events); ev != EventModify {
		t.Errorf("event = %s, want modify", ev)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if ev := waitEvent(t, events); ev != EventDelete {
		t.Errorf("event = %s, want delete", ev)
	}
}

func TestPollWatcher_StopEndsPolling(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.yaml")
	w := NewPollWatcher(10*time.Millisecond, logging.Discard())
	events := make(chan EventType, 8)
	w.OnChange(func(string, EventType) { events <- EventModify })

	if err := w.Watch(context.Background(), path); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case <-events:
		t.Error("change reported after Stop")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDiff(t *testing.T) {
	now := time.Now()
	a := fileState{exists: true, size: 3, modTime: now}
	cases := []struct {
		name    string
		prev    fileState
		cur     fileState
		want    EventType
		changed bool
	}{
		{"unchanged", a, a, 0, false},
		{"create", fileState{}, a, EventCreate, true},
		{"delete", a, fileState{}, EventDelete, true},
		{"size", a, fileState{exists: true, size: 4, modTime: now}, EventModify, true},
		{"mtime", a, fileState{exists: true, size: 3, modTime: now.Add(time.Second)}, EventModify, true},
		{"still missing", fileState{}, fileState{}, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, changed := diff(tc.prev, tc.cur)
			if changed != tc.changed || got != tc.want {
				t.Errorf("diff() = %s, %v; want %s, %v", got, changed, tc.want, tc.changed)
			}
		})
	}
}
