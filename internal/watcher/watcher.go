// Package watcher reports changes to individual files by polling their
// size and modification time.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"
)

const DefaultInterval = 500 * time.Millisecond

type Watcher interface {
	Watch(ctx context.Context, path string) error
	Stop() error
	OnChange(callback func(path string, event EventType))
}

type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
)

func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

type fileState struct {
	exists  bool
	size    int64
	modTime time.Time
}

func statFile(path string) (fileState, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fileState{}, nil
	}
	if err != nil {
		return fileState{}, err
	}
	return fileState{exists: true, size: info.Size(), modTime: info.ModTime()}, nil
}

// PollWatcher checks watched files on a fixed interval. Editors that save
// by rename show up as a modify, not a delete and create.
type PollWatcher struct {
	logger   *slog.Logger
	interval time.Duration

	mu       sync.Mutex
	callback func(path string, event EventType)
	cancels  []context.CancelFunc
	wg       sync.WaitGroup
}

func NewPollWatcher(interval time.Duration, logger *slog.Logger) *PollWatcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &PollWatcher{logger: logger, interval: interval}
}

// Watch starts polling path until ctx ends or Stop is called. The file
// does not need to exist yet.
func (w *PollWatcher) Watch(ctx context.Context, path string) error {
	last, err := statFile(path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancels = append(w.cancels, cancel)
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			cur, err := statFile(path)
			if err != nil {
				w.logger.Warn("watch stat failed", "path", path, "error", err)
				continue
			}
			if ev, changed := diff(last, cur); changed {
				last = cur
				w.emit(path, ev)
			}
		}
	}()
	return nil
}

func diff(prev, cur fileState) (EventType, bool) {
	switch {
	case !prev.exists && cur.exists:
		return EventCreate, true
	case prev.exists && !cur.exists:
		return EventDelete, true
	case cur.exists && (cur.size != prev.size || !cur.modTime.Equal(prev.modTime)):
		return EventModify, true
	}
	return 0, false
}

func (w *PollWatcher) emit(path string, ev EventType) {
	w.mu.Lock()
	cb := w.callback
	w.mu.Unlock()
	w.logger.Debug("file changed", "path", path, "event", ev.String())
	if cb != nil {
		cb(path, ev)
	}
}

// Stop ends every watch and waits for the pollers to exit.
func (w *PollWatcher) Stop() error {
	w.mu.Lock()
	cancels := w.cancels
	w.cancels = nil
	w.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	w.wg.Wait()
	return nil
}

func (w *PollWatcher) OnChange(callback func(path string, event EventType)) {
	w.mu.Lock()
	w.callback = callback
	w.mu.Unlock()
}
