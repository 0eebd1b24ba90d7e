package render

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const defaultCacheTTL = 5 * time.Minute

// ToolInfo describes one external binary.
type ToolInfo struct {
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Capabilities summarizes the installed media toolchain.
type Capabilities struct {
	FFmpeg  ToolInfo `json:"ffmpeg"`
	FFprobe ToolInfo `json:"ffprobe"`
	// Encoders and filters the export graph depends on.
	HasX264      bool      `json:"has_libx264"`
	HasAAC       bool      `json:"has_aac"`
	HasSubtitles bool      `json:"has_subtitles_filter"`
	ProbedAt     time.Time `json:"probed_at"`
}

// CanExport reports whether exports can run at all. Captions need
// HasSubtitles in addition.
func (c *Capabilities) CanExport() bool {
	return c.FFmpeg.Available && c.FFprobe.Available && c.HasX264 && c.HasAAC
}

// Missing lists what prevents exports, for display.
func (c *Capabilities) Missing() []string {
	var out []string
	if !c.FFmpeg.Available {
		out = append(out, "ffmpeg")
	}
	if !c.FFprobe.Available {
		out = append(out, "ffprobe")
	}
	if c.FFmpeg.Available && !c.HasX264 {
		out = append(out, "libx264 encoder")
	}
	if c.FFmpeg.Available && !c.HasAAC {
		out = append(out, "aac encoder")
	}
	return out
}

// CommandFunc runs a binary and returns its combined output.
type CommandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Toolchain inspects the ffmpeg and ffprobe binaries.
type Toolchain struct {
	FFmpeg  string
	FFprobe string
	Timeout time.Duration
	Command CommandFunc
}

// Probe gathers versions and encoder/filter support.
func (t *Toolchain) Probe(ctx context.Context) (*Capabilities, error) {
	run := t.Command
	if run == nil {
		run = runCommand
	}
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	caps := &Capabilities{ProbedAt: time.Now()}
	caps.FFmpeg = toolInfo(ctx, run, t.FFmpeg)
	caps.FFprobe = toolInfo(ctx, run, t.FFprobe)

	if caps.FFmpeg.Available {
		if out, err := run(ctx, t.FFmpeg, "-hide_banner", "-encoders"); err == nil {
			caps.HasX264 = hasWord(string(out), "libx264")
			caps.HasAAC = hasWord(string(out), "aac")
		}
		if out, err := run(ctx, t.FFmpeg, "-hide_banner", "-filters"); err == nil {
			caps.HasSubtitles = hasWord(string(out), "subtitles")
		}
	}

	if ctx.Err() != nil {
		return nil, fmt.Errorf("toolchain probe: %w", ctx.Err())
	}
	return caps, nil
}

func toolInfo(ctx context.Context, run CommandFunc, binary string) ToolInfo {
	info := ToolInfo{Path: binary}
	out, err := run(ctx, binary, "-version")
	if err != nil {
		info.Error = err.Error()
		return info
	}
	info.Available = true
	info.Version = parseVersion(string(out))
	return info
}

// parseVersion extracts "6.1.1" from "ffmpeg version 6.1.1 Copyright ...".
func parseVersion(out string) string {
	line, _, _ := strings.Cut(out, "\n")
	fields := strings.Fields(line)
	for i, f := range fields {
		if f == "version" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}

func hasWord(out, word string) bool {
	for _, line := range strings.Split(out, "\n") {
		for _, f := range strings.Fields(line) {
			if f == word {
				return true
			}
		}
	}
	return false
}

// Prober is anything that can produce Capabilities.
type Prober interface {
	Probe(ctx context.Context) (*Capabilities, error)
}

// CachedDoctor caches toolchain capabilities with a TTL so status requests
// and export starts do not spawn ffmpeg every time.
type CachedDoctor struct {
	prober Prober
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

// NewCachedDoctor creates a caching wrapper around toolchain probes.
func NewCachedDoctor(prober Prober, logger *slog.Logger) *CachedDoctor {
	return &CachedDoctor{
		prober: prober,
		ttl:    defaultCacheTTL,
		logger: logger,
	}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps, nil
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

// Peek returns the cached capabilities without probing.
func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh forces a new probe regardless of cache freshness.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps, err := d.prober.Probe(ctx)
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("toolchain probe failed", "error", err)
		}
		// Return stale cache if available
		if d.cached != nil {
			return d.cached, nil
		}
		return nil, err
	}

	if d.logger != nil {
		d.logger.Info("toolchain probe complete",
			"ffmpeg", caps.FFmpeg.Version,
			"ffprobe", caps.FFprobe.Version,
			"can_export", caps.CanExport(),
		)
	}
	d.cached = caps
	return caps, nil
}

// Invalidate drops the cached result.
func (d *CachedDoctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}
