package render

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/voxreel/voxreel-agent/internal/graph"
	"github.com/voxreel/voxreel-agent/internal/logging"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
)

// Request is everything needed for one encode.
type Request struct {
	Description *graph.Description
	Settings    EncodeSettings
	OutputPath  string
}

// Engine encodes a serialized graph into an output file.
type Engine interface {
	// Run blocks until the encoder exits. A non-zero exit is reported in
	// the result, not as an error; errors mean the encoder could not run
	// or ctx was cancelled (in which case the process is killed).
	Run(ctx context.Context, req Request, onProgress func(Progress)) (RunResult, error)
}

// FFmpeg is the subprocess Engine.
type FFmpeg struct {
	binary string
	logger *slog.Logger
}

// NewFFmpeg returns an engine using binary, or "ffmpeg" on PATH.
func NewFFmpeg(binary string, logger *slog.Logger) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{binary: binary, logger: logger}
}

// BuildArgs assembles the full ffmpeg command line for req.
func BuildArgs(req Request) []string {
	d := req.Description
	s := req.Settings

	args := []string{"-hide_banner", "-nostdin", "-y", "-nostats", "-progress", "pipe:1"}
	args = append(args, d.InputArgs()...)
	args = append(args,
		"-filter_complex", d.FilterComplex,
		"-map", d.VideoLabel,
		"-map", d.AudioLabel,
		"-c:v", s.VideoCodec,
		"-preset", s.Preset,
		"-crf", strconv.Itoa(s.CRF),
		"-pix_fmt", s.PixelFormat,
		"-r", strconv.FormatFloat(d.Format.FrameRate, 'f', -1, 64),
		"-c:a", s.AudioCodec,
		"-b:a", s.AudioBitrate,
		"-ar", "48000",
		"-t", strconv.FormatFloat(float64(graph.Milliseconds(d.Duration))/1000, 'f', -1, 64),
		"-movflags", "+faststart",
		req.OutputPath,
	)
	return args
}

func (f *FFmpeg) Run(ctx context.Context, req Request, onProgress func(Progress)) (RunResult, error) {
	start := time.Now()

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0755); err != nil {
		return RunResult{ExitCode: -1, StderrTail: err.Error()}, fmt.Errorf("cannot create output dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, f.binary, BuildArgs(req)...)

	// Capture stderr with bounded buffer
	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return RunResult{ExitCode: -1}, fmt.Errorf("stdout pipe: %w", err)
	}

	if f.logger != nil {
		f.logger.Info("starting encoder",
			"inputs", len(req.Description.Inputs),
			"duration", req.Description.Duration,
			"crf", req.Settings.CRF,
			"output", logging.SanitizePath(req.OutputPath),
		)
	}

	if err := cmd.Start(); err != nil {
		return RunResult{ExitCode: -1, StderrTail: err.Error()}, fmt.Errorf("start ffmpeg: %w", err)
	}

	readProgress(stdout, onProgress)
	err = cmd.Wait()
	elapsed := time.Since(start)

	result := RunResult{
		OutputPath: req.OutputPath,
		StderrTail: stderrBuf.String(),
		Duration:   elapsed,
	}

	if ctx.Err() != nil {
		result.ExitCode = -1
		return result, ctx.Err()
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
			return result, fmt.Errorf("ffmpeg: %w", err)
		}
	}

	if f.logger != nil {
		if result.ExitCode != 0 {
			f.logger.Warn("encoder failed",
				"exit_code", result.ExitCode,
				"duration_ms", elapsed.Milliseconds(),
				"stderr_tail", truncate(result.StderrTail, 512),
			)
		} else {
			f.logger.Info("encoder finished", "duration_ms", elapsed.Milliseconds())
		}
	}
	return result, nil
}

// readProgress parses ffmpeg's -progress key=value stream. Each block ends
// with a progress=continue or progress=end line.
func readProgress(r io.Reader, onProgress func(Progress)) {
	sc := bufio.NewScanner(r)
	var cur Progress
	for sc.Scan() {
		key, val, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_us", "out_time_ms":
			// both are microseconds
			if us, err := strconv.ParseInt(val, 10, 64); err == nil && us >= 0 {
				cur.OutTime = float64(us) / 1e6
			}
		case "speed":
			if s, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(val), "x"), 64); err == nil {
				cur.Speed = s
			}
		case "progress":
			cur.Done = val == "end"
			if onProgress != nil {
				onProgress(cur)
			}
		}
	}
	// drain so ffmpeg never blocks on a full pipe
	_, _ = io.Copy(io.Discard, r)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}
