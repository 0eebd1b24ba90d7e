// Package render runs the ffmpeg encoder for a serialized graph and
// reports its progress.
package render

import (
	"fmt"
	"time"

	"github.com/voxreel/voxreel-agent/internal/config"
)

// RunResult is the outcome of one encoder invocation.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	OutputPath string        `json:"output_path"`
	StderrTail string        `json:"stderr_tail,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// IsSuccess returns true if the encoder exited cleanly.
func (r RunResult) IsSuccess() bool {
	return r.ExitCode == 0
}

// Progress is one sample of encoder progress.
type Progress struct {
	// OutTime is how much of the output has been written, in seconds.
	OutTime float64
	// Speed is the encode speed relative to realtime; 0 when unknown.
	Speed float64
	// Done is set on the final sample.
	Done bool
}

// Fraction returns OutTime/total clamped to [0,1].
func (p Progress) Fraction(total float64) float64 {
	if total <= 0 {
		return 0
	}
	return min(1, max(0, p.OutTime/total))
}

// ETA estimates seconds remaining from the current speed.
func (p Progress) ETA(total float64) float64 {
	if p.Speed <= 0 || total <= 0 {
		return 0
	}
	return max(0, (total-p.OutTime)/p.Speed)
}

// EncodeSettings are the codec parameters for one export.
type EncodeSettings struct {
	VideoCodec   string `json:"video_codec"`
	CRF          int    `json:"crf"`
	Preset       string `json:"preset"`
	PixelFormat  string `json:"pixel_format"`
	AudioCodec   string `json:"audio_codec"`
	AudioBitrate string `json:"audio_bitrate"`
}

var presetSettings = map[config.Preset]EncodeSettings{
	config.PresetDraft: {
		VideoCodec: "libx264", CRF: 28, Preset: "veryfast", PixelFormat: "yuv420p",
		AudioCodec: "aac", AudioBitrate: "128k",
	},
	config.PresetStandard: {
		VideoCodec: "libx264", CRF: 20, Preset: "medium", PixelFormat: "yuv420p",
		AudioCodec: "aac", AudioBitrate: "192k",
	},
	config.PresetHigh: {
		VideoCodec: "libx264", CRF: 16, Preset: "slow", PixelFormat: "yuv420p",
		AudioCodec: "aac", AudioBitrate: "320k",
	},
}

// SettingsFor maps a preset to its encode settings. It is resolved once
// per job.
func SettingsFor(p config.Preset) (EncodeSettings, error) {
	s, ok := presetSettings[p]
	if !ok {
		return EncodeSettings{}, fmt.Errorf("unknown quality preset %q", p)
	}
	return s, nil
}
