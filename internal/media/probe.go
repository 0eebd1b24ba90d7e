package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Prober produces a Descriptor for a file on disk.
type Prober interface {
	Probe(ctx context.Context, path string) (*Descriptor, error)
}

// FFprobe runs the ffprobe binary once per file with JSON output.
type FFprobe struct {
	Binary string
}

// NewFFprobe returns a prober using the given binary, or "ffprobe" on PATH.
func NewFFprobe(binary string) *FFprobe {
	if binary == "" {
		binary = "ffprobe"
	}
	return &FFprobe{Binary: binary}
}

// Probe stats path and runs a single ffprobe JSON call against it.
func (p *FFprobe) Probe(ctx context.Context, path string) (*Descriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%q is a directory", path)
	}

	cmd := exec.CommandContext(ctx, p.Binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %q: %w", path, err)
	}

	d, err := ParseJSON(out)
	if err != nil {
		return nil, err
	}
	d.Path = path
	d.ModTime = info.ModTime().UTC()
	d.Size = info.Size()
	return d, nil
}

// ParseJSON converts raw ffprobe JSON output into a Descriptor without
// file identity (path, mtime, size). Exported for testing without a real
// ffprobe binary.
func ParseJSON(data []byte) (*Descriptor, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}

	d := &Descriptor{Duration: parseFloat(raw.Format.Duration)}
	for i := range raw.Streams {
		s := &raw.Streams[i]
		switch s.CodecType {
		case "video":
			if s.Disposition["attached_pic"] == 1 || d.VideoCodec != "" {
				continue
			}
			d.VideoCodec = s.CodecName
			d.Width = s.Width
			d.Height = s.Height
			d.FrameRate = ParseFrameRate(s.AvgFrameRate)
			if d.FrameRate == 0 {
				d.FrameRate = ParseFrameRate(s.RFrameRate)
			}
			if d.Duration == 0 {
				d.Duration = parseFloat(s.Duration)
			}
		case "audio":
			if d.HasAudio {
				continue
			}
			d.HasAudio = true
			d.AudioCodec = s.CodecName
			if d.Duration == 0 {
				d.Duration = parseFloat(s.Duration)
			}
		}
	}

	if d.Duration <= 0 {
		return nil, fmt.Errorf("ffprobe reported no duration")
	}
	return d, nil
}

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
}

type ffprobeStream struct {
	Index        int            `json:"index"`
	CodecName    string         `json:"codec_name"`
	CodecType    string         `json:"codec_type"`
	Width        int            `json:"width"`
	Height       int            `json:"height"`
	AvgFrameRate string         `json:"avg_frame_rate"`
	RFrameRate   string         `json:"r_frame_rate"`
	Duration     string         `json:"duration"`
	Disposition  map[string]int `json:"disposition"`
}

// ffprobe returns numbers as strings
func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}
