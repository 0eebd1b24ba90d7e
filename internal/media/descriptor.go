// Package media probes source files and caches their technical metadata.
package media

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Descriptor is the probed metadata of a single media file. It is immutable
// once produced; a changed file (new mtime) gets a new descriptor.
type Descriptor struct {
	Path       string    `json:"path"`
	ModTime    time.Time `json:"mod_time"`
	Size       int64     `json:"size"`
	Duration   float64   `json:"duration"`
	Width      int       `json:"width,omitempty"`
	Height     int       `json:"height,omitempty"`
	FrameRate  float64   `json:"frame_rate,omitempty"`
	HasAudio   bool      `json:"has_audio"`
	VideoCodec string    `json:"video_codec,omitempty"`
	AudioCodec string    `json:"audio_codec,omitempty"`
}

// HasVideo reports whether a video stream with known dimensions was found.
func (d *Descriptor) HasVideo() bool {
	return d.Width > 0 && d.Height > 0
}

// Resolution returns "WxH", or "unknown" for audio-only media.
func (d *Descriptor) Resolution() string {
	if !d.HasVideo() {
		return "unknown"
	}
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// SameFormat reports whether two descriptors share dimensions and frame
// rate. Frame rates within 0.01 fps are treated as equal so 29.97 and
// 30000/1001 compare equal.
func (d *Descriptor) SameFormat(o *Descriptor) bool {
	return d.Width == o.Width && d.Height == o.Height && math.Abs(d.FrameRate-o.FrameRate) < 0.01
}

// ParseFrameRate converts ffprobe's rational rate ("24000/1001", "25/1")
// or a plain decimal into frames per second. Unparseable input yields 0.
func ParseFrameRate(s string) float64 {
	s = strings.TrimSpace(s)
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0
		}
		return n / d
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
