package timeline

import (
	"fmt"

	"github.com/voxreel/voxreel-agent/internal/media"
)

// Format is a video frame geometry and rate.
type Format struct {
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	FrameRate float64 `json:"frame_rate"`
}

// DefaultFormat is used when no clip has been probed.
var DefaultFormat = Format{Width: 1920, Height: 1080, FrameRate: 30}

func (f Format) String() string {
	return fmt.Sprintf("%dx%d@%.3gfps", f.Width, f.Height, f.FrameRate)
}

// IsZero reports whether f is unset.
func (f Format) IsZero() bool {
	return f.Width == 0 && f.Height == 0 && f.FrameRate == 0
}

// CanonicalFormat picks the export target: the override when set, else the
// highest-resolution probed clip (ties broken by frame rate, then Order).
func CanonicalFormat(p *Project, override Format) Format {
	if !override.IsZero() {
		return fillFormat(override)
	}

	var best *Clip
	for i := range p.Clips {
		c := &p.Clips[i]
		if c.Media == nil || !c.Media.HasVideo() {
			continue
		}
		if best == nil || betterFormat(c, best) {
			best = c
		}
	}
	if best == nil {
		return DefaultFormat
	}
	return fillFormat(Format{Width: best.Media.Width, Height: best.Media.Height, FrameRate: best.Media.FrameRate})
}

func betterFormat(c, best *Clip) bool {
	ca, ba := c.Media.Width*c.Media.Height, best.Media.Width*best.Media.Height
	if ca != ba {
		return ca > ba
	}
	if c.Media.FrameRate != best.Media.FrameRate {
		return c.Media.FrameRate > best.Media.FrameRate
	}
	return c.Order < best.Order
}

func fillFormat(f Format) Format {
	if f.Width <= 0 || f.Height <= 0 {
		f.Width, f.Height = DefaultFormat.Width, DefaultFormat.Height
	}
	if f.FrameRate <= 0 {
		f.FrameRate = DefaultFormat.FrameRate
	}
	return f
}

// Matches reports whether clip media already has format f.
func (c *Clip) Matches(f Format) bool {
	if c.Media == nil {
		return false
	}
	return c.Media.SameFormat(&media.Descriptor{Width: f.Width, Height: f.Height, FrameRate: f.FrameRate})
}
