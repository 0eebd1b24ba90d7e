// Package cloud talks to the hosted speech synthesis and caption styling
// services, with offline stand-ins for when none are configured.
package cloud

import (
	"context"
	"log/slog"

	"github.com/voxreel/voxreel-agent/internal/media"
	"github.com/voxreel/voxreel-agent/internal/timeline"
)

// SynthesisRequest asks for narration audio for one segment.
type SynthesisRequest struct {
	SegmentID string
	Text      string
	Voice     timeline.VoiceParams
	// OutputDir receives the audio file.
	OutputDir string
}

// Synthesis is a produced narration file.
type Synthesis struct {
	AudioPath string
	Duration  float64
}

// Synthesizer turns text into speech audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*Synthesis, error)
}

// CaptionStyle controls burned-in caption appearance.
type CaptionStyle struct {
	Font     string `json:"font,omitempty"`
	Size     int    `json:"size,omitempty"`
	Color    string `json:"color,omitempty"`
	Position string `json:"position,omitempty"`
}

// CaptionRequest asks for a subtitle file for one segment. Start and End
// are absolute timeline seconds so files can be overlaid on the full
// output.
type CaptionRequest struct {
	SegmentID string
	Text      string
	Start     float64
	End       float64
	Style     CaptionStyle
	OutputDir string
}

// CaptionRenderer produces styled subtitle files.
type CaptionRenderer interface {
	RenderCaptions(ctx context.Context, req CaptionRequest) (string, error)
}

// Client bundles both services.
type Client interface {
	Speech() Synthesizer
	Captions() CaptionRenderer
}

// StubClient works fully offline: placeholder narration and plain SRT.
type StubClient struct {
	speech   *StubSynthesizer
	captions *StubCaptions
}

func NewStubClient(logger *slog.Logger) *StubClient {
	return &StubClient{
		speech:   NewStubSynthesizer(logger),
		captions: NewStubCaptions(logger),
	}
}

func (c *StubClient) Speech() Synthesizer {
	return c.speech
}

func (c *StubClient) Captions() CaptionRenderer {
	return c.captions
}

// New returns an HTTP client for the configured services, falling back to
// the stubs for any service without a URL.
func New(speechURL, speechToken, captionsURL, captionsToken string, prober media.Prober, logger *slog.Logger) Client {
	stub := NewStubClient(logger)
	c := &mixedClient{speech: stub.speech, captions: stub.captions}
	if speechURL != "" {
		hc := NewHTTPClient(speechURL, speechToken, logger)
		hc.Prober = prober
		c.speech = hc
	}
	if captionsURL != "" {
		c.captions = NewHTTPClient(captionsURL, captionsToken, logger)
	}
	return c
}

type mixedClient struct {
	speech   Synthesizer
	captions CaptionRenderer
}

func (c *mixedClient) Speech() Synthesizer       { return c.speech }
func (c *mixedClient) Captions() CaptionRenderer { return c.captions }
