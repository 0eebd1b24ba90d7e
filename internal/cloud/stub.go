package cloud

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
)

// DefaultSpeechRate is the words per second assumed when estimating
// narration length.
const DefaultSpeechRate = 2.5

// EstimateSpeechDuration guesses how long text takes to read aloud.
func EstimateSpeechDuration(text string, speed float64) float64 {
	words := len(strings.Fields(text))
	if speed <= 0 {
		speed = 1
	}
	d := float64(words) / (DefaultSpeechRate * speed)
	return math.Max(0.5, math.Round(d*1000)/1000)
}

// StubSynthesizer writes silent placeholder narration of the estimated
// spoken length, so timing can be previewed without a speech service.
type StubSynthesizer struct {
	logger *slog.Logger
}

func NewStubSynthesizer(logger *slog.Logger) *StubSynthesizer {
	return &StubSynthesizer{logger: logger}
}

func (s *StubSynthesizer) Synthesize(ctx context.Context, req SynthesisRequest) (*Synthesis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	duration := EstimateSpeechDuration(req.Text, req.Voice.Speed)
	path := filepath.Join(req.OutputDir, req.SegmentID+".wav")
	if err := WriteSilentWAV(path, duration); err != nil {
		return nil, fmt.Errorf("write placeholder narration: %w", err)
	}
	if s.logger != nil {
		s.logger.Info("speech stub: placeholder narration written", "segment_id", req.SegmentID, "duration", duration)
	}
	return &Synthesis{AudioPath: path, Duration: duration}, nil
}

// StubCaptions writes an unstyled single-cue SRT file.
type StubCaptions struct {
	logger *slog.Logger
}

func NewStubCaptions(logger *slog.Logger) *StubCaptions {
	return &StubCaptions{logger: logger}
}

func (s *StubCaptions) RenderCaptions(ctx context.Context, req CaptionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(req.OutputDir, req.SegmentID+".srt")
	cues := []Cue{{Start: req.Start, End: req.End, Text: req.Text}}
	if err := WriteSRT(path, cues); err != nil {
		return "", fmt.Errorf("write captions: %w", err)
	}
	if s.logger != nil {
		s.logger.Debug("captions stub: plain subtitles written", "segment_id", req.SegmentID)
	}
	return path, nil
}
