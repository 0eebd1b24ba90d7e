// Package graph turns a resolved timeline into an acyclic graph of typed
// media operations and serializes it for ffmpeg.
package graph

import "github.com/voxreel/voxreel-agent/internal/timeline"

// Kind names a node operation.
type Kind string

const (
	KindSource      Kind = "source"
	KindNormalize   Kind = "normalize"
	KindGap         Kind = "gap"
	KindConcatVideo Kind = "concat_video"
	KindSilentAudio Kind = "silent_audio"
	KindConcatAudio Kind = "concat_audio"
	KindDelay       Kind = "delay"
	KindFade        Kind = "fade"
	KindLoop        Kind = "loop"
	KindTrim        Kind = "trim"
	KindVolume      Kind = "volume"
	KindMix         Kind = "mix"
	KindOverlay     Kind = "overlay"
	KindOutput      Kind = "output"
)

// Stream is the media type a node produces.
type Stream string

const (
	StreamVideo Stream = "video"
	StreamAudio Stream = "audio"
	StreamBoth  Stream = "both"
)

// Op is the operation carried by a node.
type Op interface {
	Kind() Kind
}

// Source reads one stream of a file. TrimEnd of zero reads to the end.
type Source struct {
	Path      string  `json:"path"`
	Stream    Stream  `json:"stream"`
	TrimStart float64 `json:"trim_start"`
	TrimEnd   float64 `json:"trim_end,omitempty"`
	// Loop repeats the input indefinitely; a downstream Loop node bounds it.
	Loop bool `json:"loop,omitempty"`
}

// Normalize scales and letterboxes video to the target format.
type Normalize struct {
	Format timeline.Format `json:"format"`
}

// Gap is black video filling time with no clip.
type Gap struct {
	Format   timeline.Format `json:"format"`
	Duration float64         `json:"duration"`
}

type ConcatVideo struct{}

// SilentAudio stands in for a clip without an audio track, or for a gap.
type SilentAudio struct {
	Duration float64 `json:"duration"`
}

type ConcatAudio struct{}

// Delay left-pads audio with silence so it starts at Offset.
type Delay struct {
	Offset float64 `json:"offset"`
}

// Fade applies a fade-in starting at Start and a fade-out ending at End.
type Fade struct {
	In    float64 `json:"in"`
	Out   float64 `json:"out"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Loop repeats its (looping) input until the absolute time Until.
type Loop struct {
	Until float64 `json:"until"`
}

// Trim cuts its input at the absolute time Until.
type Trim struct {
	Until float64 `json:"until"`
}

type Volume struct {
	Gain float64 `json:"gain"`
}

// MixPolicy decides the output length of a Mix.
type MixPolicy string

// MixLongest lasts as long as the longest input.
const MixLongest MixPolicy = "longest"

type Mix struct {
	Policy MixPolicy `json:"policy"`
}

// Overlay burns a subtitle file into the video.
type Overlay struct {
	SubtitlePath string `json:"subtitle_path"`
}

// Output pairs the final video and audio.
type Output struct {
	Format timeline.Format `json:"format"`
}

func (Source) Kind() Kind      { return KindSource }
func (Normalize) Kind() Kind   { return KindNormalize }
func (Gap) Kind() Kind         { return KindGap }
func (ConcatVideo) Kind() Kind { return KindConcatVideo }
func (SilentAudio) Kind() Kind { return KindSilentAudio }
func (ConcatAudio) Kind() Kind { return KindConcatAudio }
func (Delay) Kind() Kind       { return KindDelay }
func (Fade) Kind() Kind        { return KindFade }
func (Loop) Kind() Kind        { return KindLoop }
func (Trim) Kind() Kind        { return KindTrim }
func (Volume) Kind() Kind      { return KindVolume }
func (Mix) Kind() Kind         { return KindMix }
func (Overlay) Kind() Kind     { return KindOverlay }
func (Output) Kind() Kind      { return KindOutput }
