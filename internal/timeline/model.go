// Package timeline holds the editable project model and resolves it into
// absolute timeline positions.
package timeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/voxreel/voxreel-agent/internal/media"
)

// Project is the authored timeline: clips, narration segments, music layers
// and global mix settings.
type Project struct {
	ID       string       `json:"id" yaml:"id"`
	Name     string       `json:"name" yaml:"name" validate:"required"`
	Clips    []Clip       `json:"clips" yaml:"clips" validate:"unique=ID,dive"`
	Segments []Segment    `json:"segments" yaml:"segments,omitempty" validate:"unique=ID,dive"`
	Music    []MusicLayer `json:"music" yaml:"music,omitempty" validate:"unique=ID,dive"`
	Mix      MixSettings  `json:"mix" yaml:"mix,omitempty"`
}

// Clip is a trimmed reference to one source file placed on the timeline.
type Clip struct {
	ID          string  `json:"id" yaml:"id" validate:"required"`
	Order       int     `json:"order" yaml:"order" validate:"gte=0"`
	Path        string  `json:"path" yaml:"path" validate:"required"`
	SourceStart float64 `json:"source_start" yaml:"source_start" validate:"gte=0"`
	SourceEnd   float64 `json:"source_end" yaml:"source_end" validate:"gtfield=SourceStart"`

	// TimelineStart switches the whole project to explicit placement.
	TimelineStart *float64 `json:"timeline_start,omitempty" yaml:"timeline_start,omitempty"`
	// TimelineEnd overrides the derived end in explicit mode.
	TimelineEnd *float64 `json:"timeline_end,omitempty" yaml:"timeline_end,omitempty"`

	Media *media.Descriptor `json:"media,omitempty" yaml:"-"`
}

// Duration is the trimmed source length in seconds.
func (c *Clip) Duration() float64 {
	return c.SourceEnd - c.SourceStart
}

// HasAudio reports whether the clip's source carries an audio track.
// Unprobed clips are assumed silent.
func (c *Clip) HasAudio() bool {
	return c.Media != nil && c.Media.HasAudio
}

// VoiceParams selects the synthesized voice.
type VoiceParams struct {
	Voice    string  `json:"voice" yaml:"voice"`
	Language string  `json:"language,omitempty" yaml:"language,omitempty"`
	Speed    float64 `json:"speed,omitempty" yaml:"speed,omitempty" validate:"gte=0"`
	Pitch    float64 `json:"pitch,omitempty" yaml:"pitch,omitempty"`
}

// Segment is a narration unit. Start and End are relative to the owning
// clip's trimmed start when ClipID is set, and absolute timeline seconds
// for generic segments.
type Segment struct {
	ID     string      `json:"id" yaml:"id" validate:"required"`
	ClipID string      `json:"clip_id,omitempty" yaml:"clip_id,omitempty"`
	Start  float64     `json:"start" yaml:"start"`
	End    float64     `json:"end" yaml:"end"`
	Text   string      `json:"text" yaml:"text"`
	Voice  VoiceParams `json:"voice" yaml:"voice"`

	// Synthesized artifacts. Cleared whenever Text or Voice change.
	AudioPath     string  `json:"audio_path,omitempty" yaml:"audio_path,omitempty"`
	AudioDuration float64 `json:"audio_duration,omitempty" yaml:"audio_duration,omitempty"`
	SubtitlePath  string  `json:"subtitle_path,omitempty" yaml:"subtitle_path,omitempty"`
	ArtifactKey   string  `json:"artifact_key,omitempty" yaml:"artifact_key,omitempty"`
}

// IsGeneric reports whether the segment is placed in absolute time.
func (s *Segment) IsGeneric() bool {
	return s.ClipID == ""
}

// HasText reports whether there is anything to synthesize.
func (s *Segment) HasText() bool {
	return strings.TrimSpace(s.Text) != ""
}

// ContentKey hashes the inputs that determine the synthesized audio.
func (s *Segment) ContentKey() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%g\x00%g", strings.TrimSpace(s.Text),
		s.Voice.Voice, s.Voice.Language, s.Voice.Speed, s.Voice.Pitch)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// HasArtifact reports whether the stored audio was produced for the current
// text and voice.
func (s *Segment) HasArtifact() bool {
	return s.AudioPath != "" && s.ArtifactKey == s.ContentKey()
}

// ClearArtifacts drops synthesized outputs so they are regenerated.
func (s *Segment) ClearArtifacts() {
	s.AudioPath = ""
	s.AudioDuration = 0
	s.SubtitlePath = ""
	s.ArtifactKey = ""
}

// DefaultMusicVolume applies to layers that do not set a volume.
const DefaultMusicVolume = 1.0

// MusicLayer is an independent background track in absolute time.
type MusicLayer struct {
	ID           string  `json:"id" yaml:"id" validate:"required"`
	Order        int     `json:"order" yaml:"order"`
	Path         string  `json:"path" yaml:"path" validate:"required"`
	Start        float64 `json:"start" yaml:"start"`
	End          float64 `json:"end" yaml:"end"`
	SourceOffset float64 `json:"source_offset,omitempty" yaml:"source_offset,omitempty"`
	Volume       float64 `json:"volume" yaml:"volume" validate:"gte=0"`
	FadeIn       float64 `json:"fade_in,omitempty" yaml:"fade_in,omitempty" validate:"gte=0"`
	FadeOut      float64 `json:"fade_out,omitempty" yaml:"fade_out,omitempty" validate:"gte=0"`
	Loop         bool    `json:"loop" yaml:"loop"`
	Muted        bool    `json:"muted,omitempty" yaml:"muted,omitempty"`

	Media *media.Descriptor `json:"media,omitempty" yaml:"-"`
}

// MixSettings are project-wide levels. Nil values fall back to agent
// defaults.
type MixSettings struct {
	OriginalVolume           *float64 `json:"original_volume,omitempty" yaml:"original_volume,omitempty"`
	NarrationGain            *float64 `json:"narration_gain,omitempty" yaml:"narration_gain,omitempty"`
	MusicReduction           *float64 `json:"music_reduction,omitempty" yaml:"music_reduction,omitempty"`
	AllowOverlappingSegments bool     `json:"allow_overlapping_segments" yaml:"allow_overlapping_segments"`
}

// Levels are effective mix gains.
type Levels struct {
	OriginalVolume float64
	NarrationGain  float64
	MusicReduction float64
}

// Levels fills unset settings from defaults.
func (m MixSettings) Levels(defaults Levels) Levels {
	l := defaults
	if m.OriginalVolume != nil {
		l.OriginalVolume = *m.OriginalVolume
	}
	if m.NarrationGain != nil {
		l.NarrationGain = *m.NarrationGain
	}
	if m.MusicReduction != nil {
		l.MusicReduction = *m.MusicReduction
	}
	return l
}

// ClipByID returns the clip with id, or nil.
func (p *Project) ClipByID(id string) *Clip {
	for i := range p.Clips {
		if p.Clips[i].ID == id {
			return &p.Clips[i]
		}
	}
	return nil
}

// SegmentByID returns the segment with id, or nil.
func (p *Project) SegmentByID(id string) *Segment {
	for i := range p.Segments {
		if p.Segments[i].ID == id {
			return &p.Segments[i]
		}
	}
	return nil
}

// MusicByID returns the music layer with id, or nil.
func (p *Project) MusicByID(id string) *MusicLayer {
	for i := range p.Music {
		if p.Music[i].ID == id {
			return &p.Music[i]
		}
	}
	return nil
}

// Float returns a pointer to v, for optional fields.
func Float(v float64) *float64 {
	return &v
}
