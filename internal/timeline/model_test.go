package timeline

import (
	"testing"

	"github.com/voxreel/voxreel-agent/internal/media"
)

func TestSegment_ContentKey(t *testing.T) {
	a := Segment{Text: "Hello", Voice: VoiceParams{Voice: "nova"}}
	b := Segment{Text: " Hello ", Voice: VoiceParams{Voice: "nova"}}
	c := Segment{Text: "Hello", Voice: VoiceParams{Voice: "echo"}}

	if a.ContentKey() != b.ContentKey() {
		t.Error("surrounding whitespace should not change the key")
	}
	if a.ContentKey() == c.ContentKey() {
		t.Error("voice change should change the key")
	}
}

func TestSegment_HasArtifact(t *testing.T) {
	s := Segment{Text: "Hello", Voice: VoiceParams{Voice: "nova"}}
	s.AudioPath = "/a/s.wav"
	s.ArtifactKey = s.ContentKey()
	if !s.HasArtifact() {
		t.Fatal("HasArtifact() = false for matching key")
	}

	s.Text = "Goodbye"
	if s.HasArtifact() {
		t.Error("HasArtifact() = true after text change")
	}

	s.ClearArtifacts()
	if s.AudioPath != "" || s.ArtifactKey != "" || s.AudioDuration != 0 {
		t.Errorf("ClearArtifacts() left %+v", s)
	}
}

func TestMixSettings_Levels(t *testing.T) {
	defaults := Levels{OriginalVolume: 1, NarrationGain: 1.5, MusicReduction: 0.3}

	got := MixSettings{}.Levels(defaults)
	if got != defaults {
		t.Errorf("Levels() = %+v, want defaults", got)
	}

	got = MixSettings{OriginalVolume: Float(0), MusicReduction: Float(0.5)}.Levels(defaults)
	if got.OriginalVolume != 0 || got.MusicReduction != 0.5 || got.NarrationGain != 1.5 {
		t.Errorf("Levels() = %+v", got)
	}
}

func TestCanonicalFormat(t *testing.T) {
	small := clip("a", 0, 5)
	small.Media = &media.Descriptor{Width: 1280, Height: 720, FrameRate: 60}
	big := clip("b", 1, 5)
	big.Media = &media.Descriptor{Width: 1920, Height: 1080, FrameRate: 25}
	unprobed := clip("c", 2, 5)

	p := &Project{Clips: []Clip{small, big, unprobed}}

	got := CanonicalFormat(p, Format{})
	if got != (Format{Width: 1920, Height: 1080, FrameRate: 25}) {
		t.Errorf("CanonicalFormat() = %v, want highest resolution clip", got)
	}

	got = CanonicalFormat(p, Format{Width: 720, Height: 1280})
	if got != (Format{Width: 720, Height: 1280, FrameRate: 30}) {
		t.Errorf("CanonicalFormat(override) = %v", got)
	}

	if got := CanonicalFormat(&Project{}, Format{}); got != DefaultFormat {
		t.Errorf("CanonicalFormat(empty) = %v, want default", got)
	}

	if !p.Clips[1].Matches(Format{Width: 1920, Height: 1080, FrameRate: 25}) {
		t.Error("Matches() = false for identical format")
	}
	if p.Clips[2].Matches(DefaultFormat) {
		t.Error("unprobed clip should never match")
	}
}
