package graph

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/voxreel/voxreel-agent/internal/media"
	"github.com/voxreel/voxreel-agent/internal/timeline"
)

var levels = timeline.Levels{OriginalVolume: 1, NarrationGain: 1.5, MusicReduction: 0.3}

func withAudio(id string, order int, dur float64) timeline.Clip {
	return timeline.Clip{
		ID: id, Order: order, Path: "/media/" + id + ".mp4", SourceEnd: dur,
		Media: &media.Descriptor{Width: 1920, Height: 1080, FrameRate: 30, Duration: 60, HasAudio: true},
	}
}

func silent(id string, order int, start, end float64) timeline.Clip {
	return timeline.Clip{
		ID: id, Order: order, Path: "/media/" + id + ".mp4", SourceStart: start, SourceEnd: end,
		Media: &media.Descriptor{Width: 1280, Height: 720, FrameRate: 25, Duration: 60},
	}
}

func build(t *testing.T, p *timeline.Project, opts Options) *Graph {
	t.Helper()
	if opts.Levels == (timeline.Levels{}) {
		opts.Levels = levels
	}
	g, err := Build(p, nil, opts)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return g
}

func TestBuild_SilenceMatchesTrimmedDuration(t *testing.T) {
	p := &timeline.Project{Clips: []timeline.Clip{
		withAudio("a", 0, 10),
		silent("b", 1, 3.25, 11.4567),
	}}
	g := build(t, p, Options{})

	silences := g.OfKind(KindSilentAudio)
	if len(silences) != 1 {
		t.Fatalf("silent audio nodes = %d, want 1", len(silences))
	}
	want := 11.4567 - 3.25
	got := silences[0].Op.(SilentAudio).Duration
	if math.Abs(got-want) > 0.001 {
		t.Errorf("silence = %v, want %v", got, want)
	}
	if math.Abs(silences[0].Duration-want) > 0.001 {
		t.Errorf("node duration = %v, want %v", silences[0].Duration, want)
	}
}

func TestBuild_MixDurationIsLongestInput(t *testing.T) {
	p := &timeline.Project{
		Clips: []timeline.Clip{withAudio("a", 0, 12), withAudio("b", 1, 8)},
		Music: []timeline.MusicLayer{{ID: "m", Path: "/music/bed.mp3", Start: 0, End: 30, Volume: 0.8, Loop: true}},
	}
	g := build(t, p, Options{})

	mix := g.Node(g.Audio)
	if mix.Kind() != KindMix {
		t.Fatalf("terminal audio is %s, want mix", mix.Kind())
	}
	if math.Abs(mix.Duration-30) > 0.001 {
		t.Errorf("mix duration = %v, want 30", mix.Duration)
	}
	if math.Abs(g.Duration()-30) > 0.001 {
		t.Errorf("output duration = %v, want 30 (video padded)", g.Duration())
	}
	if g.Count(KindGap) != 1 {
		t.Errorf("gap nodes = %d, want 1 trailing pad", g.Count(KindGap))
	}
}

func TestBuild_NonLoopingMusicStopsAtSourceEnd(t *testing.T) {
	p := &timeline.Project{
		Clips: []timeline.Clip{withAudio("a", 0, 20)},
		Music: []timeline.MusicLayer{{
			ID: "m", Path: "/music/short.mp3", Start: 2, End: 20, SourceOffset: 1, Volume: 1,
			Media: &media.Descriptor{Duration: 9},
		}},
	}
	g := build(t, p, Options{})

	trims := g.OfKind(KindTrim)
	if len(trims) != 1 {
		t.Fatalf("trim nodes = %d, want 1", len(trims))
	}
	// starts at 2 and plays 8s of source
	if math.Abs(trims[0].Duration-10) > 0.001 {
		t.Errorf("trimmed layer ends at %v, want 10", trims[0].Duration)
	}
	if math.Abs(g.Node(g.Audio).Duration-20) > 0.001 {
		t.Errorf("mix duration = %v, want 20", g.Node(g.Audio).Duration)
	}
}

func TestBuild_ConstructionShape(t *testing.T) {
	p := &timeline.Project{
		Clips: []timeline.Clip{withAudio("a", 0, 10), silent("b", 1, 0, 8)},
		Segments: []timeline.Segment{
			{ID: "s1", ClipID: "b", Start: 2, End: 5, Text: "Hello", AudioPath: "/art/s1.wav", AudioDuration: 2.4, SubtitlePath: "/art/s1.srt"},
			{ID: "pending", Start: 1, End: 2, Text: "not synthesized"},
			{ID: "blank", Start: 3, End: 4, Text: " ", AudioPath: "/art/blank.wav"},
		},
		Music: []timeline.MusicLayer{
			{ID: "m1", Path: "/music/a.mp3", Start: 0, End: 18, Volume: 0.5, FadeIn: 1, FadeOut: 2, Loop: true},
			{ID: "m2", Path: "/music/b.mp3", Start: 0, End: 18, Volume: 0.5, Muted: true},
		},
	}
	g := build(t, p, Options{Captions: true})

	if err := g.Check(); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	counts := map[Kind]int{
		KindNormalize:   1, // b is 720p, target is 1080p
		KindConcatVideo: 1,
		KindConcatAudio: 1,
		KindSilentAudio: 1,
		KindDelay:       2, // s1 + m1
		KindLoop:        1,
		KindFade:        1,
		KindMix:         1,
		KindOverlay:     1,
		KindOutput:      1,
	}
	for k, want := range counts {
		if got := g.Count(k); got != want {
			t.Errorf("%s nodes = %d, want %d", k, got, want)
		}
	}

	mix := g.Node(g.Audio)
	if len(mix.Inputs) != 3 {
		t.Errorf("mix inputs = %d, want original + narration + music", len(mix.Inputs))
	}

	delay := g.OfKind(KindDelay)[0]
	if off := delay.Op.(Delay).Offset; off != 12 {
		t.Errorf("narration delay = %v, want 12", off)
	}
	if math.Abs(delay.Duration-14.4) > 0.001 {
		t.Errorf("narration branch ends at %v, want 14.4", delay.Duration)
	}

	for _, v := range g.OfKind(KindVolume) {
		gain := v.Op.(Volume).Gain
		if gain != 1 && gain != 1.5 && math.Abs(gain-0.15) > 1e-9 {
			t.Errorf("unexpected gain %v", gain)
		}
	}
}

func TestBuild_ExplicitGapsAreFilled(t *testing.T) {
	a := withAudio("a", 0, 5)
	a.TimelineStart = timeline.Float(2)
	b := withAudio("b", 1, 5)
	b.TimelineStart = timeline.Float(10)

	g := build(t, &timeline.Project{Clips: []timeline.Clip{b, a}}, Options{})

	gaps := g.OfKind(KindGap)
	if len(gaps) != 2 {
		t.Fatalf("gap nodes = %d, want 2", len(gaps))
	}
	if gaps[0].Duration != 2 || gaps[1].Duration != 3 {
		t.Errorf("gaps = %v, %v; want 2, 3", gaps[0].Duration, gaps[1].Duration)
	}
	if g.Node(g.Video).Duration != 15 {
		t.Errorf("video duration = %v, want 15", g.Node(g.Video).Duration)
	}
}

func TestBuild_RejectsOverlappingClips(t *testing.T) {
	a := withAudio("a", 0, 10)
	a.TimelineStart = timeline.Float(0)
	b := withAudio("b", 1, 10)
	b.TimelineStart = timeline.Float(5)

	if _, err := Build(&timeline.Project{Clips: []timeline.Clip{a, b}}, nil, Options{Levels: levels}); err == nil {
		t.Error("Build() should fail on overlapping clips")
	}
}

func TestBuild_NoClips(t *testing.T) {
	if _, err := Build(&timeline.Project{}, nil, Options{}); !errors.Is(err, ErrNoClips) {
		t.Errorf("Build() error = %v, want ErrNoClips", err)
	}
}

func TestGraph_String(t *testing.T) {
	g := build(t, &timeline.Project{Clips: []timeline.Clip{withAudio("a", 0, 4)}}, Options{})
	if !strings.Contains(g.String(), "output") {
		t.Errorf("String() missing output node:\n%s", g)
	}
}
