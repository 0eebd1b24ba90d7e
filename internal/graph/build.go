package graph

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/voxreel/voxreel-agent/internal/timeline"
)

// gaps and drift below this are ignored
const epsilon = 1e-3

// Options tune graph construction.
type Options struct {
	// Target overrides the canonical output format.
	Target timeline.Format
	// Levels are the effective mix gains.
	Levels timeline.Levels
	// Captions burns segment subtitle files into the video.
	Captions bool
}

// ErrNoClips is returned for a project without clips.
var ErrNoClips = errors.New("graph: project has no clips")

// Build constructs the operation graph for a validated project. Segments
// without synthesized audio are left out. Structural conflicts that
// validation should have caught are reported as errors.
func Build(p *timeline.Project, r *timeline.Resolved, opts Options) (*Graph, error) {
	if r == nil {
		r = timeline.Resolve(p)
	}
	if len(r.Clips) == 0 {
		return nil, ErrNoClips
	}

	b := &builder{
		g:      &Graph{},
		p:      p,
		r:      r,
		opts:   opts,
		target: timeline.CanonicalFormat(p, opts.Target),
	}

	if err := b.clips(); err != nil {
		return nil, err
	}
	b.segments()
	b.music()
	b.mix()
	b.video()
	b.output()

	if err := b.g.Check(); err != nil {
		return nil, err
	}
	return b.g, nil
}

type builder struct {
	g      *Graph
	p      *timeline.Project
	r      *timeline.Resolved
	opts   Options
	target timeline.Format

	videoParts []int
	audioParts []int
	videoEnd   float64

	original int
	branches []int
	mixed    int
	finalV   int
}

// clips emits one video and one audio part per clip in timeline order,
// with black and silence filling gaps between explicitly placed clips.
func (b *builder) clips() error {
	spans := slices.Clone(b.r.Clips)
	slices.SortStableFunc(spans, func(x, y timeline.ClipSpan) int {
		return cmp.Or(cmp.Compare(x.Start, y.Start), cmp.Compare(x.Order, y.Order))
	})

	var cursor float64
	for _, span := range spans {
		if span.Start < cursor-epsilon {
			return fmt.Errorf("graph: clip %s starts at %.3fs, before the previous clip ends at %.3fs", span.ID, span.Start, cursor)
		}
		if gap := span.Start - cursor; gap > epsilon {
			b.gap(gap)
		}

		c := b.p.ClipByID(span.ID)
		played := min(span.Len(), c.Duration())
		if played <= 0 {
			return fmt.Errorf("graph: clip %s has no playable duration", c.ID)
		}

		src := Source{Path: c.Path, Stream: StreamVideo, TrimStart: c.SourceStart, TrimEnd: c.SourceStart + played}
		v := b.g.add(src, StreamVideo, played)
		if !c.Matches(b.target) {
			v = b.g.add(Normalize{Format: b.target}, StreamVideo, played, v)
		}
		b.videoParts = append(b.videoParts, v)

		var a int
		if c.HasAudio() {
			src.Stream = StreamAudio
			a = b.g.add(src, StreamAudio, played)
		} else {
			a = b.g.add(SilentAudio{Duration: played}, StreamAudio, played)
		}
		b.audioParts = append(b.audioParts, a)

		// an explicit end past the trimmed media leaves black
		if rest := span.Len() - played; rest > epsilon {
			b.gap(rest)
		}
		cursor = span.End
	}
	b.videoEnd = cursor

	concat := b.g.add(ConcatAudio{}, StreamAudio, b.videoEnd, b.audioParts...)
	b.original = b.g.add(Volume{Gain: b.opts.Levels.OriginalVolume}, StreamAudio, b.videoEnd, concat)
	return nil
}

func (b *builder) gap(d float64) {
	b.videoParts = append(b.videoParts, b.g.add(Gap{Format: b.target, Duration: d}, StreamVideo, d))
	b.audioParts = append(b.audioParts, b.g.add(SilentAudio{Duration: d}, StreamAudio, d))
}

// segments adds one delayed narration branch per synthesized segment.
// Audio longer than the segment's span is cut at the span end.
func (b *builder) segments() {
	for _, span := range b.r.Segments {
		seg := b.p.SegmentByID(span.ID)
		if span.Orphan || span.Len() <= 0 || !seg.HasText() || seg.AudioPath == "" {
			continue
		}
		length := span.Len()
		if seg.AudioDuration > 0 {
			length = min(length, seg.AudioDuration)
		}
		src := b.g.add(Source{Path: seg.AudioPath, Stream: StreamAudio, TrimEnd: span.Len()}, StreamAudio, length)
		delayed := b.g.add(Delay{Offset: span.Start}, StreamAudio, span.Start+length, src)
		gained := b.g.add(Volume{Gain: b.opts.Levels.NarrationGain}, StreamAudio, span.Start+length, delayed)
		b.branches = append(b.branches, gained)
	}
}

// music adds Volume(Fade(Loop|Trim(Delay(Source)))) per audible layer.
func (b *builder) music() {
	for _, span := range b.r.Music {
		m := b.p.MusicByID(span.ID)
		if m.Muted || span.Len() <= 0 {
			continue
		}

		available := span.Len()
		if !m.Loop && m.Media != nil {
			available = max(0, m.Media.Duration-m.SourceOffset)
		}
		src := b.g.add(Source{Path: m.Path, Stream: StreamAudio, TrimStart: m.SourceOffset, Loop: m.Loop}, StreamAudio, available)
		delayed := b.g.add(Delay{Offset: span.Start}, StreamAudio, span.Start+available, src)

		var bounded int
		var end float64
		if m.Loop {
			end = span.End
			bounded = b.g.add(Loop{Until: span.End}, StreamAudio, end, delayed)
		} else {
			end = min(span.Start+available, span.End)
			bounded = b.g.add(Trim{Until: span.End}, StreamAudio, end, delayed)
		}

		faded := bounded
		if m.FadeIn > 0 || m.FadeOut > 0 {
			faded = b.g.add(Fade{In: m.FadeIn, Out: m.FadeOut, Start: span.Start, End: end}, StreamAudio, end, bounded)
		}
		gain := m.Volume * b.opts.Levels.MusicReduction
		b.branches = append(b.branches, b.g.add(Volume{Gain: gain}, StreamAudio, end, faded))
	}
}

// mix sums the original audio with every narration and music branch.
func (b *builder) mix() {
	inputs := append([]int{b.original}, b.branches...)
	var longest float64
	for _, id := range inputs {
		longest = max(longest, b.g.Nodes[id].Duration)
	}
	b.mixed = b.g.add(Mix{Policy: MixLongest}, StreamAudio, longest, inputs...)
}

// video concatenates the clip parts, pads to the mixed audio length and
// overlays captions.
func (b *builder) video() {
	parts := b.videoParts
	duration := b.videoEnd
	if tail := b.g.Nodes[b.mixed].Duration - b.videoEnd; tail > epsilon {
		parts = append(parts, b.g.add(Gap{Format: b.target, Duration: tail}, StreamVideo, tail))
		duration += tail
	}
	v := b.g.add(ConcatVideo{}, StreamVideo, duration, parts...)

	if b.opts.Captions {
		for _, span := range b.r.Segments {
			seg := b.p.SegmentByID(span.ID)
			if span.Orphan || seg.SubtitlePath == "" || !seg.HasText() {
				continue
			}
			v = b.g.add(Overlay{SubtitlePath: seg.SubtitlePath}, StreamVideo, duration, v)
		}
	}
	b.finalV = v
}

func (b *builder) output() {
	d := max(b.g.Nodes[b.finalV].Duration, b.g.Nodes[b.mixed].Duration)
	b.g.Output = b.g.add(Output{Format: b.target}, StreamBoth, d, b.finalV, b.mixed)
	b.g.Video = b.finalV
	b.g.Audio = b.mixed
}
