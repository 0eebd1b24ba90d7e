package timeline

import (
	"cmp"
	"slices"
)

// Mode is how clip positions were derived.
type Mode string

const (
	// ModeImplicit places clips back to back by Order.
	ModeImplicit Mode = "implicit"
	// ModeExplicit uses each clip's TimelineStart verbatim.
	ModeExplicit Mode = "explicit"
)

// ClipSpan is a clip's absolute half-open interval.
type ClipSpan struct {
	ID    string  `json:"id"`
	Order int     `json:"order"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	// Unplaced marks an explicit-mode clip that had no TimelineStart.
	Unplaced bool `json:"unplaced,omitempty"`
}

// SegmentSpan is a segment projected onto absolute time.
type SegmentSpan struct {
	ID     string  `json:"id"`
	ClipID string  `json:"clip_id,omitempty"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	// Orphan marks a segment bound to a clip that does not exist.
	Orphan bool `json:"orphan,omitempty"`
}

// MusicSpan is a music layer's absolute interval.
type MusicSpan struct {
	ID    string  `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Muted bool    `json:"muted,omitempty"`
}

// Resolved is the absolute-coordinate snapshot of a project. It is derived
// state and is rebuilt on demand rather than stored.
type Resolved struct {
	Mode     Mode          `json:"mode"`
	Clips    []ClipSpan    `json:"clips"`
	Segments []SegmentSpan `json:"segments"`
	Music    []MusicSpan   `json:"music"`
	// TotalDuration is the end of the last clip.
	TotalDuration float64 `json:"total_duration"`
}

// Len returns End - Start.
func (s ClipSpan) Len() float64 { return s.End - s.Start }

func (s SegmentSpan) Len() float64 { return s.End - s.Start }

func (s MusicSpan) Len() float64 { return s.End - s.Start }

// Resolve computes absolute positions for every entity in p. It does not
// mutate p, and equal projects always resolve to equal values.
//
// Clips are listed by Order, segments by absolute start and music layers by
// Order, so the result does not depend on slice order in p.
func Resolve(p *Project) *Resolved {
	r := &Resolved{
		Mode:     ModeImplicit,
		Clips:    make([]ClipSpan, 0, len(p.Clips)),
		Segments: make([]SegmentSpan, 0, len(p.Segments)),
		Music:    make([]MusicSpan, 0, len(p.Music)),
	}

	clips := make([]*Clip, len(p.Clips))
	for i := range p.Clips {
		clips[i] = &p.Clips[i]
		if p.Clips[i].TimelineStart != nil {
			r.Mode = ModeExplicit
		}
	}
	slices.SortStableFunc(clips, func(a, b *Clip) int {
		return cmp.Or(cmp.Compare(a.Order, b.Order), cmp.Compare(a.ID, b.ID))
	})

	var cursor float64
	byID := make(map[string]ClipSpan, len(clips))
	for _, c := range clips {
		span := ClipSpan{ID: c.ID, Order: c.Order}
		switch {
		case r.Mode == ModeImplicit:
			span.Start = cursor
			span.End = cursor + c.Duration()
			cursor = span.End
		case c.TimelineStart == nil:
			span.Start = 0
			span.End = c.Duration()
			span.Unplaced = true
		default:
			span.Start = *c.TimelineStart
			span.End = span.Start + c.Duration()
			if c.TimelineEnd != nil {
				span.End = *c.TimelineEnd
			}
		}
		r.Clips = append(r.Clips, span)
		byID[c.ID] = span
		r.TotalDuration = max(r.TotalDuration, span.End)
	}

	for i := range p.Segments {
		s := &p.Segments[i]
		span := SegmentSpan{ID: s.ID, ClipID: s.ClipID, Start: s.Start, End: s.End}
		if !s.IsGeneric() {
			if c, ok := byID[s.ClipID]; ok {
				span.Start = c.Start + s.Start
				span.End = c.Start + s.End
			} else {
				span.Orphan = true
			}
		}
		r.Segments = append(r.Segments, span)
	}
	slices.SortStableFunc(r.Segments, func(a, b SegmentSpan) int {
		return cmp.Or(cmp.Compare(a.Start, b.Start), cmp.Compare(a.End, b.End), cmp.Compare(a.ID, b.ID))
	})

	music := make([]*MusicLayer, len(p.Music))
	for i := range p.Music {
		music[i] = &p.Music[i]
	}
	slices.SortStableFunc(music, func(a, b *MusicLayer) int {
		return cmp.Or(cmp.Compare(a.Order, b.Order), cmp.Compare(a.ID, b.ID))
	})
	for _, m := range music {
		r.Music = append(r.Music, MusicSpan{ID: m.ID, Start: m.Start, End: m.End, Muted: m.Muted})
	}

	return r
}

// Clip returns the span of the clip with id.
func (r *Resolved) Clip(id string) (ClipSpan, bool) {
	for _, c := range r.Clips {
		if c.ID == id {
			return c, true
		}
	}
	return ClipSpan{}, false
}

// Segment returns the span of the segment with id.
func (r *Resolved) Segment(id string) (SegmentSpan, bool) {
	for _, s := range r.Segments {
		if s.ID == id {
			return s, true
		}
	}
	return SegmentSpan{}, false
}

// MusicLayer returns the span of the music layer with id.
func (r *Resolved) MusicLayer(id string) (MusicSpan, bool) {
	for _, m := range r.Music {
		if m.ID == id {
			return m, true
		}
	}
	return MusicSpan{}, false
}

// ClipAt returns the clip playing at t. Spans are half-open; when explicit
// clips overlap the first one in clip order wins.
func ClipAt(t float64, r *Resolved) (string, bool) {
	for _, c := range r.Clips {
		if c.Start <= t && t < c.End {
			return c.ID, true
		}
	}
	return "", false
}

// Overlaps reports whether half-open intervals [aStart,aEnd) and
// [bStart,bEnd) intersect. Touching endpoints do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd float64) bool {
	return aStart < bEnd && bStart < aEnd
}
