package validator

import (
	"fmt"
	"strconv"

	"github.com/voxreel/voxreel-agent/internal/timeline"
)

// durations closer than this are equal
const epsilon = 1e-3

func CheckNoClips(in *Input) []Issue {
	if len(in.Project.Clips) == 0 {
		return []Issue{issue(KindNoClips, SeverityError, "project has no clips")}
	}
	return nil
}

// CheckDuplicateIDs rejects ids reused within clips, segments or music
// layers. Lookups by id would silently pick the first entity.
func CheckDuplicateIDs(in *Input) []Issue {
	var issues []Issue
	report := func(what string, ids []string) {
		seen := make(map[string]bool, len(ids))
		flagged := make(map[string]bool)
		for _, id := range ids {
			if seen[id] && !flagged[id] {
				flagged[id] = true
				issues = append(issues, issue(KindDuplicateID, SeverityError,
					fmt.Sprintf("%s id %q is used more than once", what, id), id))
			}
			seen[id] = true
		}
	}
	p := in.Project
	ids := make([]string, 0, len(p.Clips))
	for _, c := range p.Clips {
		ids = append(ids, c.ID)
	}
	report("clip", ids)
	ids = ids[:0]
	for _, s := range p.Segments {
		ids = append(ids, s.ID)
	}
	report("segment", ids)
	ids = ids[:0]
	for _, m := range p.Music {
		ids = append(ids, m.ID)
	}
	report("music layer", ids)
	return issues
}

func CheckClipOrder(in *Input) []Issue {
	var issues []Issue
	seen := make(map[int]string)
	for _, span := range in.Resolved.Clips {
		if prev, ok := seen[span.Order]; ok {
			issues = append(issues, issue(KindClipOrder, SeverityError,
				fmt.Sprintf("clips %s and %s share order %d", prev, span.ID, span.Order), prev, span.ID))
			continue
		}
		seen[span.Order] = span.ID
	}
	return issues
}

func CheckClipTrim(in *Input) []Issue {
	var issues []Issue
	for _, span := range in.Resolved.Clips {
		c := in.Project.ClipByID(span.ID)
		switch {
		case c.SourceStart < 0:
			issues = append(issues, issue(KindClipTrim, SeverityError,
				fmt.Sprintf("clip %s starts before the beginning of its source", c.ID), c.ID))
		case c.SourceEnd <= c.SourceStart:
			issues = append(issues, issue(KindClipTrim, SeverityError,
				fmt.Sprintf("clip %s has an empty trim window [%s,%s)", c.ID, secs(c.SourceStart), secs(c.SourceEnd)), c.ID))
		case c.Media != nil && c.SourceEnd > c.Media.Duration+epsilon:
			issues = append(issues, issue(KindClipTrim, SeverityError,
				fmt.Sprintf("clip %s trims to %ss but the source is only %ss long", c.ID, secs(c.SourceEnd), secs(c.Media.Duration)), c.ID))
		}
		if c.TimelineStart != nil && *c.TimelineStart < 0 {
			issues = append(issues, issue(KindClipTrim, SeverityError,
				fmt.Sprintf("clip %s is placed before the start of the timeline", c.ID), c.ID))
		}
		if c.TimelineStart != nil && c.TimelineEnd != nil && *c.TimelineEnd <= *c.TimelineStart {
			issues = append(issues, issue(KindClipTrim, SeverityError,
				fmt.Sprintf("clip %s ends before it starts", c.ID), c.ID))
		}
	}
	return issues
}

// CheckClipOverlap only applies in explicit mode; implicit placement cannot
// overlap.
func CheckClipOverlap(in *Input) []Issue {
	if in.Resolved.Mode != timeline.ModeExplicit {
		return nil
	}
	spans := make([]interval, 0, len(in.Resolved.Clips))
	for _, c := range in.Resolved.Clips {
		spans = append(spans, interval{id: c.ID, start: c.Start, end: c.End})
	}

	var issues []Issue
	for _, pair := range overlappingPairs(spans) {
		issues = append(issues, issue(KindClipOverlap, SeverityError,
			fmt.Sprintf("clip %s [%s,%s) overlaps clip %s [%s,%s)",
				pair[0].id, secs(pair[0].start), secs(pair[0].end),
				pair[1].id, secs(pair[1].start), secs(pair[1].end)),
			pair[0].id, pair[1].id))
	}
	return issues
}

func CheckUnplacedClips(in *Input) []Issue {
	var issues []Issue
	for _, c := range in.Resolved.Clips {
		if c.Unplaced {
			issues = append(issues, issue(KindUnplacedClip, SeverityWarning,
				fmt.Sprintf("clip %s has no timeline position and was placed at 0", c.ID), c.ID))
		}
	}
	return issues
}

func CheckOrphanSegments(in *Input) []Issue {
	var issues []Issue
	for _, s := range in.Resolved.Segments {
		if s.Orphan {
			issues = append(issues, issue(KindOrphanSegment, SeverityError,
				fmt.Sprintf("segment %s is bound to unknown clip %s", s.ID, s.ClipID), s.ID))
		}
	}
	return issues
}

func CheckSegmentBounds(in *Input) []Issue {
	var issues []Issue
	total := in.Resolved.TotalDuration
	for _, span := range in.Resolved.Segments {
		if span.Orphan {
			continue
		}
		if span.Len() <= 0 {
			issues = append(issues, issue(KindSegmentBounds, SeverityError,
				fmt.Sprintf("segment %s has non-positive length", span.ID), span.ID))
			continue
		}

		seg := in.Project.SegmentByID(span.ID)
		if !seg.IsGeneric() {
			clip, _ := in.Resolved.Clip(seg.ClipID)
			if seg.Start < 0 || seg.End > clip.Len()+epsilon {
				issues = append(issues, issue(KindSegmentBounds, SeverityError,
					fmt.Sprintf("segment %s [%s,%s) falls outside clip %s (length %ss)",
						span.ID, secs(seg.Start), secs(seg.End), clip.ID, secs(clip.Len())),
					span.ID, clip.ID))
				continue
			}
		}

		if span.Start < 0 || span.End > total+epsilon {
			issues = append(issues, issue(KindSegmentBounds, SeverityError,
				fmt.Sprintf("segment %s [%s,%s) lies outside the timeline [0,%s]",
					span.ID, secs(span.Start), secs(span.End), secs(total)),
				span.ID))
		}
	}
	return issues
}

// CheckSegmentOverlap compares every pair of segments in absolute time,
// whichever clips they belong to.
func CheckSegmentOverlap(in *Input) []Issue {
	sev := SeverityError
	if in.Project.Mix.AllowOverlappingSegments {
		sev = SeverityWarning
	}

	spans := make([]interval, 0, len(in.Resolved.Segments))
	for _, s := range in.Resolved.Segments {
		if s.Orphan || s.Len() <= 0 {
			continue
		}
		spans = append(spans, interval{id: s.ID, start: s.Start, end: s.End})
	}

	var issues []Issue
	for _, pair := range overlappingPairs(spans) {
		issues = append(issues, issue(KindSegmentOverlap, sev,
			fmt.Sprintf("segment %s [%s,%s) overlaps segment %s [%s,%s)",
				pair[0].id, secs(pair[0].start), secs(pair[0].end),
				pair[1].id, secs(pair[1].start), secs(pair[1].end)),
			pair[0].id, pair[1].id))
	}
	return issues
}

func CheckEmptyText(in *Input) []Issue {
	var issues []Issue
	for _, span := range in.Resolved.Segments {
		if seg := in.Project.SegmentByID(span.ID); !seg.HasText() {
			issues = append(issues, issue(KindEmptyText, SeverityWarning,
				fmt.Sprintf("segment %s has no narration text and will be skipped", span.ID), span.ID))
		}
	}
	return issues
}

// CheckMediaShape flags clips that will be scaled or padded to the target.
// Missing audio is not reported; silence is generated for those clips.
func CheckMediaShape(in *Input) []Issue {
	var issues []Issue
	for _, span := range in.Resolved.Clips {
		c := in.Project.ClipByID(span.ID)
		if c.Media == nil {
			issues = append(issues, issue(KindMediaUnprobed, SeverityWarning,
				fmt.Sprintf("clip %s has not been probed", c.ID), c.ID))
			continue
		}
		if !c.Matches(in.Target) {
			issues = append(issues, issue(KindMediaMismatch, SeverityWarning,
				fmt.Sprintf("clip %s is %s@%.3gfps and will be normalized to %s",
					c.ID, c.Media.Resolution(), c.Media.FrameRate, in.Target),
				c.ID))
		}
	}
	return issues
}

func CheckMusicInterval(in *Input) []Issue {
	var issues []Issue
	for _, span := range in.Resolved.Music {
		m := in.Project.MusicByID(span.ID)
		switch {
		case m.Start < 0:
			issues = append(issues, issue(KindMusicInterval, SeverityError,
				fmt.Sprintf("music layer %s starts before the timeline", m.ID), m.ID))
		case m.End <= m.Start:
			issues = append(issues, issue(KindMusicInterval, SeverityError,
				fmt.Sprintf("music layer %s has non-positive length", m.ID), m.ID))
		case m.SourceOffset < 0:
			issues = append(issues, issue(KindMusicInterval, SeverityError,
				fmt.Sprintf("music layer %s has a negative source offset", m.ID), m.ID))
		}
	}
	return issues
}

// CheckMusicCoverage warns about non-looping layers that leave silence.
func CheckMusicCoverage(in *Input) []Issue {
	var issues []Issue
	total := in.Resolved.TotalDuration
	for _, span := range in.Resolved.Music {
		m := in.Project.MusicByID(span.ID)
		if m.Muted || m.Loop || span.Len() <= 0 {
			continue
		}
		if span.Len() < total-epsilon {
			issues = append(issues, issue(KindMusicCoverage, SeverityWarning,
				fmt.Sprintf("music layer %s covers %ss of a %ss timeline and does not loop",
					m.ID, secs(span.Len()), secs(total)),
				m.ID))
		}
		if m.Media != nil {
			if playable := m.Media.Duration - m.SourceOffset; playable < span.Len()-epsilon {
				issues = append(issues, issue(KindMusicCoverage, SeverityWarning,
					fmt.Sprintf("music layer %s source runs out after %ss of its %ss span",
						m.ID, secs(playable), secs(span.Len())),
					m.ID))
			}
		}
	}
	return issues
}

func secs(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
