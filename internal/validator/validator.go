// Package validator checks a resolved timeline for scheduling conflicts
// and reports whether it can be exported.
package validator

import (
	"github.com/voxreel/voxreel-agent/internal/timeline"
)

// Severity separates blocking problems from advisories.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Kind identifies the check that produced an issue.
type Kind string

const (
	KindNoClips        Kind = "no_clips"
	KindDuplicateID    Kind = "duplicate_id"
	KindClipOrder      Kind = "clip_order"
	KindClipTrim       Kind = "clip_trim"
	KindClipOverlap    Kind = "clip_overlap"
	KindUnplacedClip   Kind = "unplaced_clip"
	KindSegmentOverlap Kind = "segment_overlap"
	KindSegmentBounds  Kind = "segment_bounds"
	KindOrphanSegment  Kind = "orphan_segment"
	KindEmptyText      Kind = "empty_text"
	KindMediaMismatch  Kind = "media_mismatch"
	KindMediaUnprobed  Kind = "media_unprobed"
	KindMusicInterval  Kind = "music_interval"
	KindMusicCoverage  Kind = "music_coverage"
)

// Issue is a single finding.
type Issue struct {
	Kind       Kind     `json:"kind"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	RelatedIDs []string `json:"related_ids"`
}

// Report is the ordered result of all checks.
type Report struct {
	Issues    []Issue `json:"issues"`
	CanExport bool    `json:"can_export"`
}

// Errors returns the blocking issues.
func (r *Report) Errors() []Issue {
	return r.filter(SeverityError)
}

// Warnings returns the non-blocking issues.
func (r *Report) Warnings() []Issue {
	return r.filter(SeverityWarning)
}

func (r *Report) filter(sev Severity) []Issue {
	var out []Issue
	for _, is := range r.Issues {
		if is.Severity == sev {
			out = append(out, is)
		}
	}
	return out
}

// Input is what every check sees.
type Input struct {
	Project  *timeline.Project
	Resolved *timeline.Resolved
	// Target is the canonical output format.
	Target timeline.Format
}

// Check inspects one aspect of the timeline.
type Check func(in *Input) []Issue

// DefaultChecks run in this order; the report keeps it.
var DefaultChecks = []Check{
	CheckNoClips,
	CheckDuplicateIDs,
	CheckClipOrder,
	CheckClipTrim,
	CheckClipOverlap,
	CheckUnplacedClips,
	CheckOrphanSegments,
	CheckSegmentBounds,
	CheckSegmentOverlap,
	CheckEmptyText,
	CheckMediaShape,
	CheckMusicInterval,
	CheckMusicCoverage,
}

// Options adjusts validation.
type Options struct {
	// Target overrides the canonical output format.
	Target timeline.Format
	// Checks replaces DefaultChecks when non-nil.
	Checks []Check
}

// Validate runs checks against p and its resolution r. When r is nil the
// project is resolved first.
func Validate(p *timeline.Project, r *timeline.Resolved, opts Options) *Report {
	if r == nil {
		r = timeline.Resolve(p)
	}
	in := &Input{
		Project:  p,
		Resolved: r,
		Target:   timeline.CanonicalFormat(p, opts.Target),
	}

	checks := opts.Checks
	if checks == nil {
		checks = DefaultChecks
	}

	report := &Report{Issues: []Issue{}, CanExport: true}
	for _, check := range checks {
		for _, is := range check(in) {
			if is.Severity == SeverityError {
				report.CanExport = false
			}
			report.Issues = append(report.Issues, is)
		}
	}
	return report
}

func issue(kind Kind, sev Severity, msg string, ids ...string) Issue {
	return Issue{Kind: kind, Severity: sev, Message: msg, RelatedIDs: ids}
}
