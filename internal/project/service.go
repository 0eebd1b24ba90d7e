// Package project stores editable timelines and applies edits to them.
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/google/uuid"
	"github.com/voxreel/voxreel-agent/internal/media"
	"github.com/voxreel/voxreel-agent/internal/timeline"
)

var (
	// ErrNotFound is returned when a project or one of its entities does
	// not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalid wraps edits that would break the model.
	ErrInvalid = errors.New("invalid edit")
)

// ClipInput describes a clip to ingest. Nil SourceEnd means the full
// probed duration.
type ClipInput struct {
	Path          string
	SourceStart   float64
	SourceEnd     *float64
	TimelineStart *float64
	TimelineEnd   *float64
}

// Placement changes where a clip sits on the timeline. ClearExplicit
// removes TimelineStart and TimelineEnd.
type Placement struct {
	TimelineStart *float64
	TimelineEnd   *float64
	ClearExplicit bool
}

// SegmentPatch holds optional segment field updates.
type SegmentPatch struct {
	ClipID *string
	Start  *float64
	End    *float64
	Text   *string
	Voice  *timeline.VoiceParams
}

// MusicPatch holds optional music layer field updates.
type MusicPatch struct {
	Order        *int
	Path         *string
	Start        *float64
	End          *float64
	SourceOffset *float64
	Volume       *float64
	FadeIn       *float64
	FadeOut      *float64
	Loop         *bool
	Muted        *bool
}

type Service struct {
	repo   Repository
	prober media.Prober
	logger *slog.Logger
}

// NewService builds the project service. prober is normally a
// *media.Cache and may be nil, in which case clips are stored unprobed.
func NewService(repo Repository, prober media.Prober, logger *slog.Logger) *Service {
	return &Service{repo: repo, prober: prober, logger: logger}
}

func NewID() string {
	return uuid.NewString()
}

func (s *Service) CreateProject(ctx context.Context, name string) (*timeline.Project, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: project name is required", ErrInvalid)
	}
	p := &timeline.Project{
		ID:       NewID(),
		Name:     name,
		Clips:    []timeline.Clip{},
		Segments: []timeline.Segment{},
		Music:    []timeline.MusicLayer{},
	}
	if err := s.repo.CreateProject(ctx, p); err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Info("project created", "project_id", p.ID, "name", name)
	}
	return p, nil
}

// Import stores a complete project, typically read from a project file.
// Missing ids are generated.
func (s *Service) Import(ctx context.Context, p *timeline.Project) error {
	if p.ID == "" {
		p.ID = NewID()
	}
	for i := range p.Clips {
		if p.Clips[i].ID == "" {
			p.Clips[i].ID = NewID()
		}
	}
	for i := range p.Segments {
		if p.Segments[i].ID == "" {
			p.Segments[i].ID = NewID()
		}
	}
	for i := range p.Music {
		if p.Music[i].ID == "" {
			p.Music[i].ID = NewID()
		}
	}
	return s.repo.ImportProject(ctx, p)
}

// GetProject loads a project and attaches media descriptors.
func (s *Service) GetProject(ctx context.Context, id string) (*timeline.Project, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	Hydrate(ctx, p, s.prober, s.logger)
	return p, nil
}

func (s *Service) load(ctx context.Context, id string) (*timeline.Project, error) {
	p, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return p, nil
}

func (s *Service) ListProjects(ctx context.Context) ([]*Summary, error) {
	return s.repo.ListProjects(ctx)
}

// UpdateProject renames the project and replaces its mix settings when
// given.
func (s *Service) UpdateProject(ctx context.Context, id string, name *string, mix *timeline.MixSettings) (*timeline.Project, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if name != nil {
		if *name == "" {
			return nil, fmt.Errorf("%w: project name is required", ErrInvalid)
		}
		p.Name = *name
	}
	if mix != nil {
		p.Mix = *mix
	}
	if err := s.repo.UpdateProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) DeleteProject(ctx context.Context, id string) error {
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	return s.repo.DeleteProject(ctx, id)
}

// AddClip probes the source and appends the clip after the current last
// Order.
func (s *Service) AddClip(ctx context.Context, projectID string, in ClipInput) (*timeline.Clip, error) {
	p, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}

	path, err := filepath.Abs(in.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid path: %v", ErrInvalid, err)
	}

	var desc *media.Descriptor
	if s.prober != nil {
		desc, err = s.prober.Probe(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("%w: probe %s: %v", ErrInvalid, filepath.Base(path), err)
		}
		if !desc.HasVideo() {
			return nil, fmt.Errorf("%w: %s has no video stream", ErrInvalid, filepath.Base(path))
		}
	}

	c := timeline.Clip{
		ID:            NewID(),
		Path:          path,
		SourceStart:   in.SourceStart,
		TimelineStart: in.TimelineStart,
		TimelineEnd:   in.TimelineEnd,
		Media:         desc,
	}
	switch {
	case in.SourceEnd != nil:
		c.SourceEnd = *in.SourceEnd
	case desc != nil:
		c.SourceEnd = desc.Duration
	default:
		return nil, fmt.Errorf("%w: source_end is required when media cannot be probed", ErrInvalid)
	}
	if err := checkTrim(&c); err != nil {
		return nil, err
	}

	for _, existing := range p.Clips {
		c.Order = max(c.Order, existing.Order+1)
	}

	if err := s.repo.InsertClip(ctx, projectID, &c); err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Info("clip added", "project_id", projectID, "clip_id", c.ID, "order", c.Order, "duration", c.Duration())
	}
	return &c, nil
}

func (s *Service) clip(ctx context.Context, projectID, clipID string) (*timeline.Project, *timeline.Clip, error) {
	p, err := s.load(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	c := p.ClipByID(clipID)
	if c == nil {
		return nil, nil, fmt.Errorf("clip %s: %w", clipID, ErrNotFound)
	}
	return p, c, nil
}

// RepositionClip sets or clears the clip's explicit placement.
func (s *Service) RepositionClip(ctx context.Context, projectID, clipID string, pl Placement) (*timeline.Clip, error) {
	_, c, err := s.clip(ctx, projectID, clipID)
	if err != nil {
		return nil, err
	}
	if pl.ClearExplicit {
		c.TimelineStart, c.TimelineEnd = nil, nil
	} else {
		if pl.TimelineStart != nil {
			if *pl.TimelineStart < 0 {
				return nil, fmt.Errorf("%w: timeline_start must not be negative", ErrInvalid)
			}
			c.TimelineStart = pl.TimelineStart
		}
		if pl.TimelineEnd != nil {
			c.TimelineEnd = pl.TimelineEnd
		}
		if c.TimelineStart != nil && c.TimelineEnd != nil && *c.TimelineEnd <= *c.TimelineStart {
			return nil, fmt.Errorf("%w: timeline_end must be after timeline_start", ErrInvalid)
		}
	}
	if err := s.repo.UpdateClip(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// TrimClip changes the clip's source window.
func (s *Service) TrimClip(ctx context.Context, projectID, clipID string, start, end float64) (*timeline.Clip, error) {
	_, c, err := s.clip(ctx, projectID, clipID)
	if err != nil {
		return nil, err
	}
	c.SourceStart, c.SourceEnd = start, end
	if s.prober != nil {
		if d, err := s.prober.Probe(ctx, c.Path); err == nil {
			c.Media = d
		}
	}
	if err := checkTrim(c); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateClip(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func checkTrim(c *timeline.Clip) error {
	if c.SourceStart < 0 {
		return fmt.Errorf("%w: source_start must not be negative", ErrInvalid)
	}
	if c.SourceEnd <= c.SourceStart {
		return fmt.Errorf("%w: source_end must be after source_start", ErrInvalid)
	}
	if c.Media != nil && c.Media.Duration > 0 && c.SourceEnd > c.Media.Duration+1e-3 {
		return fmt.Errorf("%w: source_end %.3fs is beyond media duration %.3fs", ErrInvalid, c.SourceEnd, c.Media.Duration)
	}
	return nil
}

// DeleteClip removes the clip together with the segments bound to it.
func (s *Service) DeleteClip(ctx context.Context, projectID, clipID string) error {
	p, _, err := s.clip(ctx, projectID, clipID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteClip(ctx, clipID); err != nil {
		return err
	}
	if s.logger != nil {
		bound := 0
		for _, seg := range p.Segments {
			if seg.ClipID == clipID {
				bound++
			}
		}
		s.logger.Info("clip deleted", "project_id", projectID, "clip_id", clipID, "segments_removed", bound)
	}
	return nil
}

// ReorderClips sets Order by position in ids, which must list every clip
// of the project exactly once.
func (s *Service) ReorderClips(ctx context.Context, projectID string, ids []string) error {
	p, err := s.load(ctx, projectID)
	if err != nil {
		return err
	}
	if len(ids) != len(p.Clips) {
		return fmt.Errorf("%w: expected %d clip ids, got %d", ErrInvalid, len(p.Clips), len(ids))
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if p.ClipByID(id) == nil {
			return fmt.Errorf("clip %s: %w", id, ErrNotFound)
		}
		if seen[id] {
			return fmt.Errorf("%w: clip %s listed twice", ErrInvalid, id)
		}
		seen[id] = true
	}
	return s.repo.ReorderClips(ctx, projectID, ids)
}

// AddSegment stores a new narration segment. Timing is checked against
// the model only; overlaps are reported by validation, not rejected here.
func (s *Service) AddSegment(ctx context.Context, projectID string, seg timeline.Segment) (*timeline.Segment, error) {
	p, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	seg.ID = NewID()
	seg.ClearArtifacts()
	if err := checkSegment(p, &seg); err != nil {
		return nil, err
	}
	if err := s.repo.InsertSegment(ctx, projectID, &seg); err != nil {
		return nil, err
	}
	return &seg, nil
}

// UpdateSegment applies patch. Changing text or voice drops the
// synthesized artifacts.
func (s *Service) UpdateSegment(ctx context.Context, projectID, segmentID string, patch SegmentPatch) (*timeline.Segment, error) {
	p, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	seg := p.SegmentByID(segmentID)
	if seg == nil {
		return nil, fmt.Errorf("segment %s: %w", segmentID, ErrNotFound)
	}

	if patch.ClipID != nil {
		seg.ClipID = *patch.ClipID
	}
	if patch.Start != nil {
		seg.Start = *patch.Start
	}
	if patch.End != nil {
		seg.End = *patch.End
	}
	contentChanged := false
	if patch.Text != nil && *patch.Text != seg.Text {
		seg.Text = *patch.Text
		contentChanged = true
	}
	if patch.Voice != nil && *patch.Voice != seg.Voice {
		seg.Voice = *patch.Voice
		contentChanged = true
	}
	if contentChanged {
		seg.ClearArtifacts()
	}
	if err := checkSegment(p, seg); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateSegment(ctx, seg); err != nil {
		return nil, err
	}
	return seg, nil
}

func checkSegment(p *timeline.Project, seg *timeline.Segment) error {
	if seg.End <= seg.Start {
		return fmt.Errorf("%w: segment end must be after start", ErrInvalid)
	}
	if seg.Voice.Speed < 0 {
		return fmt.Errorf("%w: voice speed must not be negative", ErrInvalid)
	}
	if !seg.IsGeneric() && p.ClipByID(seg.ClipID) == nil {
		return fmt.Errorf("clip %s: %w", seg.ClipID, ErrNotFound)
	}
	return nil
}

func (s *Service) DeleteSegment(ctx context.Context, projectID, segmentID string) error {
	p, err := s.load(ctx, projectID)
	if err != nil {
		return err
	}
	if p.SegmentByID(segmentID) == nil {
		return fmt.Errorf("segment %s: %w", segmentID, ErrNotFound)
	}
	return s.repo.DeleteSegment(ctx, segmentID)
}

// SaveArtifacts records synthesized outputs for a segment. The export
// pipeline calls it after preprocessing.
func (s *Service) SaveArtifacts(ctx context.Context, segmentID string, a Artifacts) error {
	return s.repo.SaveArtifacts(ctx, segmentID, a)
}

func (s *Service) AddMusic(ctx context.Context, projectID string, m timeline.MusicLayer) (*timeline.MusicLayer, error) {
	p, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	path, err := filepath.Abs(m.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid path: %v", ErrInvalid, err)
	}
	m.ID = NewID()
	m.Path = path
	if m.Order == 0 {
		for _, existing := range p.Music {
			m.Order = max(m.Order, existing.Order+1)
		}
	}
	if err := checkMusic(&m); err != nil {
		return nil, err
	}
	if s.prober != nil {
		if d, err := s.prober.Probe(ctx, path); err == nil {
			m.Media = d
		} else if s.logger != nil {
			s.logger.Warn("music probe failed", "path", path, "error", err)
		}
	}
	if err := s.repo.InsertMusic(ctx, projectID, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Service) UpdateMusic(ctx context.Context, projectID, musicID string, patch MusicPatch) (*timeline.MusicLayer, error) {
	p, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	m := p.MusicByID(musicID)
	if m == nil {
		return nil, fmt.Errorf("music layer %s: %w", musicID, ErrNotFound)
	}
	apply(&m.Order, patch.Order)
	apply(&m.Path, patch.Path)
	apply(&m.Start, patch.Start)
	apply(&m.End, patch.End)
	apply(&m.SourceOffset, patch.SourceOffset)
	apply(&m.Volume, patch.Volume)
	apply(&m.FadeIn, patch.FadeIn)
	apply(&m.FadeOut, patch.FadeOut)
	apply(&m.Loop, patch.Loop)
	apply(&m.Muted, patch.Muted)
	if err := checkMusic(m); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateMusic(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func apply[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func checkMusic(m *timeline.MusicLayer) error {
	switch {
	case m.Path == "":
		return fmt.Errorf("%w: music path is required", ErrInvalid)
	case m.End <= m.Start:
		return fmt.Errorf("%w: music end must be after start", ErrInvalid)
	case m.Start < 0 || m.SourceOffset < 0:
		return fmt.Errorf("%w: music start and source offset must not be negative", ErrInvalid)
	case m.Volume < 0 || m.FadeIn < 0 || m.FadeOut < 0:
		return fmt.Errorf("%w: volume and fades must not be negative", ErrInvalid)
	}
	return nil
}

func (s *Service) DeleteMusic(ctx context.Context, projectID, musicID string) error {
	p, err := s.load(ctx, projectID)
	if err != nil {
		return err
	}
	if p.MusicByID(musicID) == nil {
		return fmt.Errorf("music layer %s: %w", musicID, ErrNotFound)
	}
	return s.repo.DeleteMusic(ctx, musicID)
}

// Hydrate attaches media descriptors to clips and music layers. Files that
// cannot be probed are left with nil Media and logged.
func Hydrate(ctx context.Context, p *timeline.Project, prober media.Prober, logger *slog.Logger) {
	if prober == nil {
		return
	}
	paths := make([]string, 0, len(p.Clips)+len(p.Music))
	for _, c := range p.Clips {
		paths = append(paths, c.Path)
	}
	for _, m := range p.Music {
		paths = append(paths, m.Path)
	}
	slices.Sort(paths)
	paths = slices.Compact(paths)

	descs := make(map[string]*media.Descriptor, len(paths))
	for _, path := range paths {
		d, err := prober.Probe(ctx, path)
		if err != nil {
			if logger != nil {
				logger.Warn("media probe failed", "path", path, "error", err)
			}
			continue
		}
		descs[path] = d
	}
	for i := range p.Clips {
		p.Clips[i].Media = descs[p.Clips[i].Path]
	}
	for i := range p.Music {
		p.Music[i].Media = descs[p.Music[i].Path]
	}
}
