package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/voxreel/voxreel-agent/internal/cloud"
	"github.com/voxreel/voxreel-agent/internal/project"
	"github.com/voxreel/voxreel-agent/internal/timeline"
)

// ArtifactSink stores synthesized outputs back on the project.
type ArtifactSink interface {
	SaveArtifacts(ctx context.Context, segmentID string, a project.Artifacts) error
}

// unit is one segment that needs narration for this export.
type unit struct {
	seg  *timeline.Segment
	span timeline.SegmentSpan
}

// preprocess fills in narration audio (and captions when requested) for
// every renderable segment of p, editing p in place. Segments that fail in
// best-effort mode lose their audio and are left out of the mix.
func (m *Manager) preprocess(ctx context.Context, run *jobRun) error {
	p, r := run.project, run.resolved

	var units []unit
	for _, span := range r.Segments {
		seg := p.SegmentByID(span.ID)
		if span.Orphan || !seg.HasText() {
			continue
		}
		units = append(units, unit{seg: seg, span: span})
	}
	if len(units) == 0 {
		run.emit(StagePreprocessing, 1, "no narration to synthesize", LevelInfo)
		return nil
	}

	outDir := filepath.Join(m.cfg.ArtifactsDir, p.ID)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("create artifacts dir: %w", err)
	}

	run.emit(StagePreprocessing, 0, fmt.Sprintf("synthesizing %d segment(s)", len(units)), LevelInfo)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, m.cfg.Concurrency))

	var done atomic.Int32
	for _, u := range units {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			err := m.prepareSegment(gctx, run, u, outDir)
			n := done.Add(1)
			if err != nil {
				if !run.bestEffort || gctx.Err() != nil {
					return err
				}
				u.seg.ClearArtifacts()
				run.warn(StagePreprocessing, float64(n)/float64(len(units)),
					fmt.Sprintf("segment %s skipped: %v", u.seg.ID, err))
				return nil
			}
			run.emit(StagePreprocessing, float64(n)/float64(len(units)),
				fmt.Sprintf("segment %s ready", u.seg.ID), LevelInfo)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		return err
	}
	return nil
}

// prepareSegment makes sure u has current audio, reusing a cached
// artifact when its key matches and the file is still there.
func (m *Manager) prepareSegment(ctx context.Context, run *jobRun, u unit, outDir string) error {
	seg := u.seg
	key := seg.ContentKey()

	if !seg.HasArtifact() || !fileExists(seg.AudioPath) {
		var res *cloud.Synthesis
		attempts, err := m.cfg.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
			var err error
			res, err = m.speech.Synthesize(ctx, cloud.SynthesisRequest{
				SegmentID: seg.ID + "-" + key,
				Text:      seg.Text,
				Voice:     seg.Voice,
				OutputDir: outDir,
			})
			if err != nil && attempt > 1 && m.logger != nil {
				m.logger.Debug("speech retry failed", "segment_id", seg.ID, "attempt", attempt, "error", err)
			}
			return err
		})
		if err != nil {
			return &CollaboratorError{Op: "speech synthesis", SegmentID: seg.ID, Attempts: attempts, Err: err}
		}
		seg.AudioPath = res.AudioPath
		seg.AudioDuration = res.Duration
		seg.ArtifactKey = key
		seg.SubtitlePath = ""
	} else if m.logger != nil {
		m.logger.Debug("reusing narration artifact", "segment_id", seg.ID)
	}

	// captions carry absolute times and are re-rendered on every export
	if run.opts.Captions {
		path, attempts, err := m.renderCaptions(ctx, run, u, outDir)
		if err != nil {
			// burned-in captions are optional; the narration still plays
			run.warn(StagePreprocessing, -1, (&CollaboratorError{
				Op: "caption rendering", SegmentID: seg.ID, Attempts: attempts, Err: err,
			}).Error())
		} else {
			seg.SubtitlePath = path
		}
	}

	if m.sink != nil {
		err := m.sink.SaveArtifacts(ctx, seg.ID, project.Artifacts{
			AudioPath:     seg.AudioPath,
			AudioDuration: seg.AudioDuration,
			SubtitlePath:  seg.SubtitlePath,
			Key:           seg.ArtifactKey,
		})
		if err != nil && m.logger != nil {
			m.logger.Warn("failed to store segment artifacts", "segment_id", seg.ID, "error", err)
		}
	}
	return nil
}

func (m *Manager) renderCaptions(ctx context.Context, run *jobRun, u unit, outDir string) (string, int, error) {
	var path string
	name := fmt.Sprintf("%s-%s-%d", u.seg.ID, u.seg.ContentKey(), int64(u.span.Start*1000))
	attempts, err := m.cfg.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
		var err error
		path, err = m.captions.RenderCaptions(ctx, cloud.CaptionRequest{
			SegmentID: name,
			Text:      u.seg.Text,
			Start:     u.span.Start,
			End:       u.span.End,
			Style:     run.opts.CaptionStyle,
			OutputDir: outDir,
		})
		return err
	})
	return path, attempts, err
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}
