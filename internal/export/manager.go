package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxreel/voxreel-agent/internal/cloud"
	"github.com/voxreel/voxreel-agent/internal/config"
	"github.com/voxreel/voxreel-agent/internal/graph"
	"github.com/voxreel/voxreel-agent/internal/logging"
	"github.com/voxreel/voxreel-agent/internal/render"
	"github.com/voxreel/voxreel-agent/internal/retry"
	"github.com/voxreel/voxreel-agent/internal/timeline"
	"github.com/voxreel/voxreel-agent/internal/validator"
)

const subscriberBuffer = 32

// Config holds the manager's policy knobs.
type Config struct {
	WorkDir      string
	ArtifactsDir string
	ExportsDir   string

	Concurrency          int
	Retry                retry.Policy
	BestEffort           bool
	MaxConcurrentEncodes int
	DefaultPreset        config.Preset
	Levels               timeline.Levels
	// Target overrides the canonical output format when set.
	Target timeline.Format
}

// ConfigFrom derives manager settings from the agent configuration.
func ConfigFrom(cfg config.Config) Config {
	return Config{
		WorkDir:              cfg.WorkDir(),
		ArtifactsDir:         cfg.ArtifactsDir(),
		ExportsDir:           cfg.ExportsDir(),
		Concurrency:          cfg.PreprocessConcurrency(),
		Retry:                retry.NewPolicy(cfg.RetryAttempts(), cfg.RetryBackoff()),
		BestEffort:           cfg.BestEffort(),
		MaxConcurrentEncodes: cfg.MaxConcurrentEncodes(),
		DefaultPreset:        cfg.DefaultPreset(),
		Levels: timeline.Levels{
			OriginalVolume: config.DefaultOriginalVolume,
			NarrationGain:  cfg.NarrationGain(),
			MusicReduction: cfg.MusicReduction(),
		},
	}
}

// Manager runs export jobs. Each job is an independent goroutine; encodes
// across jobs share a bounded number of slots.
type Manager struct {
	cfg      Config
	speech   cloud.Synthesizer
	captions cloud.CaptionRenderer
	engine   render.Engine
	store    JobStore
	sink     ArtifactSink
	logger   *slog.Logger

	encodeSlots chan struct{}

	mu   sync.RWMutex
	jobs map[string]*jobRun
	wg   sync.WaitGroup
}

// NewManager builds a manager. store and sink may be nil.
func NewManager(cfg Config, client cloud.Client, engine render.Engine, store JobStore, sink ArtifactSink, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy
	}
	if cfg.DefaultPreset == "" {
		cfg.DefaultPreset = config.PresetStandard
	}
	if cfg.Levels == (timeline.Levels{}) {
		cfg.Levels = timeline.Levels{
			OriginalVolume: config.DefaultOriginalVolume,
			NarrationGain:  config.DefaultNarrationGain,
			MusicReduction: config.DefaultMusicReduction,
		}
	}
	m := &Manager{
		cfg:         cfg,
		speech:      client.Speech(),
		captions:    client.Captions(),
		engine:      engine,
		store:       store,
		sink:        sink,
		logger:      logging.WithComponent(logger, "export"),
		encodeSlots: make(chan struct{}, max(1, cfg.MaxConcurrentEncodes)),
		jobs:        make(map[string]*jobRun),
	}
	m.sweepWorkDir()
	return m
}

// sweepWorkDir removes scratch directories left by a previous process.
func (m *Manager) sweepWorkDir() {
	if m.cfg.WorkDir == "" {
		return
	}
	entries, err := os.ReadDir(m.cfg.WorkDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		os.RemoveAll(filepath.Join(m.cfg.WorkDir, e.Name()))
	}
	if len(entries) > 0 {
		m.logger.Info("removed stale export work directories", "count", len(entries))
	}
}

// Validate resolves p and checks it without starting anything.
func (m *Manager) Validate(p *timeline.Project) (*timeline.Resolved, *validator.Report) {
	r := timeline.Resolve(p)
	return r, validator.Validate(p, r, validator.Options{Target: m.cfg.Target})
}

// StartExport validates p synchronously and, if it can be exported,
// starts the pipeline in the background. A blocked export still gets a
// job id (its record ends failed with reason validation) and the error is
// a *ValidationError.
func (m *Manager) StartExport(ctx context.Context, p *timeline.Project, opts Options) (string, error) {
	preset := opts.Preset
	if preset == "" {
		preset = m.cfg.DefaultPreset
	}
	settings, err := render.SettingsFor(preset)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.NewString(),
		ProjectID: p.ID,
		Status:    JobStatusRunning,
		Stage:     StageValidating,
		Preset:    string(preset),
		CreatedAt: now,
		UpdatedAt: now,
		StartedAt: &now,
	}
	job.OutputPath = opts.OutputPath
	if job.OutputPath == "" {
		name := SanitizeName(p.Name, 80)
		if name == "" {
			name = "export"
		}
		job.OutputPath = filepath.Join(m.cfg.ExportsDir, fmt.Sprintf("%s-%s.mp4", name, job.ID[:8]))
	}
	if err := ValidateOutputPath(job.OutputPath); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	run := &jobRun{
		m:          m,
		job:        job,
		project:    cloneProject(p),
		opts:       opts,
		settings:   settings,
		bestEffort: m.cfg.BestEffort,
		logger:     logging.WithProjectID(logging.WithJobID(m.logger, job.ID), p.ID),
		done:       make(chan struct{}),
	}
	if opts.BestEffort != nil {
		run.bestEffort = *opts.BestEffort
	}
	if m.store != nil {
		if err := m.store.CreateJob(ctx, job); err != nil {
			return "", fmt.Errorf("create job record: %w", err)
		}
	}

	m.mu.Lock()
	m.jobs[job.ID] = run
	m.mu.Unlock()

	run.emit(StageValidating, 0, "validating timeline", LevelInfo)
	r, report := m.Validate(run.project)
	run.resolved = r
	for _, w := range report.Warnings() {
		run.warn(StageValidating, -1, w.Message)
	}
	if !report.CanExport {
		verr := &ValidationError{Report: report}
		run.finish(verr)
		return job.ID, verr
	}
	run.emit(StageValidating, 1, "timeline is valid", LevelInfo)

	jobCtx, cancel := context.WithCancel(context.Background())
	run.mu.Lock()
	run.cancel = cancel
	run.mu.Unlock()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		run.finish(m.execute(jobCtx, run))
	}()
	return job.ID, nil
}

// execute runs every stage after validation.
func (m *Manager) execute(ctx context.Context, run *jobRun) error {
	workDir := filepath.Join(m.cfg.WorkDir, run.job.ID)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	run.setStage(StagePreprocessing)
	if err := m.preprocess(ctx, run); err != nil {
		return err
	}

	if ctx.Err() != nil {
		return ErrCancelled
	}
	run.setStage(StageGraphBuilding)
	g, err := graph.Build(run.project, run.resolved, graph.Options{
		Target:   m.cfg.Target,
		Levels:   run.project.Mix.Levels(m.cfg.Levels),
		Captions: run.opts.Captions,
	})
	if err != nil {
		return fmt.Errorf("build graph: %w", err)
	}
	desc, err := graph.Serialize(g)
	if err != nil {
		return fmt.Errorf("serialize graph: %w", err)
	}
	run.emit(StageGraphBuilding, 1, fmt.Sprintf("graph ready: %d nodes, %d inputs", len(g.Nodes), len(desc.Inputs)), LevelInfo)

	tmpOut := filepath.Join(workDir, "output"+filepath.Ext(run.job.OutputPath))
	if err := m.encode(ctx, run, desc, tmpOut); err != nil {
		return err
	}

	run.setStage(StageFinalizing)
	if err := finalize(tmpOut, run.job.OutputPath); err != nil {
		return err
	}
	run.emit(StageFinalizing, 1, "output written", LevelInfo)
	return nil
}

func (m *Manager) encode(ctx context.Context, run *jobRun, desc *graph.Description, outPath string) error {
	run.setStage(StageEncoding)
	select {
	case m.encodeSlots <- struct{}{}:
	case <-ctx.Done():
		return ErrCancelled
	}
	defer func() { <-m.encodeSlots }()

	run.emit(StageEncoding, 0, fmt.Sprintf("encoding %.1fs of media", desc.Duration), LevelInfo)
	res, err := m.engine.Run(ctx, render.Request{
		Description: desc,
		Settings:    run.settings,
		OutputPath:  outPath,
	}, func(p render.Progress) {
		run.progress(StageEncoding, p.Fraction(desc.Duration), p.ETA(desc.Duration))
	})
	if err == nil && res.IsSuccess() {
		run.mu.Lock()
		run.encoded = true
		run.mu.Unlock()
		run.logger.Info("encode finished", "duration", res.Duration)
		return nil
	}
	if ctx.Err() != nil {
		return ErrCancelled
	}
	if err != nil {
		return fmt.Errorf("run encoder: %w", err)
	}
	return &EncodingError{ExitCode: res.ExitCode, StderrTail: res.StderrTail}
}

// finalize checks the encoder output and moves it to its final path.
func finalize(tmp, dest string) error {
	info, err := os.Stat(tmp)
	if err != nil {
		return fmt.Errorf("encoder produced no output: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("encoder produced an empty file")
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.Rename(tmp, dest); err == nil {
		return nil
	}
	// rename fails across filesystems
	return copyFile(tmp, dest)
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	part := dest + ".part"
	out, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(part)
		return fmt.Errorf("copy output: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(part)
		return err
	}
	return os.Rename(part, dest)
}

// Subscribe streams events for a job. A finished job yields its terminal
// event and a closed channel. Call the returned func to unsubscribe.
func (m *Manager) Subscribe(jobID string) (<-chan Event, func(), error) {
	m.mu.RLock()
	run, ok := m.jobs[jobID]
	m.mu.RUnlock()
	if !ok {
		return nil, nil, ErrJobNotFound
	}
	return run.subscribe()
}

// Cancel stops a job. Jobs that already finished encoding run to
// completion.
func (m *Manager) Cancel(jobID string) error {
	m.mu.RLock()
	run, ok := m.jobs[jobID]
	m.mu.RUnlock()
	if !ok {
		return ErrJobNotFound
	}
	if !run.cancellable() {
		return fmt.Errorf("job %s is %s and can no longer be cancelled", jobID, run.snapshot().Stage)
	}
	run.logger.Info("cancelling export")
	run.cancel()
	return nil
}

// CancelAll cancels every running job and returns how many were signalled.
func (m *Manager) CancelAll() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, run := range m.jobs {
		if run.cancellable() {
			run.cancel()
			n++
		}
	}
	return n
}

// Active returns the number of jobs still running.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, run := range m.jobs {
		if !run.snapshot().Stage.IsTerminal() {
			n++
		}
	}
	return n
}

// Status returns the job's current record, from memory or the store.
func (m *Manager) Status(ctx context.Context, jobID string) (*Job, error) {
	m.mu.RLock()
	run, ok := m.jobs[jobID]
	m.mu.RUnlock()
	if ok {
		return run.snapshot(), nil
	}
	if m.store != nil {
		job, err := m.store.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}
	}
	return nil, ErrJobNotFound
}

// List returns recent jobs, newest first. projectID may be empty.
func (m *Manager) List(ctx context.Context, projectID string, limit int) ([]*Job, error) {
	if m.store != nil {
		return m.store.ListJobs(ctx, projectID, limit)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var jobs []*Job
	for _, run := range m.jobs {
		if j := run.snapshot(); projectID == "" || j.ProjectID == projectID {
			jobs = append(jobs, j)
		}
	}
	return jobs, nil
}

// Done returns a channel closed when the job reaches a terminal state.
func (m *Manager) Done(jobID string) (<-chan struct{}, error) {
	m.mu.RLock()
	run, ok := m.jobs[jobID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrJobNotFound
	}
	return run.done, nil
}

// Wait blocks until every background job has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels all jobs and waits for them, up to ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.CancelAll()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// jobRun is the live state of one job.
type jobRun struct {
	m          *Manager
	project    *timeline.Project
	resolved   *timeline.Resolved
	opts       Options
	settings   render.EncodeSettings
	bestEffort bool
	logger     *slog.Logger
	cancel     context.CancelFunc
	done       chan struct{}

	mu       sync.Mutex
	job      *Job
	percent  float64
	subs     map[chan Event]struct{}
	terminal *Event
	// encoded is set once the engine succeeded; the output is kept from then on.
	encoded bool
}

func (r *jobRun) snapshot() *Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := *r.job
	j.Warnings = append([]string(nil), r.job.Warnings...)
	return &j
}

// cancellable reports whether Cancel still has an effect.
func (r *jobRun) cancellable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil || r.encoded || r.job.Stage.IsTerminal() {
		return false
	}
	return r.job.Stage != StageFinalizing
}

func (r *jobRun) setStage(s Stage) {
	r.mu.Lock()
	r.job.Stage = s
	r.job.UpdatedAt = time.Now().UTC()
	record := *r.job
	r.mu.Unlock()

	r.logger.Info("export stage changed", "stage", s)
	if r.m.store != nil {
		if err := r.m.store.UpdateJob(context.Background(), &record); err != nil {
			r.logger.Warn("failed to persist job stage", "error", err)
		}
	}
	r.emit(s, 0, string(s), LevelInfo)
}

// emit publishes an event at fraction of stage s. A negative fraction
// keeps the current percent.
func (r *jobRun) emit(s Stage, fraction float64, msg string, level Level) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publish(r.event(s, fraction, msg, level, 0), false)
}

func (r *jobRun) warn(s Stage, fraction float64, msg string) {
	r.logger.Warn("export warning", "stage", s, "message", msg)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.job.Warnings = append(r.job.Warnings, msg)
	r.publish(r.event(s, fraction, msg, LevelWarning, 0), false)
}

func (r *jobRun) progress(s Stage, fraction, eta float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publish(r.event(s, fraction, fmt.Sprintf("%s %.0f%%", s, fraction*100), LevelInfo, eta), false)
}

// event builds the next event. r.mu must be held.
func (r *jobRun) event(s Stage, fraction float64, msg string, level Level, eta float64) Event {
	if fraction >= 0 {
		// percent never moves backwards
		r.percent = max(r.percent, s.percent(fraction))
		r.job.Progress = int(r.percent)
	}
	return Event{
		JobID:      r.job.ID,
		Stage:      s,
		Message:    msg,
		Percent:    r.percent,
		ETASeconds: eta,
		Level:      level,
		Time:       time.Now().UTC(),
	}
}

// publish fans e out to subscribers. Progress is dropped for slow
// subscribers; a terminal event evicts the oldest queued event so it is
// always delivered. r.mu must be held.
func (r *jobRun) publish(e Event, terminal bool) {
	if r.terminal != nil {
		return
	}
	for ch := range r.subs {
		select {
		case ch <- e:
			continue
		default:
		}
		if terminal {
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- e:
			default:
			}
		}
	}
	if terminal {
		r.terminal = &e
		for ch := range r.subs {
			close(ch)
		}
		r.subs = nil
	}
}

func (r *jobRun) subscribe() (<-chan Event, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan Event, subscriberBuffer)
	if r.terminal != nil {
		ch <- *r.terminal
		close(ch)
		return ch, func() {}, nil
	}
	if r.subs == nil {
		r.subs = make(map[chan Event]struct{})
	}
	r.subs[ch] = struct{}{}
	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.subs[ch]; ok {
			delete(r.subs, ch)
			close(ch)
		}
	}, nil
}

// finish records the outcome, persists it and emits the terminal event.
func (r *jobRun) finish(err error) {
	now := time.Now().UTC()
	var e Event

	r.mu.Lock()
	stage := r.job.Stage
	j := r.job
	j.UpdatedAt = now
	j.CompletedAt = &now
	switch {
	case err == nil:
		j.Status, j.Stage, j.Progress = JobStatusCompleted, StageCompleted, 100
		r.percent = 100
	case errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled):
		j.Status, j.Stage = JobStatusCancelled, StageCancelled
		j.Error = ErrCancelled.Error()
	default:
		j.Status, j.Stage = JobStatusFailed, StageFailed
		j.Reason = reasonFor(stage, err)
		j.Error = err.Error()
	}
	if err != nil {
		j.Progress = int(r.percent)
	}
	e = Event{JobID: j.ID, Stage: j.Stage, Percent: r.percent, Level: LevelInfo, Time: now}
	switch j.Stage {
	case StageCompleted:
		e.Message = "export completed"
		e.OutputPath = j.OutputPath
	case StageCancelled:
		e.Message = "export cancelled"
		e.Level = LevelWarning
	default:
		e.Message = j.Error
		e.Level = LevelError
	}
	record := *j
	r.mu.Unlock()

	if err == nil {
		r.logger.Info("export completed", "output", logging.SanitizePath(record.OutputPath))
	} else {
		r.logger.Error("export ended", "status", record.Status, "reason", record.Reason, "error", err)
	}

	if r.m.store != nil {
		if serr := r.m.store.UpdateJob(context.Background(), &record); serr != nil {
			r.logger.Error("failed to persist job", "error", serr)
		}
	}
	r.mu.Lock()
	r.publish(e, true)
	r.mu.Unlock()
	close(r.done)
}

// cloneProject copies p so the job can fill in artifacts without
// touching the caller's model.
func cloneProject(p *timeline.Project) *timeline.Project {
	c := *p
	c.Clips = append([]timeline.Clip(nil), p.Clips...)
	c.Segments = append([]timeline.Segment(nil), p.Segments...)
	c.Music = append([]timeline.MusicLayer(nil), p.Music...)
	return &c
}
