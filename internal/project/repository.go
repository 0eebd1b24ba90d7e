package project

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/voxreel/voxreel-agent/internal/timeline"
)

// Summary is a project listing row.
type Summary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Clips     int       `json:"clips"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Artifacts are the synthesized outputs of one segment.
type Artifacts struct {
	AudioPath     string
	AudioDuration float64
	SubtitlePath  string
	Key           string
}

type Repository interface {
	CreateProject(ctx context.Context, p *timeline.Project) error
	GetProject(ctx context.Context, id string) (*timeline.Project, error)
	ListProjects(ctx context.Context) ([]*Summary, error)
	UpdateProject(ctx context.Context, p *timeline.Project) error
	DeleteProject(ctx context.Context, id string) error
	ImportProject(ctx context.Context, p *timeline.Project) error

	InsertClip(ctx context.Context, projectID string, c *timeline.Clip) error
	UpdateClip(ctx context.Context, c *timeline.Clip) error
	DeleteClip(ctx context.Context, id string) error
	ReorderClips(ctx context.Context, projectID string, ids []string) error

	InsertSegment(ctx context.Context, projectID string, s *timeline.Segment) error
	UpdateSegment(ctx context.Context, s *timeline.Segment) error
	DeleteSegment(ctx context.Context, id string) error
	SaveArtifacts(ctx context.Context, segmentID string, a Artifacts) error

	InsertMusic(ctx context.Context, projectID string, m *timeline.MusicLayer) error
	UpdateMusic(ctx context.Context, m *timeline.MusicLayer) error
	DeleteMusic(ctx context.Context, id string) error

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func (r *SQLiteRepository) CreateProject(ctx context.Context, p *timeline.Project) error {
	return insertProject(ctx, r.db, p)
}

func insertProject(ctx context.Context, ex execer, p *timeline.Project) error {
	ts := now()
	_, err := ex.ExecContext(ctx, `
		INSERT INTO projects (id, name, original_volume, narration_gain, music_reduction, allow_overlapping_segments, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, nullFloat(p.Mix.OriginalVolume), nullFloat(p.Mix.NarrationGain), nullFloat(p.Mix.MusicReduction),
		boolToInt(p.Mix.AllowOverlappingSegments), ts, ts)
	return err
}

// GetProject loads a project with all clips, segments and music layers.
// It returns nil, nil when the project does not exist.
func (r *SQLiteRepository) GetProject(ctx context.Context, id string) (*timeline.Project, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, original_volume, narration_gain, music_reduction, allow_overlapping_segments
		FROM projects WHERE id = ?
	`, id)

	var p timeline.Project
	var orig, gain, reduction sql.NullFloat64
	var allow int
	err := row.Scan(&p.ID, &p.Name, &orig, &gain, &reduction, &allow)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Mix = timeline.MixSettings{
		OriginalVolume:           floatPtr(orig),
		NarrationGain:            floatPtr(gain),
		MusicReduction:           floatPtr(reduction),
		AllowOverlappingSegments: allow == 1,
	}

	if p.Clips, err = r.listClips(ctx, id); err != nil {
		return nil, fmt.Errorf("load clips: %w", err)
	}
	if p.Segments, err = r.listSegments(ctx, id); err != nil {
		return nil, fmt.Errorf("load segments: %w", err)
	}
	if p.Music, err = r.listMusic(ctx, id); err != nil {
		return nil, fmt.Errorf("load music: %w", err)
	}
	return &p, nil
}

func (r *SQLiteRepository) listClips(ctx context.Context, projectID string) ([]timeline.Clip, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ord, path, source_start, source_end, timeline_start, timeline_end
		FROM clips WHERE project_id = ? ORDER BY ord, id
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clips := []timeline.Clip{}
	for rows.Next() {
		var c timeline.Clip
		var start, end sql.NullFloat64
		if err := rows.Scan(&c.ID, &c.Order, &c.Path, &c.SourceStart, &c.SourceEnd, &start, &end); err != nil {
			return nil, err
		}
		c.TimelineStart = floatPtr(start)
		c.TimelineEnd = floatPtr(end)
		clips = append(clips, c)
	}
	return clips, rows.Err()
}

func (r *SQLiteRepository) listSegments(ctx context.Context, projectID string) ([]timeline.Segment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, clip_id, start_sec, end_sec, text, voice, language, speed, pitch,
		       audio_path, audio_duration, subtitle_path, artifact_key
		FROM voice_segments WHERE project_id = ? ORDER BY id
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	segments := []timeline.Segment{}
	for rows.Next() {
		var s timeline.Segment
		var clipID, audioPath, subtitlePath, key sql.NullString
		var audioDuration sql.NullFloat64
		if err := rows.Scan(&s.ID, &clipID, &s.Start, &s.End, &s.Text, &s.Voice.Voice, &s.Voice.Language,
			&s.Voice.Speed, &s.Voice.Pitch, &audioPath, &audioDuration, &subtitlePath, &key); err != nil {
			return nil, err
		}
		s.ClipID = clipID.String
		s.AudioPath = audioPath.String
		s.AudioDuration = audioDuration.Float64
		s.SubtitlePath = subtitlePath.String
		s.ArtifactKey = key.String
		segments = append(segments, s)
	}
	return segments, rows.Err()
}

func (r *SQLiteRepository) listMusic(ctx context.Context, projectID string) ([]timeline.MusicLayer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ord, path, start_sec, end_sec, source_offset, volume, fade_in, fade_out, loop, muted
		FROM music_layers WHERE project_id = ? ORDER BY ord, id
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	layers := []timeline.MusicLayer{}
	for rows.Next() {
		var m timeline.MusicLayer
		var loop, muted int
		if err := rows.Scan(&m.ID, &m.Order, &m.Path, &m.Start, &m.End, &m.SourceOffset, &m.Volume,
			&m.FadeIn, &m.FadeOut, &loop, &muted); err != nil {
			return nil, err
		}
		m.Loop = loop == 1
		m.Muted = muted == 1
		layers = append(layers, m)
	}
	return layers, rows.Err()
}

func (r *SQLiteRepository) ListProjects(ctx context.Context) ([]*Summary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.created_at, p.updated_at,
		       (SELECT COUNT(*) FROM clips c WHERE c.project_id = p.id)
		FROM projects p ORDER BY p.updated_at DESC, p.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Summary
	for rows.Next() {
		var s Summary
		var createdAt, updatedAt string
		if err := rows.Scan(&s.ID, &s.Name, &createdAt, &updatedAt, &s.Clips); err != nil {
			return nil, err
		}
		s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		out = append(out, &s)
	}
	return out, rows.Err()
}

// UpdateProject stores the name and mix settings.
func (r *SQLiteRepository) UpdateProject(ctx context.Context, p *timeline.Project) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE projects SET name = ?, original_volume = ?, narration_gain = ?, music_reduction = ?,
		       allow_overlapping_segments = ?, updated_at = ?
		WHERE id = ?
	`, p.Name, nullFloat(p.Mix.OriginalVolume), nullFloat(p.Mix.NarrationGain), nullFloat(p.Mix.MusicReduction),
		boolToInt(p.Mix.AllowOverlappingSegments), now(), p.ID)
	return err
}

func (r *SQLiteRepository) DeleteProject(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	return err
}

// ImportProject inserts a whole project in one transaction.
func (r *SQLiteRepository) ImportProject(ctx context.Context, p *timeline.Project) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertProject(ctx, tx, p); err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	for i := range p.Clips {
		if err := insertClip(ctx, tx, p.ID, &p.Clips[i]); err != nil {
			return fmt.Errorf("insert clip %s: %w", p.Clips[i].ID, err)
		}
	}
	for i := range p.Segments {
		if err := insertSegment(ctx, tx, p.ID, &p.Segments[i]); err != nil {
			return fmt.Errorf("insert segment %s: %w", p.Segments[i].ID, err)
		}
	}
	for i := range p.Music {
		if err := insertMusic(ctx, tx, p.ID, &p.Music[i]); err != nil {
			return fmt.Errorf("insert music %s: %w", p.Music[i].ID, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRepository) touch(ctx context.Context, ex execer, projectID string) error {
	_, err := ex.ExecContext(ctx, "UPDATE projects SET updated_at = ? WHERE id = ?", now(), projectID)
	return err
}

func (r *SQLiteRepository) InsertClip(ctx context.Context, projectID string, c *timeline.Clip) error {
	if err := insertClip(ctx, r.db, projectID, c); err != nil {
		return err
	}
	return r.touch(ctx, r.db, projectID)
}

func insertClip(ctx context.Context, ex execer, projectID string, c *timeline.Clip) error {
	ts := now()
	_, err := ex.ExecContext(ctx, `
		INSERT INTO clips (id, project_id, ord, path, source_start, source_end, timeline_start, timeline_end, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, projectID, c.Order, c.Path, c.SourceStart, c.SourceEnd, nullFloat(c.TimelineStart), nullFloat(c.TimelineEnd), ts, ts)
	return err
}

// UpdateClip stores trim and placement. Order changes go through
// ReorderClips.
func (r *SQLiteRepository) UpdateClip(ctx context.Context, c *timeline.Clip) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE clips SET source_start = ?, source_end = ?, timeline_start = ?, timeline_end = ?, updated_at = ?
		WHERE id = ?
	`, c.SourceStart, c.SourceEnd, nullFloat(c.TimelineStart), nullFloat(c.TimelineEnd), now(), c.ID)
	return err
}

// DeleteClip removes the clip; bound segments go with it via ON DELETE
// CASCADE.
func (r *SQLiteRepository) DeleteClip(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM clips WHERE id = ?", id)
	return err
}

// ReorderClips assigns Order 0..n-1 following ids. Orders are moved out of
// the way first so the UNIQUE(project_id, ord) constraint holds throughout.
func (r *SQLiteRepository) ReorderClips(ctx context.Context, projectID string, ids []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "UPDATE clips SET ord = -ord - 1 WHERE project_id = ?", projectID); err != nil {
		return err
	}
	ts := now()
	for i, id := range ids {
		res, err := tx.ExecContext(ctx, "UPDATE clips SET ord = ?, updated_at = ? WHERE id = ? AND project_id = ?", i, ts, id, projectID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("clip %s: %w", id, ErrNotFound)
		}
	}
	if err := r.touch(ctx, tx, projectID); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SQLiteRepository) InsertSegment(ctx context.Context, projectID string, s *timeline.Segment) error {
	if err := insertSegment(ctx, r.db, projectID, s); err != nil {
		return err
	}
	return r.touch(ctx, r.db, projectID)
}

func insertSegment(ctx context.Context, ex execer, projectID string, s *timeline.Segment) error {
	ts := now()
	_, err := ex.ExecContext(ctx, `
		INSERT INTO voice_segments (id, project_id, clip_id, start_sec, end_sec, text, voice, language, speed, pitch,
		                            audio_path, audio_duration, subtitle_path, artifact_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, projectID, nullString(s.ClipID), s.Start, s.End, s.Text, s.Voice.Voice, s.Voice.Language, s.Voice.Speed,
		s.Voice.Pitch, nullString(s.AudioPath), s.AudioDuration, nullString(s.SubtitlePath), nullString(s.ArtifactKey), ts, ts)
	return err
}

func (r *SQLiteRepository) UpdateSegment(ctx context.Context, s *timeline.Segment) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE voice_segments SET clip_id = ?, start_sec = ?, end_sec = ?, text = ?, voice = ?, language = ?,
		       speed = ?, pitch = ?, audio_path = ?, audio_duration = ?, subtitle_path = ?, artifact_key = ?, updated_at = ?
		WHERE id = ?
	`, nullString(s.ClipID), s.Start, s.End, s.Text, s.Voice.Voice, s.Voice.Language, s.Voice.Speed, s.Voice.Pitch,
		nullString(s.AudioPath), s.AudioDuration, nullString(s.SubtitlePath), nullString(s.ArtifactKey), now(), s.ID)
	return err
}

func (r *SQLiteRepository) DeleteSegment(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM voice_segments WHERE id = ?", id)
	return err
}

// SaveArtifacts records synthesized outputs without touching the
// authored fields.
func (r *SQLiteRepository) SaveArtifacts(ctx context.Context, segmentID string, a Artifacts) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE voice_segments SET audio_path = ?, audio_duration = ?, subtitle_path = ?, artifact_key = ?, updated_at = ?
		WHERE id = ?
	`, nullString(a.AudioPath), a.AudioDuration, nullString(a.SubtitlePath), nullString(a.Key), now(), segmentID)
	return err
}

func (r *SQLiteRepository) InsertMusic(ctx context.Context, projectID string, m *timeline.MusicLayer) error {
	if err := insertMusic(ctx, r.db, projectID, m); err != nil {
		return err
	}
	return r.touch(ctx, r.db, projectID)
}

func insertMusic(ctx context.Context, ex execer, projectID string, m *timeline.MusicLayer) error {
	ts := now()
	_, err := ex.ExecContext(ctx, `
		INSERT INTO music_layers (id, project_id, ord, path, start_sec, end_sec, source_offset, volume, fade_in, fade_out, loop, muted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, projectID, m.Order, m.Path, m.Start, m.End, m.SourceOffset, m.Volume, m.FadeIn, m.FadeOut,
		boolToInt(m.Loop), boolToInt(m.Muted), ts, ts)
	return err
}

func (r *SQLiteRepository) UpdateMusic(ctx context.Context, m *timeline.MusicLayer) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE music_layers SET ord = ?, path = ?, start_sec = ?, end_sec = ?, source_offset = ?, volume = ?,
		       fade_in = ?, fade_out = ?, loop = ?, muted = ?, updated_at = ?
		WHERE id = ?
	`, m.Order, m.Path, m.Start, m.End, m.SourceOffset, m.Volume, m.FadeIn, m.FadeOut,
		boolToInt(m.Loop), boolToInt(m.Muted), now(), m.ID)
	return err
}

func (r *SQLiteRepository) DeleteMusic(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM music_layers WHERE id = ?", id)
	return err
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	return timeline.Float(f.Float64)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
