package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// JobStore persists job records.
type JobStore interface {
	CreateJob(ctx context.Context, job *Job) error
	UpdateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, projectID string, limit int) ([]*Job, error)
}

type SQLiteJobStore struct {
	db *sql.DB
}

func NewJobStore(db *sql.DB) *SQLiteJobStore {
	return &SQLiteJobStore{db: db}
}

const jobColumns = `id, project_id, status, stage, progress, preset, output_path, reason, error, warnings,
	created_at, updated_at, started_at, completed_at`

func (s *SQLiteJobStore) CreateJob(ctx context.Context, j *Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO export_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.ProjectID, j.Status, string(j.Stage), j.Progress, j.Preset, j.OutputPath,
		nullString(j.Reason), nullString(j.Error), warningsJSON(j.Warnings),
		j.CreatedAt.Format(time.RFC3339), j.UpdatedAt.Format(time.RFC3339), nullTime(j.StartedAt), nullTime(j.CompletedAt))
	return err
}

func (s *SQLiteJobStore) UpdateJob(ctx context.Context, j *Job) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE export_jobs SET status = ?, stage = ?, progress = ?, output_path = ?, reason = ?, error = ?,
		       warnings = ?, updated_at = ?, started_at = ?, completed_at = ?
		WHERE id = ?
	`, j.Status, string(j.Stage), j.Progress, j.OutputPath, nullString(j.Reason), nullString(j.Error),
		warningsJSON(j.Warnings), j.UpdatedAt.Format(time.RFC3339), nullTime(j.StartedAt), nullTime(j.CompletedAt), j.ID)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var j Job
	var stage, createdAt, updatedAt string
	var reason, errMsg, warnings, startedAt, completedAt sql.NullString
	if err := row.Scan(&j.ID, &j.ProjectID, &j.Status, &stage, &j.Progress, &j.Preset, &j.OutputPath,
		&reason, &errMsg, &warnings, &createdAt, &updatedAt, &startedAt, &completedAt); err != nil {
		return nil, err
	}
	j.Stage = Stage(stage)
	j.Reason = reason.String
	j.Error = errMsg.String
	if warnings.Valid && warnings.String != "" {
		json.Unmarshal([]byte(warnings.String), &j.Warnings)
	}
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	j.StartedAt = parseTime(startedAt)
	j.CompletedAt = parseTime(completedAt)
	return &j, nil
}

// GetJob returns nil, nil when the job does not exist.
func (s *SQLiteJobStore) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM export_jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

// ListJobs returns the newest jobs first. An empty projectID lists all
// projects.
func (s *SQLiteJobStore) ListJobs(ctx context.Context, projectID string, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM export_jobs
		WHERE ? = '' OR project_id = ?
		ORDER BY created_at DESC, id LIMIT ?
	`, projectID, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func parseTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func warningsJSON(w []string) sql.NullString {
	if len(w) == 0 {
		return sql.NullString{}
	}
	data, _ := json.Marshal(w)
	return sql.NullString{String: string(data), Valid: true}
}
