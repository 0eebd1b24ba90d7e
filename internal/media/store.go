package media

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteStore keeps descriptors in the media_descriptors table.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) GetDescriptor(ctx context.Context, path string, modTime time.Time) (*Descriptor, error) {
	d := &Descriptor{Path: path, ModTime: modTime}
	var hasAudio int
	err := s.db.QueryRowContext(ctx, `
		SELECT size, duration, width, height, frame_rate, has_audio, video_codec, audio_codec
		FROM media_descriptors WHERE path = ? AND mod_time = ?`,
		path, modTime.UTC().Format(time.RFC3339Nano),
	).Scan(&d.Size, &d.Duration, &d.Width, &d.Height, &d.FrameRate, &hasAudio, &d.VideoCodec, &d.AudioCodec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get descriptor: %w", err)
	}
	d.HasAudio = hasAudio != 0
	return d, nil
}

func (s *SQLiteStore) PutDescriptor(ctx context.Context, d *Descriptor) error {
	hasAudio := 0
	if d.HasAudio {
		hasAudio = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO media_descriptors
			(path, mod_time, size, duration, width, height, frame_rate, has_audio, video_codec, audio_codec, probed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Path, d.ModTime.UTC().Format(time.RFC3339Nano), d.Size, d.Duration, d.Width, d.Height,
		d.FrameRate, hasAudio, d.VideoCodec, d.AudioCodec, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to put descriptor: %w", err)
	}
	return nil
}
