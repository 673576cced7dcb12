package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"vidhook/internal/models"
	"vidhook/internal/ports"
)

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer keeps "database is locked" out of concurrent job updates
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS render_jobs (
  id TEXT PRIMARY KEY,
  video_url TEXT NOT NULL,
  template_image_url TEXT NOT NULL,
  preset TEXT NOT NULL DEFAULT '',
  state TEXT NOT NULL,
  output_key TEXT,
  output_url TEXT,
  error_text TEXT,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS render_jobs_state_updated ON render_jobs (state, updated_at);
`); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Name() string { return "sqlite" }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Save(ctx context.Context, job models.RenderJob) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO render_jobs (id, video_url, template_image_url, preset, state, output_key, output_url, error_text, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
           state = excluded.state,
           output_key = excluded.output_key,
           output_url = excluded.output_url,
           error_text = excluded.error_text,
           updated_at = excluded.updated_at`,
		job.ID,
		job.VideoURL,
		job.TemplateImageURL,
		job.Preset,
		string(job.State),
		nullIfEmpty(job.OutputKey),
		nullIfEmpty(job.OutputURL),
		nullIfEmpty(job.Error),
		job.CreatedAt.UnixMilli(),
		job.UpdatedAt.UnixMilli(),
	)
	return err
}

func (s *Store) Get(ctx context.Context, id string) (models.RenderJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, video_url, template_image_url, preset, state, output_key, output_url, error_text, created_at, updated_at
       FROM render_jobs WHERE id = ?`, id,
	)
	var (
		job                           models.RenderJob
		state                         string
		outputKey, outputURL, errText sql.NullString
		createdMs, updatedMs          int64
	)
	if err := row.Scan(&job.ID, &job.VideoURL, &job.TemplateImageURL, &job.Preset, &state,
		&outputKey, &outputURL, &errText, &createdMs, &updatedMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.RenderJob{}, ports.ErrJobNotFound
		}
		return models.RenderJob{}, err
	}
	job.State = models.State(state)
	job.OutputKey = outputKey.String
	job.OutputURL = outputURL.String
	job.Error = errText.String
	job.CreatedAt = time.UnixMilli(createdMs).UTC()
	job.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	return job, nil
}

// Prune deletes terminal jobs last updated before the cutoff.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM render_jobs WHERE state IN (?, ?) AND updated_at < ?`,
		string(models.StateCompleted), string(models.StateFailed), before.UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
