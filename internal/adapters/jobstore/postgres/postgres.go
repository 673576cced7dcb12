package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vidhook/internal/httpkit"
	"vidhook/internal/models"
	"vidhook/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS render_jobs (
  id                 TEXT PRIMARY KEY,
  video_url          TEXT NOT NULL,
  template_image_url TEXT NOT NULL,
  preset             TEXT NOT NULL DEFAULT '',
  state              TEXT NOT NULL,
  output_key         TEXT,
  output_url         TEXT,
  error_text         TEXT,
  created_at         TIMESTAMPTZ NOT NULL,
  updated_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS render_jobs_state_updated ON render_jobs (state, updated_at);
`

type Store struct {
	db *pgxpool.Pool
}

// Open connects to databaseURL and ensures the render_jobs table exists.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	s := &Store{db: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an existing pool. The caller owns the schema.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schema)
	return err
}

func (s *Store) Name() string { return "postgres" }

func (s *Store) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

func (s *Store) Close() error {
	s.db.Close()
	return nil
}

func (s *Store) Save(ctx context.Context, job models.RenderJob) error {
	err := s.upsert(ctx, job)
	if httpkit.IsUndefinedTable(err) {
		// table dropped under us; recreate once
		if err := s.EnsureSchema(ctx); err != nil {
			return err
		}
		err = s.upsert(ctx, job)
	}
	return err
}

func (s *Store) upsert(ctx context.Context, job models.RenderJob) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO render_jobs (id, video_url, template_image_url, preset, state, output_key, output_url, error_text, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
		  state      = EXCLUDED.state,
		  output_key = EXCLUDED.output_key,
		  output_url = EXCLUDED.output_url,
		  error_text = EXCLUDED.error_text,
		  updated_at = EXCLUDED.updated_at
	`,
		job.ID,
		job.VideoURL,
		job.TemplateImageURL,
		job.Preset,
		string(job.State),
		nullIfEmpty(job.OutputKey),
		nullIfEmpty(job.OutputURL),
		nullIfEmpty(job.Error),
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id string) (models.RenderJob, error) {
	var (
		job                           models.RenderJob
		state                         string
		outputKey, outputURL, errText *string
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, video_url, template_image_url, preset, state, output_key, output_url, error_text, created_at, updated_at
		FROM render_jobs
		WHERE id=$1
	`, id).Scan(
		&job.ID,
		&job.VideoURL,
		&job.TemplateImageURL,
		&job.Preset,
		&state,
		&outputKey,
		&outputURL,
		&errText,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || httpkit.IsUndefinedTable(err) {
			return models.RenderJob{}, ports.ErrJobNotFound
		}
		return models.RenderJob{}, err
	}
	job.State = models.State(state)
	job.OutputKey = deref(outputKey)
	job.OutputURL = deref(outputURL)
	job.Error = deref(errText)
	return job, nil
}

// Prune deletes terminal jobs last updated before the cutoff.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM render_jobs WHERE state = ANY($1) AND updated_at < $2`,
		[]string{string(models.StateCompleted), string(models.StateFailed)},
		before,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
