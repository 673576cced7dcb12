package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"vidhook/internal/models"
	"vidhook/internal/ports"
)

// Store keeps each job as a hash under "<prefix><id>". Every write refreshes
// the key TTL to the retention window, so abandoned jobs expire on their own.
type Store struct {
	rdb       *redis.Client
	prefix    string
	retention time.Duration
}

func New(rdb *redis.Client, retention time.Duration) *Store {
	return &Store{rdb: rdb, prefix: "vidhook:job:", retention: retention}
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr string, retention time.Duration) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return New(rdb, retention), nil
}

func (s *Store) Name() string { return "redis" }

func (s *Store) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) Save(ctx context.Context, job models.RenderJob) error {
	key := s.prefix + job.ID
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, encode(job))
		if s.retention > 0 {
			pipe.Expire(ctx, key, s.retention)
		}
		return nil
	})
	return err
}

func (s *Store) Get(ctx context.Context, id string) (models.RenderJob, error) {
	fields, err := s.rdb.HGetAll(ctx, s.prefix+id).Result()
	if err != nil {
		return models.RenderJob{}, err
	}
	if len(fields) == 0 {
		return models.RenderJob{}, ports.ErrJobNotFound
	}
	return decode(fields)
}

func encode(job models.RenderJob) map[string]any {
	return map[string]any{
		"id":                 job.ID,
		"video_url":          job.VideoURL,
		"template_image_url": job.TemplateImageURL,
		"preset":             job.Preset,
		"state":              string(job.State),
		"output_key":         job.OutputKey,
		"output_url":         job.OutputURL,
		"error":              job.Error,
		"created_at":         strconv.FormatInt(job.CreatedAt.UnixMilli(), 10),
		"updated_at":         strconv.FormatInt(job.UpdatedAt.UnixMilli(), 10),
	}
}

func decode(f map[string]string) (models.RenderJob, error) {
	created, err := strconv.ParseInt(f["created_at"], 10, 64)
	if err != nil {
		return models.RenderJob{}, fmt.Errorf("job %s: bad created_at: %w", f["id"], err)
	}
	updated, err := strconv.ParseInt(f["updated_at"], 10, 64)
	if err != nil {
		return models.RenderJob{}, fmt.Errorf("job %s: bad updated_at: %w", f["id"], err)
	}
	return models.RenderJob{
		ID:               f["id"],
		VideoURL:         f["video_url"],
		TemplateImageURL: f["template_image_url"],
		Preset:           f["preset"],
		State:            models.State(f["state"]),
		OutputKey:        f["output_key"],
		OutputURL:        f["output_url"],
		Error:            f["error"],
		CreatedAt:        time.UnixMilli(created).UTC(),
		UpdatedAt:        time.UnixMilli(updated).UTC(),
	}, nil
}
