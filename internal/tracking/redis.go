package tracking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Address  string
	Password string
	Database int

	// Prefix is prepended to every key.
	Prefix string

	// TTL expires records after their last update. Zero keeps them.
	TTL time.Duration

	// Timeout bounds each redis round trip.
	Timeout time.Duration
}

// RedisTracker keeps each process as a redis hash.
type RedisTracker struct {
	cfg    RedisConfig
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisTracker connects to redis and verifies the connection.
func NewRedisTracker(ctx context.Context, cfg RedisConfig) (*RedisTracker, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "gridlake:process:"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("tracking: connect to redis %s: %w", cfg.Address, err)
	}
	return &RedisTracker{cfg: cfg, client: client, now: time.Now}, nil
}

// Close releases the redis connection pool.
func (t *RedisTracker) Close() error {
	return t.client.Close()
}

func (t *RedisTracker) key(id string) string {
	return t.cfg.Prefix + id
}

func (t *RedisTracker) Create(ctx context.Context, name string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	now := t.now().UnixMilli()
	rec := Record{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	key := t.key(rec.ID)
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields(rec))
		if t.cfg.TTL > 0 {
			pipe.Expire(ctx, key, t.cfg.TTL)
		}
		return nil
	})
	if err != nil {
		return Record{}, fmt.Errorf("tracking: create %s: %w", rec.ID, err)
	}
	return rec, nil
}

func (t *RedisTracker) Update(ctx context.Context, id string, status Status, detail string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	key := t.key(id)
	var out Record
	update := func(tx *redis.Tx) error {
		values, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		rec, err := parseFields(id, values)
		if err != nil {
			return err
		}
		next, err := transition(rec, status, detail, t.now())
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fields(next))
			if t.cfg.TTL > 0 {
				pipe.Expire(ctx, key, t.cfg.TTL)
			}
			return nil
		})
		out = next
		return err
	}

	for attempt := 0; attempt < 5; attempt++ {
		err := t.client.Watch(ctx, update, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return Record{}, fmt.Errorf("tracking: update %s: %w", id, err)
		}
		return out, nil
	}
	return Record{}, fmt.Errorf("tracking: update %s: too much contention", id)
}

func (t *RedisTracker) Get(ctx context.Context, id string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	values, err := t.client.HGetAll(ctx, t.key(id)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("tracking: get %s: %w", id, err)
	}
	return parseFields(id, values)
}

func fields(rec Record) map[string]any {
	return map[string]any{
		"id":        rec.ID,
		"name":      rec.Name,
		"status":    string(rec.Status),
		"detail":    rec.Detail,
		"createdAt": rec.CreatedAt,
		"updatedAt": rec.UpdatedAt,
	}
}

// parseFields decodes a hash. An empty hash is a missing record.
func parseFields(id string, values map[string]string) (Record, error) {
	if len(values) == 0 {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	status, err := ParseStatus(values["status"])
	if err != nil {
		return Record{}, err
	}
	created, _ := strconv.ParseInt(values["createdAt"], 10, 64)
	updated, _ := strconv.ParseInt(values["updatedAt"], 10, 64)
	return Record{
		ID:        values["id"],
		Name:      values["name"],
		Status:    status,
		Detail:    values["detail"],
		CreatedAt: created,
		UpdatedAt: updated,
	}, nil
}

var _ Tracker = (*RedisTracker)(nil)
