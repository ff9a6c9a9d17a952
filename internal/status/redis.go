// Package status caches run status in Redis for cheap polling, keeping the
// hot read path off Postgres.
package status

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "run_status:"
	ttl       = time.Hour
)

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, addr string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Repo stores run statuses keyed by run id with a fixed TTL.
type Repo struct {
	client *redis.Client
}

// NewRepo builds a status cache over the client.
func NewRepo(client *redis.Client) *Repo {
	return &Repo{client: client}
}

// SetStatus records the current status for a run.
func (r *Repo) SetStatus(ctx context.Context, runID, status string) error {
	if err := r.client.Set(ctx, keyPrefix+runID, status, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache run status: %w", err)
	}
	return nil
}

// GetStatus returns the cached status, or an error when the run is unknown
// or expired.
func (r *Repo) GetStatus(ctx context.Context, runID string) (string, error) {
	status, err := r.client.Get(ctx, keyPrefix+runID).Result()
	if err != nil {
		return "", fmt.Errorf("failed to read run status: %w", err)
	}
	return status, nil
}
