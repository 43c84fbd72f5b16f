package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "replenish:snapshot:"

// ErrNotFound is returned when no snapshot exists for the given job id.
var ErrNotFound = errors.New("snapshot not found")

// Store persists the order payload needed to rebuild a schedule's next
// occurrence, keyed by the engine-issued job id. Entries carry no TTL: a
// canceled replenishment may be resumed arbitrarily late and its retained
// snapshot is the only surviving record of the payload.
type Store struct {
	client *redis.Client
}

// NewStore creates a snapshot store on the given Redis client
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Put stores the payload under the given job id, replacing any previous entry
func (s *Store) Put(ctx context.Context, jobID string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot for job %s: %w", jobID, err)
	}
	if err := s.client.Set(ctx, keyPrefix+jobID, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot for job %s: %w", jobID, err)
	}
	return nil
}

// Get loads the payload stored under the given job id into dest
func (s *Store) Get(ctx context.Context, jobID string, dest interface{}) error {
	data, err := s.client.Get(ctx, keyPrefix+jobID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to load snapshot for job %s: %w", jobID, err)
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("failed to unmarshal snapshot for job %s: %w", jobID, err)
	}
	return nil
}

// Delete removes the payload stored under the given job id. Deleting a
// missing entry is not an error.
func (s *Store) Delete(ctx context.Context, jobID string) error {
	if err := s.client.Del(ctx, keyPrefix+jobID).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot for job %s: %w", jobID, err)
	}
	return nil
}
