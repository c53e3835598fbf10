// Package redis adapts the teacher's store/redis checkpoint backend to the
// spec's (workflow_id, layer)-keyed Checkpoint. Ordering and retention use
// a per-workflow sorted set scored by timestamp, rather than the teacher's
// unordered SAdd index, since retention pruning needs oldest-first order.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smallnest/dagrag/checkpoint"
)

// Store implements checkpoint.Store over Redis.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // key prefix, default "dagrag:"
	TTL      time.Duration // expiration for checkpoints, default 0 (no expiration)
}

// New constructs a Redis-backed checkpoint store. client may instead be
// supplied directly via NewWithClient for tests (e.g. against miniredis).
func New(opts Options) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewWithClient(client, opts)
}

// NewWithClient builds a Store around an already-constructed redis.Client,
// so tests can point it at a miniredis instance.
func NewWithClient(client *redis.Client, opts Options) *Store {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "dagrag:"
	}
	return &Store{client: client, prefix: prefix, ttl: opts.TTL}
}

func (s *Store) checkpointKey(id string) string {
	return fmt.Sprintf("%scheckpoint:%s", s.prefix, id)
}

func (s *Store) workflowKey(workflowID string) string {
	return fmt.Sprintf("%sworkflow:%s:checkpoints", s.prefix, workflowID)
}

func (s *Store) Save(ctx context.Context, cp *checkpoint.Checkpoint, retention int) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	key := s.checkpointKey(cp.ID)
	wfKey := s.workflowKey(cp.WorkflowID)

	pipe := s.client.Pipeline()
	pipe.Set(ctx, key, data, s.ttl)
	pipe.ZAdd(ctx, wfKey, redis.Z{Score: float64(cp.Timestamp.UnixNano()), Member: cp.ID})
	if s.ttl > 0 {
		pipe.Expire(ctx, wfKey, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save checkpoint to redis: %w", err)
	}

	if retention <= 0 {
		retention = checkpoint.DefaultRetention
	}
	return s.prune(ctx, cp.WorkflowID, retention)
}

// prune keeps only the newest `retention` members of the workflow's sorted
// set, deleting the evicted checkpoints' own keys too.
func (s *Store) prune(ctx context.Context, workflowID string, retention int) error {
	wfKey := s.workflowKey(workflowID)
	count, err := s.client.ZCard(ctx, wfKey).Result()
	if err != nil {
		return fmt.Errorf("failed to size workflow checkpoint set: %w", err)
	}
	if int(count) <= retention {
		return nil
	}

	evictCount := int(count) - retention
	stale, err := s.client.ZRange(ctx, wfKey, 0, int64(evictCount)-1).Result()
	if err != nil {
		return fmt.Errorf("failed to list stale checkpoints: %w", err)
	}

	pipe := s.client.Pipeline()
	for _, id := range stale {
		pipe.Del(ctx, s.checkpointKey(id))
	}
	pipe.ZRemRangeByRank(ctx, wfKey, 0, int64(evictCount)-1)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to prune checkpoints: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, id string) (*checkpoint.Checkpoint, error) {
	data, err := s.client.Get(ctx, s.checkpointKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("checkpoint not found: %s", id)
		}
		return nil, fmt.Errorf("failed to load checkpoint from redis: %w", err)
	}
	var cp checkpoint.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

func (s *Store) Latest(ctx context.Context, workflowID string) (*checkpoint.Checkpoint, error) {
	ids, err := s.client.ZRevRange(ctx, s.workflowKey(workflowID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query latest checkpoint: %w", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no checkpoints for workflow: %s", workflowID)
	}
	return s.Load(ctx, ids[0])
}

func (s *Store) List(ctx context.Context, workflowID string) ([]*checkpoint.Checkpoint, error) {
	ids, err := s.client.ZRange(ctx, s.workflowKey(workflowID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints for workflow %s: %w", workflowID, err)
	}
	out := make([]*checkpoint.Checkpoint, 0, len(ids))
	for _, id := range ids {
		cp, err := s.Load(ctx, id)
		if err != nil {
			continue // evicted by TTL between the ZRANGE and the GET
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	cp, err := s.Load(ctx, id)
	if err != nil {
		return nil
	}
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.checkpointKey(id))
	pipe.ZRem(ctx, s.workflowKey(cp.WorkflowID), id)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, workflowID string) error {
	wfKey := s.workflowKey(workflowID)
	ids, err := s.client.ZRange(ctx, wfKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to get checkpoints for clearing: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, id := range ids {
		pipe.Del(ctx, s.checkpointKey(id))
	}
	pipe.Del(ctx, wfKey)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear checkpoints: %w", err)
	}
	return nil
}
