package graphline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Persistence keyspace. Snapshots are short-lived observability data;
// results are retained longer for later inspection.
const (
	keyPrefix    = "graphline:"
	statePrefix  = keyPrefix + "state:"
	resultPrefix = keyPrefix + "result:"

	// DefaultSnapshotTTL is the retention for intermediate run snapshots.
	DefaultSnapshotTTL = 24 * time.Hour

	// DefaultResultTTL is the retention for terminal execution results.
	DefaultResultTTL = 7 * 24 * time.Hour
)

// RunStore persists run snapshots and terminal results. Snapshots are
// written for observability only; the engine never reads one back to resume
// an interrupted run.
type RunStore interface {
	SaveSnapshot(ctx context.Context, run *Run, ttl time.Duration) error
	LoadSnapshot(ctx context.Context, runID string) (*Run, error)
	SaveResult(ctx context.Context, result *Result, ttl time.Duration) error
	LoadResult(ctx context.Context, runID string) (*Result, error)
}

// KVRunStore implements RunStore over a key-value Store with JSON encoding.
type KVRunStore struct {
	kv Store
}

// NewKVRunStore wraps a key-value store.
func NewKVRunStore(kv Store) *KVRunStore {
	return &KVRunStore{kv: kv}
}

// SaveSnapshot writes the run state under graphline:state:<runID>.
func (s *KVRunStore) SaveSnapshot(ctx context.Context, run *Run, ttl time.Duration) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", run.ID, err)
	}
	if err := s.kv.Set(ctx, statePrefix+run.ID, data, ttl); err != nil {
		return fmt.Errorf("save snapshot %s: %w", run.ID, err)
	}
	return nil
}

// LoadSnapshot reads a previously saved run state. It returns (nil, nil)
// when no snapshot exists.
func (s *KVRunStore) LoadSnapshot(ctx context.Context, runID string) (*Run, error) {
	data, ok, err := s.kv.Get(ctx, statePrefix+runID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", runID, err)
	}
	if !ok {
		return nil, nil
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", runID, err)
	}
	return &run, nil
}

// SaveResult writes the terminal result under graphline:result:<runID>.
func (s *KVRunStore) SaveResult(ctx context.Context, result *Result, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result %s: %w", result.ID, err)
	}
	if err := s.kv.Set(ctx, resultPrefix+result.ID, data, ttl); err != nil {
		return fmt.Errorf("save result %s: %w", result.ID, err)
	}
	return nil
}

// LoadResult reads a previously saved result. It returns (nil, nil) when no
// result exists.
func (s *KVRunStore) LoadResult(ctx context.Context, runID string) (*Result, error) {
	data, ok, err := s.kv.Get(ctx, resultPrefix+runID)
	if err != nil {
		return nil, fmt.Errorf("load result %s: %w", runID, err)
	}
	if !ok {
		return nil, nil
	}
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", runID, err)
	}
	return &result, nil
}
