package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix = "job:"
)

// StatusMirror はジョブ状態の書き出し先です。
type StatusMirror interface {
	Publish(ctx context.Context, snapshot Snapshot) error
}

// StatusStore はジョブ状態を Redis に書き出します。読み戻しには使いません。
type StatusStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStatusStore は StatusStore を作成します。
func NewStatusStore(rdb *redis.Client, ttl time.Duration) *StatusStore {
	return &StatusStore{
		rdb: rdb,
		ttl: ttl,
	}
}

// Publish はスナップショットを job:<id> に保存します。
func (s *StatusStore) Publish(ctx context.Context, snapshot Snapshot) error {
	if snapshot.JobID == "" {
		return fmt.Errorf("jobID is required")
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, jobKey(snapshot.JobID), payload, s.ttl).Err()
}

// Close は Redis クライアントを閉じます。
func (s *StatusStore) Close() error {
	return s.rdb.Close()
}

func jobKey(jobID string) string {
	return jobKeyPrefix + jobID
}
