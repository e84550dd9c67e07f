package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Registry はジョブIDと Record の対応を保持します。
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record
	newID   func() string
	now     func() time.Time
}

// NewRegistry は空の Registry を返します。
func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]*Record),
		newID:   uuid.NewString,
		now:     time.Now,
	}
}

// Create は新しいジョブを登録して返します。IDは登録済みのものと重複しません。
func (r *Registry) Create() *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		id := r.newID()
		if _, exists := r.records[id]; exists {
			continue
		}
		rec := newRecord(id, r.now)
		r.records[id] = rec
		return rec
	}
}

// Get は jobID に対応する Record を返します。
func (r *Registry) Get(jobID string) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[jobID]
	return rec, ok
}

// Len は登録済みのジョブ数を返します。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Sweep は完了から ttl 以上経過したジョブを削除し、削除数を返します。実行中のジョブは残します。
func (r *Registry) Sweep(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := r.now().UTC().Add(-ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, rec := range r.records {
		if rec.finishedBefore(cutoff) {
			delete(r.records, id)
			removed++
		}
	}
	return removed
}

// RunJanitor は ctx が終わるまで interval ごとに Sweep を実行します。
func (r *Registry) RunJanitor(ctx context.Context, ttl, interval time.Duration, logger *logrus.Logger) {
	if ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(ttl); n > 0 && logger != nil {
				logger.WithField("removed", n).Info("expired jobs removed")
			}
		}
	}
}
