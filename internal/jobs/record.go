package jobs

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrAlreadyDone は完了済みのジョブを再度完了させようとしたときに返ります。
	ErrAlreadyDone = errors.New("job already finished")
	// ErrNoMoreEvents は完了済みでイベントが残っていないときに返ります。
	ErrNoMoreEvents = errors.New("no more events")
	// ErrIdle は待機時間内にイベントが届かなかったときに返ります。
	ErrIdle = errors.New("no event within interval")
)

const stageQueued = "queued"

// Record は1ジョブの状態とイベントキューです。
// 終端イベントの追加と完了フラグの設定は同じロック内で行うため、
// 完了を観測した読み手は必ず終端イベントまで読み出せます。
type Record struct {
	id        string
	createdAt time.Time
	now       func() time.Time

	mu         sync.Mutex
	wake       chan struct{}
	events     []ProgressEvent
	status     Status
	progress   ProgressInfo
	updatedAt  time.Time
	done       bool
	finishedAt time.Time
	result     *ResultPayload
	failure    *ErrorPayload
}

func newRecord(id string, now func() time.Time) *Record {
	if now == nil {
		now = time.Now
	}
	ts := now().UTC()
	return &Record{
		id:        id,
		createdAt: ts,
		now:       now,
		wake:      make(chan struct{}),
		status:    StatusQueued,
		progress:  ProgressInfo{Stage: stageQueued},
		updatedAt: ts,
	}
}

// ID はジョブIDを返します。
func (r *Record) ID() string {
	return r.id
}

// Append はイベントを末尾に追加します。完了済みなら追加せず false を返します。
func (r *Record) Append(ev ProgressEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return false
	}
	r.events = append(r.events, ev)
	r.progress = ProgressInfo{Percent: ev.Pct, Stage: ev.Stage, Message: ev.Message}
	r.touchLocked()
	return true
}

// Complete は結果を保存し、完了イベントを追加します。
func (r *Record) Complete(result *ResultPayload) error {
	if result == nil {
		return errors.New("result is nil")
	}
	stored := *result
	stored.OK = true

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return ErrAlreadyDone
	}
	r.events = append(r.events, ProgressEvent{Type: EventDone, Pct: 100, Stage: string(EventDone)})
	r.result = &stored
	r.progress = ProgressInfo{Percent: 100, Stage: string(EventDone)}
	r.finishLocked(StatusSucceeded)
	return nil
}

// Fail は失敗を保存し、エラーイベントを追加します。エラーイベントの pct は直前の進捗です。
func (r *Record) Fail(failure *ErrorPayload) error {
	if failure == nil {
		return errors.New("failure is nil")
	}
	stored := *failure
	stored.OK = false

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return ErrAlreadyDone
	}
	r.events = append(r.events, ProgressEvent{
		Type:    EventError,
		Pct:     r.progress.Percent,
		Stage:   string(EventError),
		Message: stored.Error,
		Detail:  stored.Detail,
	})
	r.failure = &stored
	r.progress = ProgressInfo{Percent: r.progress.Percent, Stage: string(EventError), Message: stored.Error}
	r.finishLocked(StatusFailed)
	return nil
}

// DrainNext は次のイベントを取り出します。キューが空なら interval の間だけ待ちます。
// last は取り出したイベントが最後のイベントであることを示します。
// 待っても何も届かなければ ErrIdle を返すので、呼び出し側は再度呼び出します。
func (r *Record) DrainNext(ctx context.Context, interval time.Duration) (ev ProgressEvent, last bool, err error) {
	if interval <= 0 {
		interval = time.Second
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		r.mu.Lock()
		if len(r.events) > 0 {
			ev = r.events[0]
			r.events[0] = ProgressEvent{}
			r.events = r.events[1:]
			last = r.done && len(r.events) == 0
			r.mu.Unlock()
			return ev, last, nil
		}
		if r.done {
			r.mu.Unlock()
			return ProgressEvent{}, false, ErrNoMoreEvents
		}
		wake := r.wake
		r.mu.Unlock()

		select {
		case <-wake:
		case <-timer.C:
			return ProgressEvent{}, false, ErrIdle
		case <-ctx.Done():
			return ProgressEvent{}, false, ctx.Err()
		}
	}
}

// Wait はジョブが完了するまで待ちます。
func (r *Record) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		done := r.done
		wake := r.wake
		r.mu.Unlock()
		if done {
			return nil
		}
		select {
		case <-wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Done は完了済みかどうかを返します。
func (r *Record) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Pending は未読のイベント数を返します。
func (r *Record) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Outcome は結果を返します。未完了なら done は false です。返す値はコピーです。
func (r *Record) Outcome() (result *ResultPayload, failure *ErrorPayload, done bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.done {
		return nil, nil, false
	}
	if r.result != nil {
		res := *r.result
		result = &res
	}
	if r.failure != nil {
		f := *r.failure
		failure = &f
	}
	return result, failure, true
}

// Snapshot は現在の状態のコピーを返します。
func (r *Record) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := Snapshot{
		JobID:     r.id,
		Status:    r.status,
		Progress:  r.progress,
		CreatedAt: r.createdAt,
		UpdatedAt: r.updatedAt,
	}
	if r.failure != nil {
		snap.Error = r.failure.Error
	}
	return snap
}

func (r *Record) markRunning() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done || r.status != StatusQueued {
		return
	}
	r.status = StatusRunning
	r.touchLocked()
}

func (r *Record) finishedBefore(cutoff time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done && r.finishedAt.Before(cutoff)
}

func (r *Record) finishLocked(status Status) {
	r.done = true
	r.status = status
	r.touchLocked()
	r.finishedAt = r.updatedAt
}

// touchLocked は更新時刻を進めて待機中の読み手を起こします。
func (r *Record) touchLocked() {
	r.updatedAt = r.now().UTC()
	close(r.wake)
	r.wake = make(chan struct{})
}
