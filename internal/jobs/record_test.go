package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRecordDrainsInOrderAndEndsWithTerminalEvent(t *testing.T) {
	rec := newRecord("job-1", nil)
	rec.markRunning()
	rec.Append(ProgressEvent{Type: EventProgress, Pct: 10, Stage: "parse"})
	rec.Append(ProgressEvent{Type: EventProgress, Pct: 60, Stage: "translate"})
	if err := rec.Complete(&ResultPayload{Filename: "a (双语).pdf", PDFBase64: "JVBERg=="}); err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}

	ctx := context.Background()
	var got []ProgressEvent
	for {
		ev, last, err := rec.DrainNext(ctx, 10*time.Millisecond)
		if err != nil {
			t.Fatalf("DrainNext returned error: %v", err)
		}
		got = append(got, ev)
		if last {
			break
		}
	}
	if len(got) != 3 || got[0].Pct != 10 || got[1].Pct != 60 {
		t.Fatalf("unexpected events: %#v", got)
	}
	if got[2].Type != EventDone || got[2].Pct != 100 || got[2].Stage != "done" {
		t.Fatalf("unexpected terminal event: %#v", got[2])
	}

	if _, _, err := rec.DrainNext(ctx, 10*time.Millisecond); !errors.Is(err, ErrNoMoreEvents) {
		t.Fatalf("expected ErrNoMoreEvents, got %v", err)
	}
}

func TestRecordFailCarriesLastPercent(t *testing.T) {
	rec := newRecord("job-1", nil)
	rec.Append(ProgressEvent{Type: EventProgress, Pct: 37, Stage: "translate"})
	if err := rec.Fail(&ErrorPayload{Error: "boom", Detail: "trace"}); err != nil {
		t.Fatalf("Fail returned error: %v", err)
	}

	ctx := context.Background()
	if _, last, _ := rec.DrainNext(ctx, time.Millisecond); last {
		t.Fatal("first event should not be last")
	}
	ev, last, err := rec.DrainNext(ctx, time.Millisecond)
	if err != nil || !last {
		t.Fatalf("expected terminal event, got last=%v err=%v", last, err)
	}
	if ev.Type != EventError || ev.Pct != 37 || ev.Message != "boom" || ev.Detail != "trace" {
		t.Fatalf("unexpected error event: %#v", ev)
	}

	result, failure, done := rec.Outcome()
	if !done || result != nil || failure == nil || failure.OK || failure.Error != "boom" {
		t.Fatalf("unexpected outcome: %v %#v %v", result, failure, done)
	}
	if snap := rec.Snapshot(); snap.Status != StatusFailed || snap.Error != "boom" {
		t.Fatalf("unexpected snapshot: %#v", snap)
	}
}

func TestRecordRejectsSecondCompletion(t *testing.T) {
	rec := newRecord("job-1", nil)
	if err := rec.Complete(&ResultPayload{Filename: "x.pdf"}); err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if err := rec.Fail(&ErrorPayload{Error: "late"}); !errors.Is(err, ErrAlreadyDone) {
		t.Fatalf("expected ErrAlreadyDone, got %v", err)
	}
	if rec.Append(ProgressEvent{Type: EventProgress, Pct: 5}) {
		t.Fatal("Append after completion should be rejected")
	}
	if rec.Pending() != 1 {
		t.Fatalf("only the terminal event should be queued, got %d", rec.Pending())
	}
	result, _, _ := rec.Outcome()
	if result == nil || !result.OK {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestRecordDrainNextTimesOutAndWakes(t *testing.T) {
	rec := newRecord("job-1", nil)
	ctx := context.Background()

	if _, _, err := rec.DrainNext(ctx, 5*time.Millisecond); !errors.Is(err, ErrIdle) {
		t.Fatalf("expected ErrIdle, got %v", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		rec.Append(ProgressEvent{Type: EventProgress, Pct: 1, Stage: "start"})
	}()
	ev, _, err := rec.DrainNext(ctx, 5*time.Second)
	if err != nil || ev.Pct != 1 {
		t.Fatalf("unexpected wake result: %#v %v", ev, err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, _, err := rec.DrainNext(canceled, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRecordConcurrentWriterAndReader(t *testing.T) {
	rec := newRecord("job-1", nil)
	const total = 200

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			rec.Append(ProgressEvent{Type: EventProgress, Pct: i % 101})
		}
		_ = rec.Complete(&ResultPayload{Filename: "x.pdf"})
	}()

	count := 0
	ctx := context.Background()
	for {
		_, last, err := rec.DrainNext(ctx, 50*time.Millisecond)
		if errors.Is(err, ErrIdle) {
			continue
		}
		if err != nil {
			t.Fatalf("DrainNext returned error: %v", err)
		}
		count++
		if last {
			break
		}
	}
	wg.Wait()
	if count != total+1 {
		t.Fatalf("read %d events, want %d", count, total+1)
	}
}

func TestRecordWait(t *testing.T) {
	rec := newRecord("job-1", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := rec.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	_ = rec.Complete(&ResultPayload{Filename: "x.pdf"})
	if err := rec.Wait(context.Background()); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
}
