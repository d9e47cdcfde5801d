package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vatsight/pipeline/internal/core/domain"
)

func job(id string, priority int) domain.QueueJob {
	return domain.QueueJob{ID: id, DocumentID: "doc-" + id, Priority: priority}
}

func TestQueueConservesJobCounts(t *testing.T) {
	q := New(Config{MaxBatchSize: 4, MaxWait: 10 * time.Millisecond, Workers: 2}, func(_ context.Context, j domain.QueueJob) error {
		if j.Priority < 0 {
			return errors.New("boom")
		}
		return nil
	})

	const total = 20
	for i := 0; i < total; i++ {
		priority := 0
		if i%4 == 0 {
			priority = -1
		}
		if err := q.Submit(job(fmt.Sprintf("j-%d", i), priority)); err != nil {
			t.Fatalf("Submit error = %v", err)
		}
	}
	q.Close()

	stats := q.Stats()
	if stats.Submitted != total {
		t.Fatalf("expected %d submitted, got %d", total, stats.Submitted)
	}
	if stats.Pending != 0 {
		t.Fatalf("expected no pending jobs after Close, got %d", stats.Pending)
	}
	if stats.Succeeded+stats.Failed != stats.Submitted {
		t.Fatalf("count conservation violated: %d + %d != %d", stats.Succeeded, stats.Failed, stats.Submitted)
	}
	if stats.Failed != 5 {
		t.Fatalf("expected 5 failures, got %d", stats.Failed)
	}
}

func TestQueueRunsBatchByPriorityThenFIFO(t *testing.T) {
	var mu sync.Mutex
	var order []string

	q := New(Config{MaxBatchSize: 5, MaxWait: time.Hour, Workers: 1}, func(_ context.Context, j domain.QueueJob) error {
		mu.Lock()
		order = append(order, j.ID)
		mu.Unlock()
		return nil
	})

	// The fifth submit fills the batch and triggers the flush.
	jobs := []domain.QueueJob{
		job("low-1", 0),
		job("high-1", 5),
		job("low-2", 0),
		job("high-2", 5),
		job("mid-1", 2),
	}
	for _, j := range jobs {
		if err := q.Submit(j); err != nil {
			t.Fatalf("Submit error = %v", err)
		}
	}
	q.Close()

	want := []string{"high-1", "high-2", "mid-1", "low-1", "low-2"}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != len(want) {
		t.Fatalf("expected %d processed jobs, got %v", len(want), order)
	}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("position %d: got %s, want %s (full order %v)", i, order[i], id, order)
		}
	}
}

func TestQueueFlushesOnMaxWait(t *testing.T) {
	processed := make(chan string, 1)
	q := New(Config{MaxBatchSize: 100, MaxWait: 20 * time.Millisecond, Workers: 1}, func(_ context.Context, j domain.QueueJob) error {
		processed <- j.ID
		return nil
	})
	defer q.Close()

	if err := q.Submit(job("solo", 0)); err != nil {
		t.Fatalf("Submit error = %v", err)
	}

	select {
	case id := <-processed:
		if id != "solo" {
			t.Fatalf("unexpected job %s", id)
		}
	case <-time.After(time.Second):
		t.Fatalf("partial batch was not flushed on max wait")
	}
}

func TestQueueFailureDoesNotAffectSiblings(t *testing.T) {
	var mu sync.Mutex
	var succeeded []string

	q := New(Config{MaxBatchSize: 3, MaxWait: 10 * time.Millisecond, Workers: 2}, func(_ context.Context, j domain.QueueJob) error {
		if j.ID == "bad" {
			return errors.New("boom")
		}
		mu.Lock()
		succeeded = append(succeeded, j.ID)
		mu.Unlock()
		return nil
	})

	for _, j := range []domain.QueueJob{job("good-1", 0), job("bad", 0), job("good-2", 0)} {
		if err := q.Submit(j); err != nil {
			t.Fatalf("Submit error = %v", err)
		}
	}
	q.Close()

	stats := q.Stats()
	if stats.Succeeded != 2 || stats.Failed != 1 {
		t.Fatalf("expected 2 succeeded and 1 failed, got %d/%d", stats.Succeeded, stats.Failed)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(succeeded) != 2 {
		t.Fatalf("expected both siblings to run, got %v", succeeded)
	}
}

func TestQueuePanicCountsAsFailure(t *testing.T) {
	q := New(Config{MaxBatchSize: 1, MaxWait: 10 * time.Millisecond, Workers: 1}, func(_ context.Context, j domain.QueueJob) error {
		panic("handler exploded")
	})

	if err := q.Submit(job("boom", 0)); err != nil {
		t.Fatalf("Submit error = %v", err)
	}
	q.Close()

	stats := q.Stats()
	if stats.Failed != 1 {
		t.Fatalf("expected the panicking job to count as failed, got %+v", stats)
	}
}

func TestQueueCancelRemovesPendingJob(t *testing.T) {
	q := New(Config{MaxBatchSize: 100, MaxWait: time.Hour, Workers: 1}, func(_ context.Context, j domain.QueueJob) error {
		return nil
	})

	if err := q.Submit(job("keep", 0)); err != nil {
		t.Fatalf("Submit error = %v", err)
	}
	if err := q.Submit(job("drop", 0)); err != nil {
		t.Fatalf("Submit error = %v", err)
	}

	if !q.Cancel("drop") {
		t.Fatalf("expected cancel to find the pending job")
	}
	if q.Cancel("drop") {
		t.Fatalf("expected second cancel to miss")
	}
	q.Close()

	stats := q.Stats()
	if stats.Succeeded != 1 {
		t.Fatalf("expected 1 succeeded, got %d", stats.Succeeded)
	}
	// A cancelled job terminates as failed so the counts stay conserved.
	if stats.Failed != 1 {
		t.Fatalf("expected cancelled job to count as failed, got %d", stats.Failed)
	}
	if stats.Succeeded+stats.Failed != stats.Submitted {
		t.Fatalf("count conservation violated: %+v", stats)
	}
}

func TestSubmitAfterCloseFails(t *testing.T) {
	q := New(Config{MaxBatchSize: 1, MaxWait: 10 * time.Millisecond, Workers: 1}, func(context.Context, domain.QueueJob) error {
		return nil
	})
	q.Close()
	if err := q.Submit(job("late", 0)); err == nil {
		t.Fatalf("expected error submitting to a closed queue")
	}
}
