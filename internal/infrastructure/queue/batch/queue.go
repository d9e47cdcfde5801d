package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vatsight/pipeline/internal/core/domain"
)

type Handler func(ctx context.Context, job domain.QueueJob) error

type Config struct {
	MaxBatchSize int
	MaxWait      time.Duration
	Workers      int
}

func DefaultConfig() Config {
	return Config{
		MaxBatchSize: 8,
		MaxWait:      500 * time.Millisecond,
		Workers:      4,
	}
}

type pendingJob struct {
	job domain.QueueJob
	seq uint64
}

// Queue batches submitted jobs and flushes a batch when it is full or when
// the max wait elapses, whichever comes first. Within a batch jobs run in
// priority order with FIFO tie-break, at most Workers at a time. One job's
// failure never blocks or fails its siblings.
type Queue struct {
	cfg     Config
	handler Handler

	mu      sync.Mutex
	pending []pendingJob
	seq     uint64
	fullCh  chan struct{}

	sem chan struct{}
	wg  sync.WaitGroup

	submitted atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
	procNanos atomic.Int64

	startedAt time.Time
	stop      chan struct{}
	loopDone  chan struct{}
}

type Stats struct {
	Submitted       uint64
	Succeeded       uint64
	Failed          uint64
	Pending         int
	AvgProcessingMs float64
	ThroughputPerS  float64
}

func New(cfg Config, handler Handler) *Queue {
	def := DefaultConfig()
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = def.MaxBatchSize
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = def.MaxWait
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}

	q := &Queue{
		cfg:       cfg,
		handler:   handler,
		fullCh:    make(chan struct{}, 1),
		sem:       make(chan struct{}, cfg.Workers),
		startedAt: time.Now(),
		stop:      make(chan struct{}),
		loopDone:  make(chan struct{}),
	}
	go q.flushLoop()
	return q
}

func (q *Queue) Submit(job domain.QueueJob) error {
	select {
	case <-q.stop:
		return errors.New("queue is shut down")
	default:
	}

	q.mu.Lock()
	q.seq++
	job.Status = domain.JobQueued
	q.pending = append(q.pending, pendingJob{job: job, seq: q.seq})
	full := len(q.pending) >= q.cfg.MaxBatchSize
	q.mu.Unlock()

	q.submitted.Add(1)
	if full {
		select {
		case q.fullCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// Cancel removes a job that has not started processing. A mid-flight job
// completes normally; the caller invalidates its cached result instead.
func (q *Queue) Cancel(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, p := range q.pending {
		if p.job.ID == jobID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			q.failed.Add(1)
			return true
		}
	}
	return false
}

func (q *Queue) flushLoop() {
	defer close(q.loopDone)
	timer := time.NewTimer(q.cfg.MaxWait)
	defer timer.Stop()

	for {
		select {
		case <-q.stop:
			q.flush(context.Background())
			return
		case <-q.fullCh:
		case <-timer.C:
		}
		q.flush(context.Background())
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(q.cfg.MaxWait)
	}
}

func (q *Queue) flush(ctx context.Context) {
	q.mu.Lock()
	if len(q.pending) == 0 {
		q.mu.Unlock()
		return
	}
	sort.SliceStable(q.pending, func(i, j int) bool {
		if q.pending[i].job.Priority != q.pending[j].job.Priority {
			return q.pending[i].job.Priority > q.pending[j].job.Priority
		}
		return q.pending[i].seq < q.pending[j].seq
	})
	n := len(q.pending)
	if n > q.cfg.MaxBatchSize {
		n = q.cfg.MaxBatchSize
	}
	batch := make([]pendingJob, n)
	copy(batch, q.pending[:n])
	q.pending = q.pending[n:]
	q.mu.Unlock()

	for _, p := range batch {
		q.sem <- struct{}{}
		q.wg.Add(1)
		go q.runJob(ctx, p.job)
	}
}

func (q *Queue) runJob(ctx context.Context, job domain.QueueJob) {
	defer q.wg.Done()
	defer func() { <-q.sem }()
	defer func() {
		if r := recover(); r != nil {
			q.failed.Add(1)
			slog.Error("job panicked", "job_id", job.ID, "panic", fmt.Sprint(r))
		}
	}()

	start := time.Now()
	err := q.handler(ctx, job)
	q.procNanos.Add(int64(time.Since(start)))

	if err != nil {
		q.failed.Add(1)
		return
	}
	q.succeeded.Add(1)
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	pending := len(q.pending)
	q.mu.Unlock()

	succeeded := q.succeeded.Load()
	failed := q.failed.Load()
	done := succeeded + failed

	var avgMs float64
	if done > 0 {
		avgMs = float64(q.procNanos.Load()) / float64(done) / float64(time.Millisecond)
	}
	elapsed := time.Since(q.startedAt).Seconds()
	var throughput float64
	if elapsed > 0 {
		throughput = float64(done) / elapsed
	}

	return Stats{
		Submitted:       q.submitted.Load(),
		Succeeded:       succeeded,
		Failed:          failed,
		Pending:         pending,
		AvgProcessingMs: avgMs,
		ThroughputPerS:  throughput,
	}
}

// Close flushes remaining jobs and waits for in-flight work.
func (q *Queue) Close() {
	close(q.stop)
	<-q.loopDone
	for {
		q.mu.Lock()
		remaining := len(q.pending)
		q.mu.Unlock()
		if remaining == 0 {
			break
		}
		q.flush(context.Background())
	}
	q.wg.Wait()
}
