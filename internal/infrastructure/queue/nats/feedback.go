package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/vatsight/pipeline/internal/core/domain"
)

// Feedback events fan out to every worker process so each local template
// weight table sees the same signal. Plain subscription, no queue group.

func (q *Queue) PublishFeedback(ctx context.Context, record domain.FeedbackRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal feedback record: %w", err)
	}

	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.feedbackSubject, payload); err != nil {
			return fmt.Errorf("nats publish feedback: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish_feedback", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeFeedback registers a handler and returns immediately; the
// subscription lives until the connection closes.
func (q *Queue) SubscribeFeedback(ctx context.Context, handler func(domain.FeedbackRecord)) error {
	_, err := q.conn.Subscribe(q.feedbackSubject, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}

		var record domain.FeedbackRecord
		if err := json.Unmarshal(msg.Data, &record); err != nil {
			slog.Error("drop malformed feedback payload", "error", err)
			return
		}
		handler(record)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe feedback: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	return nil
}

// Learner adapts the queue to the non-blocking learner contract: the API
// process submits feedback here and the worker's learning loop consumes it
// off the feedback subject.
type Learner struct {
	Queue  *Queue
	Logger *slog.Logger
}

func (l Learner) Submit(record domain.FeedbackRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := l.Queue.PublishFeedback(ctx, record); err != nil {
		logger := l.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("publish feedback record", "record_id", record.ID, "error", err)
	}
}
