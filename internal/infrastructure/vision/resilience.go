package vision

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/vatsight/pipeline/internal/core/domain"
	"github.com/vatsight/pipeline/internal/infrastructure/resilience"
)

type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e == nil {
		return "model status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("model status: %s", e.Status)
	}
	return fmt.Sprintf("model status: %s: %s", e.Status, e.Body)
}

func classifyModelError(err error) resilience.Verdict {
	if err == nil {
		return resilience.Verdict{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// Per-call timeout: retried by the executor, but the breaker should
		// not punish cancellation coming from the caller.
		return resilience.Verdict{Retryable: true, RecordFailure: false}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.Verdict{Retryable: false, RecordFailure: true}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if isRetryableStatus(statusErr.StatusCode) {
			return resilience.Verdict{Retryable: true, RecordFailure: true}
		}
		return resilience.Verdict{Retryable: false, RecordFailure: false}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.Verdict{Retryable: true, RecordFailure: true}
	}

	return resilience.Verdict{Retryable: false, RecordFailure: true}
}

// wrapExternal tags exhausted retries and breaker rejections with the
// external-api error kind so the job-terminal policy upstream can act on it.
func wrapExternal(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrExternalAPI) {
		return err
	}
	return domain.WrapError(domain.ErrExternalAPI, operation, err)
}

func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
