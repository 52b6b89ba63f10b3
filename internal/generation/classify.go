package generation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/draftloom/draftloom/internal/llm"
	"github.com/draftloom/draftloom/pkg/schema"
)

const (
	// rateLimitCooldown is the fixed sleep before retrying a rate-limited call.
	rateLimitCooldown = 5 * time.Second

	// timeoutAttemptCap bounds total attempts once a timeout has occurred.
	timeoutAttemptCap = 2

	backoffBase = 1000 * time.Millisecond
	backoffMax  = 10000 * time.Millisecond
)

// Classify maps an attempt error onto the failure taxonomy.
func Classify(err error) schema.AttemptOutcome {
	if err == nil {
		return schema.OutcomeSuccess
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return schema.OutcomeTimeout
	}

	var draftErr *schema.DraftError
	if errors.As(err, &draftErr) {
		switch draftErr.Code {
		case schema.ErrCodeSchemaValidation:
			return schema.OutcomeSchemaInvalid
		case schema.ErrCodeTimeout:
			return schema.OutcomeTimeout
		case schema.ErrCodeRateLimited:
			return schema.OutcomeRateLimited
		case schema.ErrCodeInvalidCredentials:
			return schema.OutcomeInvalidCredentials
		}
	}

	var backendErr *llm.BackendError
	if errors.As(err, &backendErr) {
		switch backendErr.StatusCode {
		case 429:
			return schema.OutcomeRateLimited
		case 401, 403:
			return schema.OutcomeInvalidCredentials
		case 408, 504:
			return schema.OutcomeTimeout
		}
	}

	// String heuristics for providers that do not surface a status code.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "quota exceeded"):
		return schema.OutcomeRateLimited
	case strings.Contains(msg, "api key"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "authentication"),
		strings.Contains(msg, "invalid credentials"):
		return schema.OutcomeInvalidCredentials
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "timed out"),
		strings.Contains(msg, "deadline exceeded"):
		return schema.OutcomeTimeout
	}

	return schema.OutcomeOther
}

// BackoffFor is the pure wait-time function: (attempt, outcome) → delay
// before the next attempt. attempt is 1-based.
func BackoffFor(attempt int, outcome schema.AttemptOutcome) time.Duration {
	switch outcome {
	case schema.OutcomeRateLimited:
		return rateLimitCooldown
	case schema.OutcomeTimeout:
		// The attempt itself already consumed the full timeout window.
		return 0
	case schema.OutcomeInvalidCredentials:
		return 0
	}

	delay := backoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= backoffMax {
			return backoffMax
		}
	}
	if delay > backoffMax {
		delay = backoffMax
	}
	return delay
}

// AllowRetry decides whether another attempt may follow the given one.
// attempt is the 1-based index of the attempt that just failed.
func AllowRetry(attempt, maxRetries int, outcome schema.AttemptOutcome) bool {
	switch outcome {
	case schema.OutcomeInvalidCredentials:
		return false
	case schema.OutcomeTimeout:
		return attempt < timeoutAttemptCap && attempt < maxRetries
	}
	return attempt < maxRetries
}

// WaitForBackoff sleeps for the computed delay or returns early if the
// context is cancelled during the wait.
func WaitForBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
