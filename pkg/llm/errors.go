package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"ai-docqa-be/pkg/apperr"
)

// StatusError maps a non-2xx provider response to the generation taxonomy.
func StatusError(provider string, status int, body string) error {
	reason := apperr.ReasonProviderUnavailable
	if status == http.StatusTooManyRequests {
		reason = apperr.ReasonRateLimited
	}
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return &apperr.Error{
		Kind:    apperr.KindGeneration,
		Reason:  reason,
		Message: fmt.Sprintf("%s returned status %d: %s", provider, status, body),
	}
}

// TransportError maps a failure before any answer text arrived.
func TransportError(provider string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	reason := apperr.ReasonProviderUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		reason = apperr.ReasonTimeout
	}
	return &apperr.Error{Kind: apperr.KindGeneration, Reason: reason, Message: provider + " request failed", Cause: err}
}

// InterruptedError marks a stream that broke after it started producing text.
func InterruptedError(provider string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	reason := apperr.ReasonGenerationInterrupted
	if errors.Is(err, context.DeadlineExceeded) {
		reason = apperr.ReasonTimeout
	}
	return &apperr.Error{Kind: apperr.KindGeneration, Reason: reason, Message: provider + " stream interrupted", Cause: err}
}
