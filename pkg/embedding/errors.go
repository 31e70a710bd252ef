package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"ai-docqa-be/pkg/apperr"
)

// classifyStatus maps a non-2xx provider response to the embedding taxonomy.
func classifyStatus(provider string, status int, body string) error {
	reason := apperr.ReasonProviderUnavailable
	if status == http.StatusTooManyRequests {
		reason = apperr.ReasonRateLimited
	}
	return &apperr.Error{
		Kind:    apperr.KindEmbedding,
		Reason:  reason,
		Message: fmt.Sprintf("%s returned status %d: %s", provider, status, truncate(body, 200)),
	}
}

// classifyTransport maps a request error (no response) to the embedding taxonomy.
func classifyTransport(provider string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	reason := apperr.ReasonProviderUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		reason = apperr.ReasonTimeout
	}
	return &apperr.Error{
		Kind:    apperr.KindEmbedding,
		Reason:  reason,
		Message: provider + " request failed",
		Cause:   err,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
