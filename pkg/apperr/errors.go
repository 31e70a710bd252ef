// Package apperr holds the error taxonomy shared by the ingestion pipeline,
// the chat session engine and the transport layer.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the coarse class of a failure. Callers branch on it.
type Kind string

const (
	KindValidation             Kind = "validation"
	KindNotFound               Kind = "not_found"
	KindExtraction             Kind = "extraction"
	KindEmbedding              Kind = "embedding"
	KindIndexing               Kind = "indexing"
	KindRetrievalUnavailable   Kind = "retrieval_unavailable"
	KindGeneration             Kind = "generation"
	KindConcurrentTurnRejected Kind = "concurrent_turn_rejected"
	KindInternal               Kind = "internal"
)

// Reason narrows a Kind to the collaborator failure that produced it.
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonUnsupportedFormat     Reason = "unsupported_format"
	ReasonCorruptFile           Reason = "corrupt_file"
	ReasonProviderUnavailable   Reason = "provider_unavailable"
	ReasonRateLimited           Reason = "rate_limited"
	ReasonGenerationInterrupted Reason = "generation_interrupted"
	ReasonTimeout               Reason = "timeout"
)

// Error is the structured error type returned across package boundaries.
type Error struct {
	Kind    Kind
	Reason  Reason
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Message != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Kind, and on Reason when the target carries one.
// This lets errors.Is(err, ErrEmbedding) and errors.Is(err, ErrRateLimited)
// both hold for a rate limited embedding call.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	return t.Reason == ReasonNone || t.Reason == e.Reason
}

// Detail is the human readable form stored on failed documents and sent to chat clients.
func (e *Error) Detail() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Reason != ReasonNone {
		if msg == "" {
			return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
		}
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Reason, msg)
	}
	if msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Sentinels for errors.Is. Reason-less sentinels match any reason of the kind.
var (
	ErrValidation             = &Error{Kind: KindValidation}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrExtraction             = &Error{Kind: KindExtraction}
	ErrEmbedding              = &Error{Kind: KindEmbedding}
	ErrIndexing               = &Error{Kind: KindIndexing}
	ErrRetrievalUnavailable   = &Error{Kind: KindRetrievalUnavailable}
	ErrGeneration             = &Error{Kind: KindGeneration}
	ErrConcurrentTurnRejected = &Error{Kind: KindConcurrentTurnRejected}
	ErrInternal               = &Error{Kind: KindInternal}

	ErrUnsupportedFormat     = &Error{Kind: KindExtraction, Reason: ReasonUnsupportedFormat}
	ErrCorruptFile           = &Error{Kind: KindExtraction, Reason: ReasonCorruptFile}
	ErrGenerationInterrupted = &Error{Kind: KindGeneration, Reason: ReasonGenerationInterrupted}
)

// ErrRateLimited and ErrProviderUnavailable match across kinds, so they apply
// to both embedding and generation failures.
var (
	ErrRateLimited         = &Error{Reason: ReasonRateLimited}
	ErrProviderUnavailable = &Error{Reason: ReasonProviderUnavailable}
	ErrTimeout             = &Error{Reason: ReasonTimeout}
)

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to cause. A nil cause yields nil.
func Wrap(kind Kind, message string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithReason returns a copy of e narrowed to reason.
func (e *Error) WithReason(reason Reason) *Error {
	cp := *e
	cp.Reason = reason
	return &cp
}

func Validation(message string) *Error { return New(KindValidation, message) }

func NotFound(what string) *Error { return Newf(KindNotFound, "%s not found", what) }

// KindOf reports the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf reports the Reason of the first *Error in err's chain.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ReasonNone
}

// Classify returns err as an *Error of the given kind. Errors that already
// carry a kind keep it so collaborator reasons survive the stage boundary.
func Classify(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == "" {
			cp := *e
			cp.Kind = kind
			return &cp
		}
		return e
	}
	return &Error{Kind: kind, Cause: err}
}

// DetailOf renders err for users, falling back to err.Error().
func DetailOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail()
	}
	return err.Error()
}
