package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsIs(t *testing.T) {
	rateLimited := &Error{Kind: KindEmbedding, Reason: ReasonRateLimited, Message: "429"}
	wrapped := fmt.Errorf("embed chunk 3: %w", rateLimited)

	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"kind matches", wrapped, ErrEmbedding, true},
		{"reason matches across kinds", wrapped, ErrRateLimited, true},
		{"other kind", wrapped, ErrGeneration, false},
		{"other reason", wrapped, ErrProviderUnavailable, false},
		{"extraction subtype", &Error{Kind: KindExtraction, Reason: ReasonCorruptFile}, ErrExtraction, true},
		{"extraction subtype exact", &Error{Kind: KindExtraction, Reason: ReasonCorruptFile}, ErrUnsupportedFormat, false},
		{"plain error", errors.New("boom"), ErrInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(KindIndexing, nil))

	plain := Classify(KindIndexing, errors.New("disk full"))
	assert.Equal(t, KindIndexing, plain.Kind)
	assert.Equal(t, "indexing: disk full", plain.Detail())

	typed := Classify(KindIndexing, &Error{Kind: KindEmbedding, Reason: ReasonTimeout})
	assert.Equal(t, KindEmbedding, typed.Kind)

	kindless := Classify(KindGeneration, &Error{Reason: ReasonRateLimited, Message: "slow down"})
	assert.Equal(t, KindGeneration, kindless.Kind)
	assert.Equal(t, "generation: rate_limited: slow down", kindless.Detail())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("wrap: %w", NotFound("document"))))
	assert.Equal(t, KindInternal, KindOf(errors.New("x")))
	assert.Equal(t, ReasonCorruptFile, ReasonOf(ErrCorruptFile))
	assert.Equal(t, "validation: file is empty", DetailOf(Validation("file is empty")))
}
