package handler

import (
	"errors"
	"testing"

	"ai-docqa-be/internal/entity"
	"ai-docqa-be/pkg/apperr"
	"ai-docqa-be/pkg/rag/session"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToFrame(t *testing.T) {
	sessionId, messageId := uuid.New(), uuid.New()
	grounding := []entity.GroundingSegment{{SegmentIndex: 2, Text: "Cats sleep.", Score: 0.8}}

	tests := []struct {
		name  string
		event session.Event
		check func(t *testing.T, frameType, content, code string, hasMessageId bool)
	}{
		{
			name:  "token",
			event: session.Event{Type: session.EventToken, SessionID: sessionId, Content: "Cats "},
			check: func(t *testing.T, frameType, content, code string, hasMessageId bool) {
				assert.Equal(t, "answer_chunk", frameType)
				assert.Equal(t, "Cats ", content)
				assert.False(t, hasMessageId)
			},
		},
		{
			name:  "complete",
			event: session.Event{Type: session.EventComplete, SessionID: sessionId, Content: "Cats sleep.", MessageID: messageId, Grounding: grounding},
			check: func(t *testing.T, frameType, content, code string, hasMessageId bool) {
				assert.Equal(t, "complete", frameType)
				assert.True(t, hasMessageId)
				assert.Empty(t, code)
			},
		},
		{
			name:  "error",
			event: session.Event{Type: session.EventError, SessionID: sessionId, Content: "generation timed out", Code: apperr.KindGeneration},
			check: func(t *testing.T, frameType, content, code string, hasMessageId bool) {
				assert.Equal(t, "error", frameType)
				assert.Equal(t, "generation", code)
				assert.Equal(t, "generation timed out", content)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := toFrame(tt.event)
			require.NotNil(t, frame.SessionId)
			assert.Equal(t, sessionId, *frame.SessionId)
			tt.check(t, frame.Type, frame.Content, frame.Code, frame.MessageId != nil)
			if tt.event.Type == session.EventComplete {
				assert.Equal(t, messageId, *frame.MessageId)
				assert.Equal(t, grounding, frame.Grounding)
			}
		})
	}
}

func TestErrorFrame(t *testing.T) {
	frame := errorFrame(nil, apperr.New(apperr.KindConcurrentTurnRejected, "a turn is already in progress"))
	assert.Equal(t, FrameError, frame.Type)
	assert.Equal(t, "concurrent_turn_rejected", frame.Code)
	assert.Equal(t, "a turn is already in progress", frame.Content)
	assert.Nil(t, frame.SessionId)

	frame = errorFrame(nil, errors.New("pq: connection reset"))
	assert.Equal(t, "internal", frame.Code)
	assert.Equal(t, "Internal server error", frame.Content)
}
