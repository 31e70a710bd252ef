package entity

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// GroundingSegment records one segment supplied as context for an assistant answer.
type GroundingSegment struct {
	SegmentIndex int     `json:"segment_index"`
	Text         string  `json:"text"`
	Score        float64 `json:"score"`
}

type ChatMessage struct {
	Id            uuid.UUID
	ChatSessionId uuid.UUID
	Role          string
	Content       string
	Grounding     []GroundingSegment
	CreatedAt     time.Time
}
