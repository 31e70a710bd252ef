package dto

import (
	"time"

	"ai-docqa-be/internal/entity"

	"github.com/google/uuid"
)

type OpenSessionRequest struct {
	DocumentId uuid.UUID  `json:"document_id" validate:"required"`
	SessionId  *uuid.UUID `json:"session_id,omitempty"`
}

type SessionResponse struct {
	Id         uuid.UUID  `json:"id"`
	DocumentId uuid.UUID  `json:"document_id"`
	Title      string     `json:"title"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at"`
}

type MessageResponse struct {
	Id        uuid.UUID                 `json:"id"`
	Role      string                    `json:"role"`
	Content   string                    `json:"content"`
	Grounding []entity.GroundingSegment `json:"grounding,omitempty"`
	CreatedAt time.Time                 `json:"created_at"`
}

type SessionDetailResponse struct {
	SessionResponse
	Messages []*MessageResponse `json:"messages"`
}

// ChatSocketRequest is one inbound frame on the chat websocket.
type ChatSocketRequest struct {
	Message   string     `json:"message"`
	SessionId *uuid.UUID `json:"session_id,omitempty"`
}

// ChatSocketFrame is one outbound frame on the chat websocket.
type ChatSocketFrame struct {
	Type           string                    `json:"type"`
	SessionId      *uuid.UUID                `json:"session_id,omitempty"`
	MessageId      *uuid.UUID                `json:"message_id,omitempty"`
	Content        string                    `json:"content,omitempty"`
	Code           string                    `json:"code,omitempty"`
	Grounding      []entity.GroundingSegment `json:"grounding,omitempty"`
	DocumentStatus *DocumentStatusResponse   `json:"document_status,omitempty"`
}
