package dto

import (
	"time"

	"github.com/google/uuid"
)

type SubmitDocumentRequest struct {
	FileName string `validate:"required"`
	Data     []byte
}

type DocumentResponse struct {
	Id           uuid.UUID  `json:"id"`
	OriginalName string     `json:"original_name"`
	FileType     string     `json:"file_type"`
	FileSize     int64      `json:"file_size"`
	Status       string     `json:"status"`
	ChunkCount   int        `json:"chunk_count"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

type DocumentStatusResponse struct {
	Id           uuid.UUID `json:"id"`
	Status       string    `json:"status"`
	ChunkCount   int       `json:"chunk_count"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

type SegmentResponse struct {
	Index       int    `json:"index"`
	Text        string `json:"text"`
	Length      int    `json:"length"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
}

// PublishIngestMessage is the payload of an ingestion job on the watermill topic.
type PublishIngestMessage struct {
	DocumentId uuid.UUID `json:"document_id"`
}
