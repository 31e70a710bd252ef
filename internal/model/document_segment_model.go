package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// DocumentSegment is the persisted vector record. The embedding column is left
// without a fixed dimension so both embedding providers can share the table.
type DocumentSegment struct {
	Id           uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	DocumentId   uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_segment_document_index,priority:1"`
	SegmentIndex int             `gorm:"not null;uniqueIndex:idx_segment_document_index,priority:2"`
	Content      string          `gorm:"type:text;not null"`
	Embedding    pgvector.Vector `gorm:"type:vector"`
	Metadata     datatypes.JSON  `gorm:"type:jsonb"`
	CreatedAt    time.Time       `gorm:"autoCreateTime"`
}

func (DocumentSegment) TableName() string {
	return "document_segments"
}

// SegmentMetadata is the shape stored in DocumentSegment.Metadata.
type SegmentMetadata struct {
	ChunkLength int `json:"chunk_length"`
	StartOffset int `json:"start_offset"`
	EndOffset   int `json:"end_offset"`
}
