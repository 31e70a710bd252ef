package entity

import (
	"time"

	"github.com/google/uuid"
)

// Segment is one indexed chunk of a document together with its embedding.
type Segment struct {
	Id          uuid.UUID
	DocumentId  uuid.UUID
	Index       int
	Text        string
	Length      int
	StartOffset int
	EndOffset   int
	Embedding   []float32
	CreatedAt   time.Time
}

type ScoredSegment struct {
	Segment *Segment
	Score   float64
}
