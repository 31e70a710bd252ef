package entity

import (
	"time"

	"github.com/google/uuid"
)

type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// IsTerminal reports whether no further pipeline transition can leave s.
func (s ProcessingStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s ProcessingStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

type Document struct {
	Id                  uuid.UUID
	OriginalName        string
	StoredName          string
	FilePath            string
	FileSize            int64
	FileType            string
	Status              ProcessingStatus
	ChunkCount          int
	ErrorDetail         string
	// ClaimToken identifies the run holding the processing claim; Nil when
	// the document is not claimed.
	ClaimToken          uuid.UUID
	ProcessingStartedAt *time.Time
	ProcessedAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           *time.Time
}
