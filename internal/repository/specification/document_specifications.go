package specification

import (
	"ai-docqa-be/internal/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ByStatus struct {
	Status entity.ProcessingStatus
}

func (s ByStatus) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("status = ?", string(s.Status))
}

// ByDocumentID filters child rows (segments, sessions) by their owning document.
type ByDocumentID struct {
	DocumentID uuid.UUID
}

func (s ByDocumentID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("document_id = ?", s.DocumentID)
}
