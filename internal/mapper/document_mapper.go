package mapper

import (
	"time"

	"ai-docqa-be/internal/entity"
	"ai-docqa-be/internal/model"

	"github.com/google/uuid"
)

type DocumentMapper struct{}

func NewDocumentMapper() *DocumentMapper {
	return &DocumentMapper{}
}

func (m *DocumentMapper) ToEntity(d *model.Document) *entity.Document {
	if d == nil {
		return nil
	}

	var updatedAt *time.Time
	if !d.UpdatedAt.IsZero() {
		t := d.UpdatedAt
		updatedAt = &t
	}

	var claimToken uuid.UUID
	if d.ClaimToken != nil {
		claimToken = *d.ClaimToken
	}

	return &entity.Document{
		Id:                  d.Id,
		OriginalName:        d.OriginalName,
		StoredName:          d.StoredName,
		FilePath:            d.FilePath,
		FileSize:            d.FileSize,
		FileType:            d.FileType,
		Status:              entity.ProcessingStatus(d.Status),
		ChunkCount:          d.ChunkCount,
		ErrorDetail:         d.ErrorDetail,
		ClaimToken:          claimToken,
		ProcessingStartedAt: d.ProcessingStartedAt,
		ProcessedAt:         d.ProcessedAt,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           updatedAt,
	}
}

func (m *DocumentMapper) ToModel(d *entity.Document) *model.Document {
	if d == nil {
		return nil
	}

	var updatedAt time.Time
	if d.UpdatedAt != nil {
		updatedAt = *d.UpdatedAt
	}

	var claimToken *uuid.UUID
	if d.ClaimToken != uuid.Nil {
		token := d.ClaimToken
		claimToken = &token
	}

	return &model.Document{
		Id:                  d.Id,
		OriginalName:        d.OriginalName,
		StoredName:          d.StoredName,
		FilePath:            d.FilePath,
		FileSize:            d.FileSize,
		FileType:            d.FileType,
		Status:              string(d.Status),
		ChunkCount:          d.ChunkCount,
		ErrorDetail:         d.ErrorDetail,
		ClaimToken:          claimToken,
		ProcessingStartedAt: d.ProcessingStartedAt,
		ProcessedAt:         d.ProcessedAt,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           updatedAt,
	}
}

func (m *DocumentMapper) ToEntities(models []*model.Document) []*entity.Document {
	entities := make([]*entity.Document, len(models))
	for i, d := range models {
		entities[i] = m.ToEntity(d)
	}
	return entities
}
