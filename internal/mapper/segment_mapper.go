package mapper

import (
	"encoding/json"

	"ai-docqa-be/internal/entity"
	"ai-docqa-be/internal/model"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

type SegmentMapper struct{}

func NewSegmentMapper() *SegmentMapper {
	return &SegmentMapper{}
}

func (m *SegmentMapper) ToEntity(s *model.DocumentSegment) *entity.Segment {
	if s == nil {
		return nil
	}

	var meta model.SegmentMetadata
	if len(s.Metadata) > 0 {
		// Metadata is written by ToModel only; a decode failure leaves offsets zeroed.
		_ = json.Unmarshal(s.Metadata, &meta)
	}

	length := meta.ChunkLength
	if length == 0 {
		length = len([]rune(s.Content))
	}

	return &entity.Segment{
		Id:          s.Id,
		DocumentId:  s.DocumentId,
		Index:       s.SegmentIndex,
		Text:        s.Content,
		Length:      length,
		StartOffset: meta.StartOffset,
		EndOffset:   meta.EndOffset,
		Embedding:   s.Embedding.Slice(),
		CreatedAt:   s.CreatedAt,
	}
}

func (m *SegmentMapper) ToModel(s *entity.Segment) *model.DocumentSegment {
	if s == nil {
		return nil
	}

	meta, _ := json.Marshal(model.SegmentMetadata{
		ChunkLength: s.Length,
		StartOffset: s.StartOffset,
		EndOffset:   s.EndOffset,
	})

	return &model.DocumentSegment{
		Id:           s.Id,
		DocumentId:   s.DocumentId,
		SegmentIndex: s.Index,
		Content:      s.Text,
		Embedding:    pgvector.NewVector(s.Embedding),
		Metadata:     datatypes.JSON(meta),
		CreatedAt:    s.CreatedAt,
	}
}

func (m *SegmentMapper) ToModels(segments []*entity.Segment) []*model.DocumentSegment {
	models := make([]*model.DocumentSegment, len(segments))
	for i, s := range segments {
		models[i] = m.ToModel(s)
	}
	return models
}

func (m *SegmentMapper) ToEntities(models []*model.DocumentSegment) []*entity.Segment {
	entities := make([]*entity.Segment, len(models))
	for i, s := range models {
		entities[i] = m.ToEntity(s)
	}
	return entities
}
