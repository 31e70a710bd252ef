package implementation

import (
	"context"
	"fmt"

	"ai-docqa-be/internal/entity"
	"ai-docqa-be/internal/mapper"
	"ai-docqa-be/internal/model"
	"ai-docqa-be/internal/repository/contract"
	"ai-docqa-be/internal/repository/specification"
	"ai-docqa-be/pkg/database"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

const segmentInsertBatchSize = 100

type SegmentRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.SegmentMapper
}

func NewSegmentRepository(db *gorm.DB) contract.SegmentRepository {
	return &SegmentRepositoryImpl{
		db:     db,
		mapper: mapper.NewSegmentMapper(),
	}
}

func (r *SegmentRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

// ReplaceForDocument deletes and re-inserts inside one transaction. When r.db
// is already a unit-of-work transaction gorm nests this as a savepoint.
func (r *SegmentRepositoryImpl) ReplaceForDocument(ctx context.Context, documentId uuid.UUID, segments []*entity.Segment) error {
	models := r.mapper.ToModels(segments)
	for _, m := range models {
		m.DocumentId = documentId
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentId).Delete(&model.DocumentSegment{}).Error; err != nil {
			return err
		}
		if len(models) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(models, segmentInsertBatchSize).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("duplicate segment index for document %s: %w", documentId, err)
			}
			return err
		}
		return nil
	})
}

func (r *SegmentRepositoryImpl) DeleteByDocumentId(ctx context.Context, documentId uuid.UUID) error {
	return r.db.WithContext(ctx).Where("document_id = ?", documentId).Delete(&model.DocumentSegment{}).Error
}

func (r *SegmentRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Segment, error) {
	var models []*model.DocumentSegment
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *SegmentRepositoryImpl) CountByDocumentId(ctx context.Context, documentId uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.DocumentSegment{}).Where("document_id = ?", documentId).Count(&count).Error
	return count, err
}

func (r *SegmentRepositoryImpl) CountAll(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.DocumentSegment{}).Count(&count).Error
	return count, err
}

func (r *SegmentRepositoryImpl) SearchSimilar(ctx context.Context, documentId uuid.UUID, embedding []float32, limit int) ([]*entity.ScoredSegment, error) {
	if limit <= 0 {
		return []*entity.ScoredSegment{}, nil
	}

	// Cosine distance in pgvector is 1 - cosine_similarity.
	type result struct {
		model.DocumentSegment
		Similarity float64
	}
	var results []result

	queryVector := pgvector.NewVector(embedding)

	err := r.db.WithContext(ctx).
		Table("document_segments").
		Select("document_segments.*, 1 - (embedding <=> ?) as similarity", queryVector).
		Where("document_id = ?", documentId).
		Order("similarity DESC").
		Order("segment_index ASC").
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	scored := make([]*entity.ScoredSegment, len(results))
	for i := range results {
		scored[i] = &entity.ScoredSegment{
			Segment: r.mapper.ToEntity(&results[i].DocumentSegment),
			Score:   results[i].Similarity,
		}
	}
	return scored, nil
}
