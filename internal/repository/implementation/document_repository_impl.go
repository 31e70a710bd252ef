package implementation

import (
	"context"
	"errors"
	"time"

	"ai-docqa-be/internal/entity"
	"ai-docqa-be/internal/mapper"
	"ai-docqa-be/internal/model"
	"ai-docqa-be/internal/repository/contract"
	"ai-docqa-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DocumentRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.DocumentMapper
}

func NewDocumentRepository(db *gorm.DB) contract.DocumentRepository {
	return &DocumentRepositoryImpl{
		db:     db,
		mapper: mapper.NewDocumentMapper(),
	}
}

func (r *DocumentRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *DocumentRepositoryImpl) Create(ctx context.Context, document *entity.Document) error {
	m := r.mapper.ToModel(document)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*document = *r.mapper.ToEntity(m)
	return nil
}

func (r *DocumentRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Document{}).Error
}

func (r *DocumentRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Document, error) {
	var m model.Document
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *DocumentRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Document, error) {
	var models []*model.Document
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *DocumentRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.Document{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// transition runs a conditional status update. RowsAffected tells whether the
// guard held, which is what makes the claim a compare-and-swap.
func (r *DocumentRepositoryImpl) transition(ctx context.Context, query *gorm.DB, updates map[string]interface{}) (bool, error) {
	res := query.WithContext(ctx).Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// claimed matches a document still in processing under token.
func (r *DocumentRepositoryImpl) claimed(id, token uuid.UUID) *gorm.DB {
	return r.db.Model(&model.Document{}).
		Where("id = ? AND status = ? AND claim_token = ?", id, string(entity.StatusProcessing), token)
}

func (r *DocumentRepositoryImpl) ClaimPending(ctx context.Context, id uuid.UUID, token uuid.UUID, now time.Time) (bool, error) {
	query := r.db.Model(&model.Document{}).Where("id = ? AND status = ?", id, string(entity.StatusPending))
	return r.transition(ctx, query, map[string]interface{}{
		"status":                string(entity.StatusProcessing),
		"claim_token":           token,
		"processing_started_at": now,
		"error_detail":          "",
	})
}

func (r *DocumentRepositoryImpl) MarkCompleted(ctx context.Context, id uuid.UUID, token uuid.UUID, chunkCount int, now time.Time) (bool, error) {
	return r.transition(ctx, r.claimed(id, token), map[string]interface{}{
		"status":       string(entity.StatusCompleted),
		"claim_token":  nil,
		"chunk_count":  chunkCount,
		"processed_at": now,
	})
}

func (r *DocumentRepositoryImpl) MarkFailed(ctx context.Context, id uuid.UUID, token uuid.UUID, detail string, now time.Time) (bool, error) {
	return r.transition(ctx, r.claimed(id, token), map[string]interface{}{
		"status":       string(entity.StatusFailed),
		"claim_token":  nil,
		"chunk_count":  0,
		"error_detail": detail,
		"processed_at": now,
	})
}

func (r *DocumentRepositoryImpl) RequeueStale(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	var requeued []model.Document
	res := r.db.WithContext(ctx).
		Model(&requeued).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "id"}}}).
		Where("status = ? AND processing_started_at < ?", string(entity.StatusProcessing), cutoff).
		Updates(map[string]interface{}{
			"status":                string(entity.StatusPending),
			"claim_token":           nil,
			"processing_started_at": nil,
		})
	if res.Error != nil {
		return nil, res.Error
	}

	ids := make([]uuid.UUID, len(requeued))
	for i, d := range requeued {
		ids[i] = d.Id
	}
	return ids, nil
}
