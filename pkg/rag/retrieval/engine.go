package retrieval

import (
	"context"
	"errors"
	"strings"
	"time"

	"ai-docqa-be/internal/entity"
	"ai-docqa-be/internal/repository/specification"
	"ai-docqa-be/internal/repository/unitofwork"
	"ai-docqa-be/pkg/apperr"
	"ai-docqa-be/pkg/embedding"
	"ai-docqa-be/pkg/rag/index"

	"github.com/google/uuid"
)

const DefaultTopK = 5

type Engine struct {
	uowFactory   unitofwork.RepositoryFactory
	embedder     embedding.EmbeddingProvider
	index        *index.Index
	topK         int
	embedTimeout time.Duration
}

func NewEngine(uowFactory unitofwork.RepositoryFactory, embedder embedding.EmbeddingProvider, idx *index.Index, topK int, embedTimeout time.Duration) *Engine {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Engine{
		uowFactory:   uowFactory,
		embedder:     embedder,
		index:        idx,
		topK:         topK,
		embedTimeout: embedTimeout,
	}
}

func (e *Engine) TopK() int {
	return e.topK
}

// Ready fails with NotFound for an unknown document and RetrievalUnavailable
// for one that has not completed ingestion.
func (e *Engine) Ready(ctx context.Context, documentID uuid.UUID) (*entity.Document, error) {
	doc, err := e.uowFactory.NewUnitOfWork(ctx).DocumentRepository().FindOne(ctx, specification.ByID{ID: documentID})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "load document", err)
	}
	if doc == nil {
		return nil, apperr.NotFound("document")
	}
	if doc.Status != entity.StatusCompleted {
		return nil, apperr.Newf(apperr.KindRetrievalUnavailable, "document is not ready for querying (status: %s)", doc.Status)
	}
	return doc, nil
}

// Retrieve returns the k segments of the document most similar to query.
// k <= 0 uses the engine default.
func (e *Engine) Retrieve(ctx context.Context, documentID uuid.UUID, query string, k int) ([]*entity.ScoredSegment, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperr.Validation("query must not be empty")
	}
	if _, err := e.Ready(ctx, documentID); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = e.topK
	}

	embedCtx, cancel := ctx, context.CancelFunc(func() {})
	if e.embedTimeout > 0 {
		embedCtx, cancel = context.WithTimeout(ctx, e.embedTimeout)
	}
	vec, err := e.embedder.Generate(embedCtx, query, embedding.TaskRetrievalQuery)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &apperr.Error{Kind: apperr.KindEmbedding, Reason: apperr.ReasonTimeout, Message: "query embedding", Cause: err}
		}
		return nil, apperr.Classify(apperr.KindEmbedding, err)
	}

	results, err := e.index.Search(ctx, documentID, vec, k)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "search index", err)
	}
	return results, nil
}
