package service

import (
	"context"

	"ai-docqa-be/internal/dto"
	"ai-docqa-be/internal/entity"
	"ai-docqa-be/internal/repository/specification"
	"ai-docqa-be/internal/repository/unitofwork"
	"ai-docqa-be/pkg/apperr"
	"ai-docqa-be/pkg/rag/index"
	"ai-docqa-be/pkg/rag/retrieval"
)

type ISearchService interface {
	Semantic(ctx context.Context, req *dto.SemanticSearchRequest) (*dto.SemanticSearchResponse, error)
	Stats(ctx context.Context) (*dto.IndexStatsResponse, error)
}

type searchService struct {
	uowFactory unitofwork.RepositoryFactory
	retrieval  *retrieval.Engine
	index      *index.Index
}

func NewSearchService(uowFactory unitofwork.RepositoryFactory, engine *retrieval.Engine, idx *index.Index) ISearchService {
	return &searchService{
		uowFactory: uowFactory,
		retrieval:  engine,
		index:      idx,
	}
}

func (s *searchService) Semantic(ctx context.Context, req *dto.SemanticSearchRequest) (*dto.SemanticSearchResponse, error) {
	results, err := s.retrieval.Retrieve(ctx, req.DocumentId, req.Query, req.TopK)
	if err != nil {
		return nil, err
	}

	res := &dto.SemanticSearchResponse{
		Query:      req.Query,
		DocumentId: req.DocumentId,
		Results:    make([]*dto.SearchResultResponse, 0, len(results)),
	}
	for _, r := range results {
		res.Results = append(res.Results, &dto.SearchResultResponse{
			SegmentIndex: r.Segment.Index,
			Text:         r.Segment.Text,
			Score:        r.Score,
			Metadata: dto.SearchResultMetadata{
				StartOffset: r.Segment.StartOffset,
				EndOffset:   r.Segment.EndOffset,
				Length:      r.Segment.Length,
			},
		})
	}
	return res, nil
}

func (s *searchService) Stats(ctx context.Context) (*dto.IndexStatsResponse, error) {
	stats, err := s.index.Stats(ctx)
	if err != nil {
		return nil, err
	}

	docs := s.uowFactory.NewUnitOfWork(ctx).DocumentRepository()
	byStatus := make(map[string]int64, 4)
	for _, st := range []entity.ProcessingStatus{entity.StatusPending, entity.StatusProcessing, entity.StatusCompleted, entity.StatusFailed} {
		n, err := docs.Count(ctx, specification.ByStatus{Status: st})
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "count documents", err)
		}
		byStatus[string(st)] = n
	}

	return &dto.IndexStatsResponse{TotalRecords: stats.TotalRecords, Documents: byStatus}, nil
}
