package dto

import "github.com/google/uuid"

type SemanticSearchRequest struct {
	Query      string    `json:"query" validate:"required"`
	DocumentId uuid.UUID `json:"document_id" validate:"required"`
	TopK       int       `json:"top_k" validate:"omitempty,min=1,max=50"`
}

type SearchResultMetadata struct {
	StartOffset int `json:"start_offset"`
	EndOffset   int `json:"end_offset"`
	Length      int `json:"length"`
}

type SearchResultResponse struct {
	SegmentIndex int                  `json:"segment_index"`
	Text         string               `json:"text"`
	Score        float64              `json:"score"`
	Metadata     SearchResultMetadata `json:"metadata"`
}

type SemanticSearchResponse struct {
	Query      string                  `json:"query"`
	DocumentId uuid.UUID               `json:"document_id"`
	Results    []*SearchResultResponse `json:"results"`
}

type IndexStatsResponse struct {
	TotalRecords int64            `json:"total_records"`
	Documents    map[string]int64 `json:"documents"`
}

type HealthResponse struct {
	Status   string             `json:"status"`
	Database string             `json:"database"`
	Index    IndexStatsResponse `json:"index"`
}
