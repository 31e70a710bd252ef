package service

import (
	"context"
	"time"

	"ai-docqa-be/internal/dto"
)

// Pinger reports whether the database answers. *sql.DB implements it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type IHealthService interface {
	Check(ctx context.Context) *dto.HealthResponse
}

type healthService struct {
	db     Pinger
	search ISearchService
}

// NewHealthService builds the health check. db is nil for the memory driver.
func NewHealthService(db Pinger, search ISearchService) IHealthService {
	return &healthService{db: db, search: search}
}

func (h *healthService) Check(ctx context.Context) *dto.HealthResponse {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res := &dto.HealthResponse{Status: "ok", Database: "memory"}
	if h.db != nil {
		res.Database = "ok"
		if err := h.db.PingContext(ctx); err != nil {
			res.Status = "degraded"
			res.Database = "unreachable"
		}
	}

	stats, err := h.search.Stats(ctx)
	if err != nil {
		res.Status = "degraded"
		return res
	}
	res.Index = *stats
	return res
}
