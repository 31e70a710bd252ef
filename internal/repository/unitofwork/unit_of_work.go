package unitofwork

import (
	"context"

	"ai-docqa-be/internal/repository/contract"
)

// UnitOfWork hands out repositories bound to one transaction once Begin has
// been called; before that they run against the shared connection.
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	DocumentRepository() contract.DocumentRepository
	SegmentRepository() contract.SegmentRepository
	ChatSessionRepository() contract.ChatSessionRepository
	ChatMessageRepository() contract.ChatMessageRepository
}
