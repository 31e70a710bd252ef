package memory

import (
	"context"
	"fmt"

	"ai-docqa-be/internal/repository/contract"
	"ai-docqa-be/internal/repository/unitofwork"
)

// UnitOfWork serializes transactions on a Store and undoes their writes on
// Rollback. Writers outside a unit of work are not blocked.
type UnitOfWork struct {
	store   *Store
	journal *journal
}

var _ unitofwork.UnitOfWork = &UnitOfWork{}

func (u *UnitOfWork) Begin(ctx context.Context) error {
	if u.journal != nil {
		return fmt.Errorf("transaction already started")
	}
	select {
	case u.store.txSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	u.journal = &journal{}
	return nil
}

func (u *UnitOfWork) Commit() error {
	if u.journal == nil {
		return fmt.Errorf("no transaction to commit")
	}
	u.journal = nil
	<-u.store.txSem
	return nil
}

func (u *UnitOfWork) Rollback() error {
	if u.journal == nil {
		return fmt.Errorf("no transaction to rollback")
	}
	u.store.mu.Lock()
	u.journal.rollback()
	u.store.mu.Unlock()
	u.journal = nil
	<-u.store.txSem
	return nil
}

func (u *UnitOfWork) DocumentRepository() contract.DocumentRepository {
	return &DocumentRepository{store: u.store, journal: u.journal}
}

func (u *UnitOfWork) SegmentRepository() contract.SegmentRepository {
	return &SegmentRepository{store: u.store, journal: u.journal}
}

func (u *UnitOfWork) ChatSessionRepository() contract.ChatSessionRepository {
	return &ChatSessionRepository{store: u.store, journal: u.journal}
}

func (u *UnitOfWork) ChatMessageRepository() contract.ChatMessageRepository {
	return &ChatMessageRepository{store: u.store, journal: u.journal}
}

type RepositoryFactory struct {
	store *Store
}

var _ unitofwork.RepositoryFactory = &RepositoryFactory{}

func NewRepositoryFactory(store *Store) *RepositoryFactory {
	return &RepositoryFactory{store: store}
}

func (f *RepositoryFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &UnitOfWork{store: f.store}
}

// Store exposes the backing store, mostly for tests and health checks.
func (f *RepositoryFactory) Store() *Store {
	return f.store
}
