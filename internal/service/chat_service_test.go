package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"ai-docqa-be/internal/dto"
	"ai-docqa-be/internal/entity"
	"ai-docqa-be/internal/pkg/logger"
	"ai-docqa-be/internal/repository/memory"
	"ai-docqa-be/internal/repository/specification"
	"ai-docqa-be/pkg/apperr"
	"ai-docqa-be/pkg/embedding"
	"ai-docqa-be/pkg/rag/index"
	"ai-docqa-be/pkg/rag/retrieval"
	"ai-docqa-be/pkg/rag/session"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type unitEmbedder struct{}

func (unitEmbedder) Generate(context.Context, string, embedding.TaskType) ([]float32, error) {
	return []float32{1, 0}, nil
}

func newCompletedDocument(t *testing.T, factory *memory.RepositoryFactory) *entity.Document {
	t.Helper()
	ctx := context.Background()
	doc := &entity.Document{OriginalName: "guide.txt", Status: entity.StatusCompleted, ChunkCount: 2}
	require.NoError(t, factory.NewUnitOfWork(ctx).DocumentRepository().Create(ctx, doc))
	return doc
}

func TestChatService_Sessions(t *testing.T) {
	ctx := context.Background()
	factory := memory.NewRepositoryFactory(memory.NewStore())
	doc := newCompletedDocument(t, factory)
	engine := session.NewEngine(factory, nil, nil, logger.NewNopLogger(), session.Config{})
	svc := NewChatService(factory, engine)

	first, created, err := svc.OpenSession(ctx, &dto.OpenSessionRequest{DocumentId: doc.Id})
	require.NoError(t, err)
	assert.True(t, created)
	time.Sleep(2 * time.Millisecond)
	second, _, err := svc.OpenSession(ctx, &dto.OpenSessionRequest{DocumentId: doc.Id})
	require.NoError(t, err)

	resumed, created, err := svc.OpenSession(ctx, &dto.OpenSessionRequest{DocumentId: doc.Id, SessionId: &first.Id})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.Id, resumed.Id)

	list, err := svc.ListSessions(ctx, doc.Id)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.Id, list[0].Id)
	assert.Equal(t, first.Id, list[1].Id)

	_, err = svc.ListSessions(ctx, uuid.New())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	messages := factory.NewUnitOfWork(ctx).ChatMessageRepository()
	now := time.Now()
	require.NoError(t, messages.Create(ctx, &entity.ChatMessage{ChatSessionId: first.Id, Role: entity.RoleUser, Content: "What is it?", CreatedAt: now}))
	require.NoError(t, messages.Create(ctx, &entity.ChatMessage{
		ChatSessionId: first.Id,
		Role:          entity.RoleAssistant,
		Content:       "A guide.",
		Grounding:     []entity.GroundingSegment{{SegmentIndex: 0, Text: "This guide", Score: 0.9}},
		CreatedAt:     now.Add(time.Millisecond),
	}))

	detail, err := svc.GetSession(ctx, first.Id)
	require.NoError(t, err)
	require.Len(t, detail.Messages, 2)
	assert.Equal(t, entity.RoleUser, detail.Messages[0].Role)
	assert.Equal(t, entity.RoleAssistant, detail.Messages[1].Role)
	assert.Len(t, detail.Messages[1].Grounding, 1)

	require.NoError(t, svc.DeleteSession(ctx, first.Id))
	_, err = svc.GetSession(ctx, first.Id)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	left, err := messages.Count(ctx, specification.ByChatSessionID{ChatSessionID: first.Id})
	require.NoError(t, err)
	assert.Zero(t, left)
}

func TestSearchService(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	factory := memory.NewRepositoryFactory(store)
	idx := index.New(memory.NewSegmentRepository(store))
	engine := retrieval.NewEngine(factory, unitEmbedder{}, idx, 1, time.Second)
	svc := NewSearchService(factory, engine, idx)

	doc := newCompletedDocument(t, factory)
	require.NoError(t, idx.UpsertAll(ctx, doc.Id, []*entity.Segment{
		{Index: 0, Text: "Install the package.", StartOffset: 0, EndOffset: 20, Length: 20, Embedding: []float32{1, 0}},
		{Index: 1, Text: "Unrelated footer.", StartOffset: 21, EndOffset: 38, Length: 17, Embedding: []float32{0, 1}},
	}))
	pending := &entity.Document{OriginalName: "later.txt", Status: entity.StatusPending}
	require.NoError(t, factory.NewUnitOfWork(ctx).DocumentRepository().Create(ctx, pending))

	res, err := svc.Semantic(ctx, &dto.SemanticSearchRequest{Query: "how to install", DocumentId: doc.Id})
	require.NoError(t, err)
	require.Len(t, res.Results, 1, "defaults to the configured top k")
	assert.Equal(t, "Install the package.", res.Results[0].Text)
	assert.Equal(t, 20, res.Results[0].Metadata.EndOffset)

	res, err = svc.Semantic(ctx, &dto.SemanticSearchRequest{Query: "how to install", DocumentId: doc.Id, TopK: 5})
	require.NoError(t, err)
	assert.Len(t, res.Results, 2)

	_, err = svc.Semantic(ctx, &dto.SemanticSearchRequest{Query: "anything", DocumentId: pending.Id})
	assert.True(t, errors.Is(err, apperr.ErrRetrievalUnavailable))

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalRecords)
	assert.Equal(t, int64(1), stats.Documents["completed"])
	assert.Equal(t, int64(1), stats.Documents["pending"])
	assert.Zero(t, stats.Documents["failed"])
}

type failingPinger struct{ err error }

func (p failingPinger) PingContext(context.Context) error { return p.err }

func TestHealthService_Check(t *testing.T) {
	store := memory.NewStore()
	factory := memory.NewRepositoryFactory(store)
	idx := index.New(memory.NewSegmentRepository(store))
	search := NewSearchService(factory, retrieval.NewEngine(factory, unitEmbedder{}, idx, 3, 0), idx)

	res := NewHealthService(nil, search).Check(context.Background())
	assert.Equal(t, "ok", res.Status)
	assert.Equal(t, "memory", res.Database)

	res = NewHealthService(failingPinger{}, search).Check(context.Background())
	assert.Equal(t, "ok", res.Status)
	assert.Equal(t, "ok", res.Database)

	res = NewHealthService(failingPinger{err: errors.New("connection refused")}, search).Check(context.Background())
	assert.Equal(t, "degraded", res.Status)
	assert.Equal(t, "unreachable", res.Database)
}
