package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ai-docqa-be/internal/dto"
	"ai-docqa-be/internal/entity"
	"ai-docqa-be/internal/pkg/logger"
	"ai-docqa-be/internal/repository/memory"
	"ai-docqa-be/internal/repository/specification"
	"ai-docqa-be/pkg/apperr"
	"ai-docqa-be/pkg/events"
	"ai-docqa-be/pkg/extractor"
	"ai-docqa-be/pkg/rag/chunker"
	"ai-docqa-be/pkg/rag/index"
	"ai-docqa-be/pkg/rag/ingest"
	"ai-docqa-be/pkg/rag/status"
	"ai-docqa-be/pkg/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingJobs struct {
	mu  sync.Mutex
	ids []uuid.UUID
	err error
}

func (r *recordingJobs) Publish(context.Context, []byte) error { return r.err }

func (r *recordingJobs) PublishIngest(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.ids = append(r.ids, id)
	return nil
}

func (r *recordingJobs) published() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uuid.UUID(nil), r.ids...)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (r *recordingEvents) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.EventType()
	}
	return out
}

type documentFixture struct {
	svc     IDocumentService
	factory *memory.RepositoryFactory
	files   *storage.MemoryStore
	jobs    *recordingJobs
	events  *recordingEvents
	broker  *status.Broker
}

func newDocumentFixture(t *testing.T) *documentFixture {
	t.Helper()
	f := &documentFixture{
		factory: memory.NewRepositoryFactory(memory.NewStore()),
		files:   storage.NewMemoryStore(),
		jobs:    &recordingJobs{},
		events:  &recordingEvents{},
		broker:  status.NewBroker(),
	}
	f.svc = NewDocumentService(f.factory, f.files, f.jobs, f.events, f.broker, logger.NewNopLogger(), DocumentServiceConfig{
		MaxUploadBytes:    1024 * 1024,
		AllowedExtensions: []string{"pdf", "txt", "md", "docx", "doc"},
	})
	return f
}

func (f *documentFixture) document(t *testing.T, id uuid.UUID) *entity.Document {
	t.Helper()
	ctx := context.Background()
	doc, err := f.factory.NewUnitOfWork(ctx).DocumentRepository().FindOne(ctx, specification.ByID{ID: id})
	require.NoError(t, err)
	return doc
}

func TestDocumentService_Submit(t *testing.T) {
	f := newDocumentFixture(t)
	ctx := context.Background()

	res, err := f.svc.Submit(ctx, &dto.SubmitDocumentRequest{FileName: "../notes/Report.TXT", Data: []byte("hello world")})
	require.NoError(t, err)

	assert.Equal(t, "Report.TXT", res.OriginalName)
	assert.Equal(t, "txt", res.FileType)
	assert.Equal(t, int64(11), res.FileSize)
	assert.Equal(t, "pending", res.Status)

	doc := f.document(t, res.Id)
	require.NotNil(t, doc)
	assert.Equal(t, res.Id.String()+".txt", doc.StoredName)

	stored, err := f.files.Read(ctx, doc.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(stored))

	assert.Equal(t, []uuid.UUID{res.Id}, f.jobs.published())
	assert.Equal(t, []string{events.DocumentUploaded}, f.events.types())
}

func TestDocumentService_SubmitValidation(t *testing.T) {
	big := make([]byte, 1024*1024+1)

	tests := []struct {
		name        string
		req         *dto.SubmitDocumentRequest
		wantMessage string
		unsupported bool
	}{
		{name: "empty file", req: &dto.SubmitDocumentRequest{FileName: "a.txt"}, wantMessage: "file is empty"},
		{name: "too large", req: &dto.SubmitDocumentRequest{FileName: "a.txt", Data: big}, wantMessage: "file exceeds maximum size of 1 MB"},
		{name: "no name", req: &dto.SubmitDocumentRequest{FileName: "  ", Data: []byte("x")}, wantMessage: "file name is required"},
		{name: "unsupported extension", req: &dto.SubmitDocumentRequest{FileName: "image.png", Data: []byte("x")}, unsupported: true},
		{name: "no extension", req: &dto.SubmitDocumentRequest{FileName: "README", Data: []byte("x")}, unsupported: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDocumentFixture(t)
			_, err := f.svc.Submit(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			if tt.unsupported {
				assert.Equal(t, apperr.ReasonUnsupportedFormat, apperr.ReasonOf(err))
			} else {
				assert.Equal(t, tt.wantMessage, apperr.DetailOf(err))
			}

			assert.Zero(t, f.files.Len())
			assert.Empty(t, f.jobs.published())
			assert.Empty(t, f.events.types())
		})
	}
}

func TestDocumentService_SubmitSurvivesEnqueueFailure(t *testing.T) {
	f := newDocumentFixture(t)
	f.jobs.err = errors.New("queue closed")

	res, err := f.svc.Submit(context.Background(), &dto.SubmitDocumentRequest{FileName: "a.md", Data: []byte("# title")})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, f.document(t, res.Id).Status)
}

func TestDocumentService_ShowAndStatus(t *testing.T) {
	f := newDocumentFixture(t)
	ctx := context.Background()

	_, err := f.svc.Show(ctx, uuid.New())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.Equal(t, "document not found", apperr.DetailOf(err))

	res, err := f.svc.Submit(ctx, &dto.SubmitDocumentRequest{FileName: "a.txt", Data: []byte("x")})
	require.NoError(t, err)

	st, err := f.svc.Status(ctx, res.Id)
	require.NoError(t, err)
	assert.Equal(t, "pending", st.Status)
	assert.Zero(t, st.ChunkCount)
}

func TestDocumentService_ListNewestFirst(t *testing.T) {
	f := newDocumentFixture(t)
	ctx := context.Background()
	repo := f.factory.NewUnitOfWork(ctx).DocumentRepository()

	base := time.Now()
	for i, name := range []string{"old.txt", "new.txt", "mid.txt"} {
		offset := []time.Duration{-2 * time.Hour, 0, -time.Hour}[i]
		require.NoError(t, repo.Create(ctx, &entity.Document{OriginalName: name, Status: entity.StatusPending, CreatedAt: base.Add(offset)}))
	}

	list, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "new.txt", list[0].OriginalName)
	assert.Equal(t, "mid.txt", list[1].OriginalName)
	assert.Equal(t, "old.txt", list[2].OriginalName)
}

func TestDocumentService_DeleteCascades(t *testing.T) {
	f := newDocumentFixture(t)
	ctx := context.Background()

	res, err := f.svc.Submit(ctx, &dto.SubmitDocumentRequest{FileName: "a.txt", Data: []byte("some text")})
	require.NoError(t, err)
	other, err := f.svc.Submit(ctx, &dto.SubmitDocumentRequest{FileName: "b.txt", Data: []byte("other text")})
	require.NoError(t, err)

	uow := f.factory.NewUnitOfWork(ctx)
	require.NoError(t, uow.SegmentRepository().ReplaceForDocument(ctx, res.Id, []*entity.Segment{
		{DocumentId: res.Id, Index: 0, Text: "some text", Embedding: []float32{1, 0}},
	}))
	session := &entity.ChatSession{DocumentId: res.Id, Title: "New Chat"}
	require.NoError(t, uow.ChatSessionRepository().Create(ctx, session))
	require.NoError(t, uow.ChatMessageRepository().Create(ctx, &entity.ChatMessage{ChatSessionId: session.Id, Role: entity.RoleUser, Content: "hi"}))
	otherSession := &entity.ChatSession{DocumentId: other.Id, Title: "New Chat"}
	require.NoError(t, uow.ChatSessionRepository().Create(ctx, otherSession))
	require.NoError(t, uow.ChatMessageRepository().Create(ctx, &entity.ChatMessage{ChatSessionId: otherSession.Id, Role: entity.RoleUser, Content: "hello"}))

	watch := f.broker.Subscribe(ctx, res.Id)

	require.NoError(t, f.svc.Delete(ctx, res.Id))

	assert.Nil(t, f.document(t, res.Id))
	segCount, err := uow.SegmentRepository().CountByDocumentId(ctx, res.Id)
	require.NoError(t, err)
	assert.Zero(t, segCount)
	sessions, err := uow.ChatSessionRepository().FindAll(ctx, specification.ByDocumentID{DocumentID: res.Id})
	require.NoError(t, err)
	assert.Empty(t, sessions)
	msgCount, err := uow.ChatMessageRepository().Count(ctx, specification.ByChatSessionID{ChatSessionID: session.Id})
	require.NoError(t, err)
	assert.Zero(t, msgCount)
	assert.Equal(t, 1, f.files.Len())

	// The other document is untouched.
	assert.NotNil(t, f.document(t, other.Id))
	msgCount, err = uow.ChatMessageRepository().Count(ctx, specification.ByChatSessionID{ChatSessionID: otherSession.Id})
	require.NoError(t, err)
	assert.Equal(t, int64(1), msgCount)

	_, open := <-watch
	assert.False(t, open, "watchers are released on delete")
	assert.Contains(t, f.events.types(), events.DocumentDeleted)
}

func TestDocumentService_DeleteIsIdempotent(t *testing.T) {
	f := newDocumentFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Delete(ctx, uuid.New()))

	res, err := f.svc.Submit(ctx, &dto.SubmitDocumentRequest{FileName: "a.txt", Data: []byte("x")})
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(ctx, res.Id))
	require.NoError(t, f.svc.Delete(ctx, res.Id))
	assert.Nil(t, f.document(t, res.Id))
}

func TestDocumentService_Segments(t *testing.T) {
	f := newDocumentFixture(t)
	ctx := context.Background()

	res, err := f.svc.Submit(ctx, &dto.SubmitDocumentRequest{FileName: "a.txt", Data: []byte("x")})
	require.NoError(t, err)
	require.NoError(t, f.factory.NewUnitOfWork(ctx).SegmentRepository().ReplaceForDocument(ctx, res.Id, []*entity.Segment{
		{DocumentId: res.Id, Index: 1, Text: "second", Length: 6, StartOffset: 10, EndOffset: 16, Embedding: []float32{0, 1}},
		{DocumentId: res.Id, Index: 0, Text: "first", Length: 5, StartOffset: 0, EndOffset: 5, Embedding: []float32{1, 0}},
	}))

	segments, err := f.svc.Segments(ctx, res.Id)
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, "first", segments[0].Text)
	assert.Equal(t, "second", segments[1].Text)
	assert.Equal(t, 10, segments[1].StartOffset)

	_, err = f.svc.Segments(ctx, uuid.New())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func collect(t *testing.T, ch <-chan status.Event) []status.Event {
	t.Helper()
	var out []status.Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("status stream did not close")
			return out
		}
	}
}

func TestDocumentService_WatchStatus(t *testing.T) {
	f := newDocumentFixture(t)
	ctx := context.Background()

	res, err := f.svc.Submit(ctx, &dto.SubmitDocumentRequest{FileName: "a.txt", Data: []byte("x")})
	require.NoError(t, err)

	ch, err := f.svc.WatchStatus(ctx, res.Id)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return f.broker.Subscribers(res.Id) == 1 }, time.Second, 5*time.Millisecond)
	f.broker.Publish(status.Event{DocumentID: res.Id, Status: entity.StatusProcessing})
	f.broker.Publish(status.Event{DocumentID: res.Id, Status: entity.StatusCompleted, ChunkCount: 3})

	got := collect(t, ch)
	require.Len(t, got, 3)
	assert.Equal(t, entity.StatusPending, got[0].Status)
	assert.Equal(t, entity.StatusProcessing, got[1].Status)
	assert.Equal(t, entity.StatusCompleted, got[2].Status)
	assert.Equal(t, 3, got[2].ChunkCount)
}

func TestDocumentService_WatchStatusTerminalSnapshot(t *testing.T) {
	f := newDocumentFixture(t)
	ctx := context.Background()

	doc := &entity.Document{OriginalName: "a.txt", Status: entity.StatusFailed, ErrorDetail: "document contains no extractable text"}
	require.NoError(t, f.factory.NewUnitOfWork(ctx).DocumentRepository().Create(ctx, doc))

	ch, err := f.svc.WatchStatus(ctx, doc.Id)
	require.NoError(t, err)

	got := collect(t, ch)
	require.Len(t, got, 1)
	assert.Equal(t, entity.StatusFailed, got[0].Status)
	assert.Equal(t, "document contains no extractable text", got[0].ErrorDetail)

	_, err = f.svc.WatchStatus(ctx, uuid.New())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestDocumentService_ResubmissionIsIndependent(t *testing.T) {
	f := newDocumentFixture(t)
	ctx := context.Background()
	idx := index.New(memory.NewSegmentRepository(f.factory.Store()))
	pipeline := ingest.NewPipeline(f.factory, f.files, extractor.NewDefaultRegistry(),
		chunker.New(chunker.WithChunkSize(100), chunker.WithOverlap(20)),
		unitEmbedder{}, idx, f.broker, logger.NewNopLogger(), ingest.Config{})

	data := []byte("Same bytes uploaded twice. They must index separately. Deleting one keeps the other.")
	first, err := f.svc.Submit(ctx, &dto.SubmitDocumentRequest{FileName: "copy.txt", Data: data})
	require.NoError(t, err)
	second, err := f.svc.Submit(ctx, &dto.SubmitDocumentRequest{FileName: "copy.txt", Data: data})
	require.NoError(t, err)
	require.NotEqual(t, first.Id, second.Id)

	for _, id := range []uuid.UUID{first.Id, second.Id} {
		outcome, err := pipeline.Run(ctx, id)
		require.NoError(t, err)
		require.Equal(t, ingest.OutcomeCompleted, outcome)

		doc := f.document(t, id)
		count, err := idx.Count(ctx, id)
		require.NoError(t, err)
		assert.Positive(t, doc.ChunkCount)
		assert.Equal(t, doc.ChunkCount, count)
	}

	require.NoError(t, f.svc.Delete(ctx, first.Id))

	count, err := idx.Count(ctx, first.Id)
	require.NoError(t, err)
	assert.Zero(t, count)

	survivor := f.document(t, second.Id)
	require.NotNil(t, survivor)
	count, err = idx.Count(ctx, second.Id)
	require.NoError(t, err)
	assert.Equal(t, survivor.ChunkCount, count)
}
