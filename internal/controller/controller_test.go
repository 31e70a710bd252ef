package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ai-docqa-be/internal/entity"
	"ai-docqa-be/internal/pkg/logger"
	"ai-docqa-be/internal/pkg/serverutils"
	"ai-docqa-be/internal/repository/memory"
	"ai-docqa-be/internal/service"
	"ai-docqa-be/pkg/embedding"
	"ai-docqa-be/pkg/rag/index"
	"ai-docqa-be/pkg/rag/retrieval"
	"ai-docqa-be/pkg/rag/session"
	"ai-docqa-be/pkg/rag/status"
	"ai-docqa-be/pkg/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopJobs struct{}

func (nopJobs) Publish(context.Context, []byte) error           { return nil }
func (nopJobs) PublishIngest(context.Context, uuid.UUID) error { return nil }

type unitEmbedder struct{}

func (unitEmbedder) Generate(context.Context, string, embedding.TaskType) ([]float32, error) {
	return []float32{1, 0}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type apiFixture struct {
	app     *fiber.App
	factory *memory.RepositoryFactory
	index   *index.Index
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	store := memory.NewStore()
	factory := memory.NewRepositoryFactory(store)
	idx := index.New(memory.NewSegmentRepository(store))
	log := logger.NewNopLogger()

	documents := service.NewDocumentService(factory, storage.NewMemoryStore(), nopJobs{}, nil, status.NewBroker(), log, service.DocumentServiceConfig{
		MaxUploadBytes:    1024,
		AllowedExtensions: []string{"txt", "md"},
	})
	retriever := retrieval.NewEngine(factory, unitEmbedder{}, idx, 3, time.Second)
	search := service.NewSearchService(factory, retriever, idx)
	chat := service.NewChatService(factory, session.NewEngine(factory, retriever, nil, log, session.Config{}))

	app := fiber.New(fiber.Config{ErrorHandler: serverutils.ErrorHandler})
	api := app.Group("/api")
	NewDocumentController(documents).RegisterRoutes(api)
	NewChatController(chat).RegisterRoutes(api)
	NewSearchController(search).RegisterRoutes(api)
	NewHealthController(service.NewHealthService(nil, search)).RegisterRoutes(api)

	return &apiFixture{app: app, factory: factory, index: idx}
}

func (f *apiFixture) do(t *testing.T, req *http.Request) (int, envelope) {
	t.Helper()
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(body, &env), string(body))
	return resp.StatusCode, env
}

func uploadRequest(t *testing.T, name string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func jsonRequest(method, path string, body any) *http.Request {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestDocumentController_Lifecycle(t *testing.T) {
	f := newAPI(t)

	code, env := f.do(t, uploadRequest(t, "notes.txt", []byte("hello there")))
	require.Equal(t, http.StatusCreated, code)
	var doc struct {
		Id     uuid.UUID `json:"id"`
		Status string    `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &doc))
	assert.Equal(t, "pending", doc.Status)

	code, env = f.do(t, httptest.NewRequest(http.MethodGet, "/api/documents/"+doc.Id.String()+"/status", nil))
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"status":"pending"`)

	code, env = f.do(t, httptest.NewRequest(http.MethodGet, "/api/documents", nil))
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), doc.Id.String())

	for i := 0; i < 2; i++ {
		code, env = f.do(t, httptest.NewRequest(http.MethodDelete, "/api/documents/"+doc.Id.String(), nil))
		assert.Equal(t, http.StatusOK, code)
		assert.True(t, env.Success)
	}

	code, env = f.do(t, httptest.NewRequest(http.MethodGet, "/api/documents/"+doc.Id.String(), nil))
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "document not found", env.Message)
}

func TestDocumentController_UploadRejections(t *testing.T) {
	tests := []struct {
		name    string
		req     func(t *testing.T) *http.Request
		message string
	}{
		{
			name:    "unsupported extension",
			req:     func(t *testing.T) *http.Request { return uploadRequest(t, "photo.png", []byte("x")) },
			message: `file type "png" is not allowed (allowed: txt, md)`,
		},
		{
			name:    "empty file",
			req:     func(t *testing.T) *http.Request { return uploadRequest(t, "empty.txt", nil) },
			message: "file is empty",
		},
		{
			name: "missing file",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/documents/upload", nil)
			},
			message: "file is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPI(t)
			code, env := f.do(t, tt.req(t))
			assert.Equal(t, http.StatusBadRequest, code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.message, env.Message)
		})
	}
}

func TestDocumentController_InvalidID(t *testing.T) {
	f := newAPI(t)
	code, env := f.do(t, httptest.NewRequest(http.MethodGet, "/api/documents/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid id", env.Message)
}

func TestSearchController_Semantic(t *testing.T) {
	f := newAPI(t)
	ctx := context.Background()

	ready := &entity.Document{OriginalName: "a.txt", Status: entity.StatusCompleted, ChunkCount: 1}
	busy := &entity.Document{OriginalName: "b.txt", Status: entity.StatusProcessing}
	repo := f.factory.NewUnitOfWork(ctx).DocumentRepository()
	require.NoError(t, repo.Create(ctx, ready))
	require.NoError(t, repo.Create(ctx, busy))
	require.NoError(t, f.index.UpsertAll(ctx, ready.Id, []*entity.Segment{
		{Index: 0, Text: "Alpha section.", Embedding: []float32{1, 0}},
	}))

	code, env := f.do(t, jsonRequest(http.MethodPost, "/api/search/semantic", map[string]any{"query": "alpha", "document_id": ready.Id}))
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), "Alpha section.")

	code, env = f.do(t, jsonRequest(http.MethodPost, "/api/search/semantic", map[string]any{"query": "alpha", "document_id": busy.Id}))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "document is not ready for querying (status: processing)", env.Message)

	code, env = f.do(t, jsonRequest(http.MethodPost, "/api/search/semantic", map[string]any{"document_id": ready.Id}))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Query is required", env.Message)

	code, _ = f.do(t, httptest.NewRequest(http.MethodGet, "/api/search/health", nil))
	assert.Equal(t, http.StatusOK, code)
}

func TestChatController_Sessions(t *testing.T) {
	f := newAPI(t)
	ctx := context.Background()

	doc := &entity.Document{OriginalName: "a.txt", Status: entity.StatusCompleted}
	require.NoError(t, f.factory.NewUnitOfWork(ctx).DocumentRepository().Create(ctx, doc))

	code, env := f.do(t, jsonRequest(http.MethodPost, "/api/chat/sessions", map[string]any{"document_id": doc.Id}))
	require.Equal(t, http.StatusCreated, code)
	var s struct {
		Id uuid.UUID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &s))

	code, env = f.do(t, jsonRequest(http.MethodPost, "/api/chat/sessions", map[string]any{"document_id": doc.Id, "session_id": s.Id}))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Chat session resumed", env.Message)

	code, env = f.do(t, httptest.NewRequest(http.MethodGet, "/api/chat/"+doc.Id.String()+"/sessions", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), s.Id.String())

	code, _ = f.do(t, httptest.NewRequest(http.MethodGet, "/api/chat/sessions/"+s.Id.String(), nil))
	assert.Equal(t, http.StatusOK, code)

	code, _ = f.do(t, httptest.NewRequest(http.MethodDelete, "/api/chat/sessions/"+s.Id.String(), nil))
	assert.Equal(t, http.StatusOK, code)

	code, env = f.do(t, httptest.NewRequest(http.MethodGet, "/api/chat/sessions/"+s.Id.String(), nil))
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "chat session not found", env.Message)

	code, _ = f.do(t, jsonRequest(http.MethodPost, "/api/chat/sessions", map[string]any{"document_id": uuid.New()}))
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHealthController(t *testing.T) {
	f := newAPI(t)
	code, env := f.do(t, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"database":"memory"`)
}
