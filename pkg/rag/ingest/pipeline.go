// Package ingest turns a pending document into indexed segments.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ai-docqa-be/internal/entity"
	"ai-docqa-be/internal/pkg/logger"
	"ai-docqa-be/internal/repository/specification"
	"ai-docqa-be/internal/repository/unitofwork"
	"ai-docqa-be/pkg/apperr"
	"ai-docqa-be/pkg/embedding"
	"ai-docqa-be/pkg/rag/chunker"
	"ai-docqa-be/pkg/rag/index"
	"ai-docqa-be/pkg/rag/status"

	"github.com/google/uuid"
)

const module = "INGEST"

type Extractor interface {
	Extract(ctx context.Context, raw []byte, fileType string) (string, error)
}

type FileReader interface {
	Read(ctx context.Context, path string) ([]byte, error)
}

type Config struct {
	ExtractTimeout time.Duration
	EmbedTimeout   time.Duration
}

type Pipeline struct {
	uowFactory unitofwork.RepositoryFactory
	files      FileReader
	extractor  Extractor
	chunker    *chunker.Chunker
	embedder   embedding.EmbeddingProvider
	index      *index.Index
	notifier   status.Notifier
	logger     logger.ILogger
	cfg        Config
	now        func() time.Time
}

func NewPipeline(
	uowFactory unitofwork.RepositoryFactory,
	files FileReader,
	extractor Extractor,
	chk *chunker.Chunker,
	embedder embedding.EmbeddingProvider,
	idx *index.Index,
	notifier status.Notifier,
	log logger.ILogger,
	cfg Config,
) *Pipeline {
	return &Pipeline{
		uowFactory: uowFactory,
		files:      files,
		extractor:  extractor,
		chunker:    chk,
		embedder:   embedder,
		index:      idx,
		notifier:   notifier,
		logger:     log,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Outcome reports what Run did with a job.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	// OutcomeSkipped means the claim was lost or the document vanished.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeAborted means ctx ended mid-run; the document stays in
	// processing until stale recovery requeues it.
	OutcomeAborted Outcome = "aborted"
)

// Run processes one document. The returned error is non-nil for failed and
// aborted outcomes; a failed document has already been marked as such.
func (p *Pipeline) Run(ctx context.Context, documentID uuid.UUID) (Outcome, error) {
	uow := p.uowFactory.NewUnitOfWork(ctx)
	docs := uow.DocumentRepository()

	token := uuid.New()
	claimed, err := docs.ClaimPending(ctx, documentID, token, p.now())
	if err != nil {
		return OutcomeAborted, fmt.Errorf("claim document %s: %w", documentID, err)
	}
	if !claimed {
		p.logger.Debug(module, "Claim lost, dropping job", map[string]interface{}{"document_id": documentID.String()})
		return OutcomeSkipped, nil
	}
	p.notify(ctx, status.Event{DocumentID: documentID, Status: entity.StatusProcessing})

	doc, err := docs.FindOne(ctx, specification.ByID{ID: documentID})
	if err != nil {
		return p.fail(ctx, documentID, token, apperr.Wrap(apperr.KindInternal, "load document", err))
	}
	if doc == nil {
		return OutcomeSkipped, nil
	}

	start := p.now()
	p.logger.Info(module, "Processing document", map[string]interface{}{
		"document_id": documentID.String(),
		"file_type":   doc.FileType,
		"file_size":   doc.FileSize,
	})

	text, err := p.extract(ctx, doc)
	if err != nil {
		return p.fail(ctx, documentID, token, err)
	}

	pieces := p.chunker.Chunk(text)
	if len(pieces) == 0 {
		return p.fail(ctx, documentID, token, apperr.New(apperr.KindExtraction, "document contains no extractable text"))
	}

	segments, err := p.embed(ctx, documentID, pieces)
	if err != nil {
		return p.fail(ctx, documentID, token, err)
	}

	ok, err := p.commit(ctx, documentID, token, segments)
	if err != nil {
		return p.fail(ctx, documentID, token, err)
	}
	if !ok {
		p.logger.Warn(module, "Claim no longer held, discarding run", map[string]interface{}{"document_id": documentID.String()})
		return OutcomeSkipped, nil
	}

	p.notify(ctx, status.Event{DocumentID: documentID, Status: entity.StatusCompleted, ChunkCount: len(segments)})
	p.logger.Info(module, "Document indexed", map[string]interface{}{
		"document_id": documentID.String(),
		"chunk_count": len(segments),
		"duration_ms": p.now().Sub(start).Milliseconds(),
	})
	return OutcomeCompleted, nil
}

// commit writes the vector records and marks the document completed in one
// unit of work, provided the claim identified by token is still held. When it
// is not, nothing is written and ok is false.
func (p *Pipeline) commit(ctx context.Context, documentID, token uuid.UUID, segments []*entity.Segment) (ok bool, err error) {
	uow := p.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return false, apperr.Wrap(apperr.KindInternal, "begin transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = uow.Rollback()
		}
	}()

	held, err := uow.DocumentRepository().MarkCompleted(ctx, documentID, token, len(segments), p.now())
	if err != nil {
		return false, apperr.Wrap(apperr.KindInternal, "mark completed", err)
	}
	if !held {
		return false, nil
	}

	if err := p.index.In(uow.SegmentRepository()).UpsertAll(ctx, documentID, segments); err != nil {
		return false, apperr.Classify(apperr.KindIndexing, err)
	}

	if err := uow.Commit(); err != nil {
		return false, apperr.Wrap(apperr.KindIndexing, "commit vector records", err)
	}
	committed = true
	return true, nil
}

func (p *Pipeline) extract(ctx context.Context, doc *entity.Document) (string, error) {
	stageCtx, cancel := withTimeout(ctx, p.cfg.ExtractTimeout)
	defer cancel()

	raw, err := p.files.Read(stageCtx, doc.FilePath)
	if err != nil {
		return "", stageError(apperr.KindExtraction, "read stored file", err)
	}

	// Extractors are not all context aware; the stage deadline still holds.
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := p.extractor.Extract(stageCtx, raw, doc.FileType)
		done <- result{text, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return "", stageError(apperr.KindExtraction, "", r.err)
		}
		return r.text, nil
	case <-stageCtx.Done():
		return "", stageError(apperr.KindExtraction, "", stageCtx.Err())
	}
}

func (p *Pipeline) embed(ctx context.Context, documentID uuid.UUID, pieces []chunker.Segment) ([]*entity.Segment, error) {
	segments := make([]*entity.Segment, 0, len(pieces))
	dim := 0
	for _, piece := range pieces {
		stageCtx, cancel := withTimeout(ctx, p.cfg.EmbedTimeout)
		vec, err := p.embedder.Generate(stageCtx, piece.Text, embedding.TaskRetrievalDocument)
		cancel()
		if err != nil {
			return nil, stageError(apperr.KindEmbedding, fmt.Sprintf("segment %d", piece.Index), err)
		}
		if dim == 0 {
			dim = len(vec)
		} else if len(vec) != dim {
			return nil, apperr.Newf(apperr.KindEmbedding, "segment %d: dimension %d, expected %d", piece.Index, len(vec), dim)
		}

		segments = append(segments, &entity.Segment{
			DocumentId:  documentID,
			Index:       piece.Index,
			Text:        piece.Text,
			Length:      piece.Length(),
			StartOffset: piece.Start,
			EndOffset:   piece.End,
			Embedding:   vec,
		})
	}
	return segments, nil
}

// fail records the failure unless the run was aborted from outside or has
// lost its claim.
func (p *Pipeline) fail(ctx context.Context, documentID, token uuid.UUID, cause error) (Outcome, error) {
	if ctx.Err() != nil {
		p.logger.Warn(module, "Run aborted, leaving document for stale recovery", map[string]interface{}{
			"document_id": documentID.String(),
			"error":       cause,
		})
		return OutcomeAborted, cause
	}

	detail := apperr.DetailOf(cause)
	ok, err := p.uowFactory.NewUnitOfWork(ctx).DocumentRepository().MarkFailed(ctx, documentID, token, detail, p.now())
	if err != nil {
		return OutcomeFailed, errors.Join(cause, fmt.Errorf("mark failed: %w", err))
	}
	if ok {
		p.notify(ctx, status.Event{DocumentID: documentID, Status: entity.StatusFailed, ErrorDetail: detail})
	}
	p.logger.Error(module, "Document processing failed", map[string]interface{}{
		"document_id": documentID.String(),
		"detail":      detail,
		"error":       cause,
	})
	return OutcomeFailed, cause
}

func (p *Pipeline) notify(ctx context.Context, ev status.Event) {
	if p.notifier == nil {
		return
	}
	ev.OccurredAt = p.now()
	p.notifier.Notify(ctx, ev)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// stageError classifies err under kind, turning deadline overruns into the
// timeout reason.
func stageError(kind apperr.Kind, message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		msg := strings.TrimSpace(message)
		return &apperr.Error{Kind: kind, Reason: apperr.ReasonTimeout, Message: msg, Cause: err}
	}
	e := apperr.Classify(kind, err)
	if message == "" || e.Message != "" {
		return e
	}
	cp := *e
	cp.Message = message
	return &cp
}
