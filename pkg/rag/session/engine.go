// Package session runs grounded question-answer turns against one document.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"ai-docqa-be/internal/entity"
	"ai-docqa-be/internal/pkg/logger"
	"ai-docqa-be/internal/repository/specification"
	"ai-docqa-be/internal/repository/unitofwork"
	"ai-docqa-be/pkg/apperr"
	"ai-docqa-be/pkg/llm"
	"ai-docqa-be/pkg/rag/prompt"

	"github.com/google/uuid"
)

const module = "CHAT"

type EventType string

const (
	EventStatus   EventType = "status"
	EventContext  EventType = "context"
	EventToken    EventType = "answer_chunk"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one item of a turn's output stream. A turn that is not cancelled
// ends with exactly one complete or error event.
type Event struct {
	Type      EventType
	SessionID uuid.UUID
	// Content is the status text, the answer fragment, the full answer on
	// complete, or the error detail.
	Content   string
	Grounding []entity.GroundingSegment
	MessageID uuid.UUID
	Code      apperr.Kind
	Err       error
}

type Retriever interface {
	Ready(ctx context.Context, documentID uuid.UUID) (*entity.Document, error)
	Retrieve(ctx context.Context, documentID uuid.UUID, query string, k int) ([]*entity.ScoredSegment, error)
}

type Config struct {
	GenerationTimeout time.Duration
	TitleTimeout      time.Duration
	MaxTokens         int
	Temperature       float64
}

type Engine struct {
	uowFactory unitofwork.RepositoryFactory
	retriever  Retriever
	llm        llm.LLMProvider
	logger     logger.ILogger
	cfg        Config
	now        func() time.Time

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}

	background sync.WaitGroup
}

func NewEngine(uowFactory unitofwork.RepositoryFactory, retriever Retriever, provider llm.LLMProvider, log logger.ILogger, cfg Config) *Engine {
	if cfg.TitleTimeout <= 0 {
		cfg.TitleTimeout = 30 * time.Second
	}
	return &Engine{
		uowFactory: uowFactory,
		retriever:  retriever,
		llm:        provider,
		logger:     log,
		cfg:        cfg,
		now:        time.Now,
		inFlight:   make(map[uuid.UUID]struct{}),
	}
}

// OpenSession returns the existing session when sessionID is given and it
// belongs to the document, or creates a new one. created reports which.
func (e *Engine) OpenSession(ctx context.Context, documentID uuid.UUID, sessionID *uuid.UUID) (session *entity.ChatSession, created bool, err error) {
	uow := e.uowFactory.NewUnitOfWork(ctx)

	doc, err := uow.DocumentRepository().FindOne(ctx, specification.ByID{ID: documentID})
	if err != nil {
		return nil, false, apperr.Wrap(apperr.KindInternal, "load document", err)
	}
	if doc == nil {
		return nil, false, apperr.NotFound("document")
	}

	if sessionID != nil {
		existing, err := uow.ChatSessionRepository().FindOne(ctx, specification.ByID{ID: *sessionID})
		if err != nil {
			return nil, false, apperr.Wrap(apperr.KindInternal, "load chat session", err)
		}
		if existing == nil || existing.DocumentId != documentID {
			return nil, false, apperr.NotFound("chat session")
		}
		return existing, false, nil
	}

	session = &entity.ChatSession{
		Id:         uuid.New(),
		DocumentId: documentID,
		Title:      prompt.FallbackTitle,
		CreatedAt:  e.now(),
	}
	if err := uow.ChatSessionRepository().Create(ctx, session); err != nil {
		return nil, false, apperr.Wrap(apperr.KindInternal, "create chat session", err)
	}
	return session, true, nil
}

func (e *Engine) acquire(sessionID uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inFlight[sessionID]; busy {
		return false
	}
	e.inFlight[sessionID] = struct{}{}
	return true
}

func (e *Engine) release(sessionID uuid.UUID) {
	e.mu.Lock()
	delete(e.inFlight, sessionID)
	e.mu.Unlock()
}

// InFlight reports whether a turn is running on the session.
func (e *Engine) InFlight(sessionID uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, busy := e.inFlight[sessionID]
	return busy
}

// SendTurn validates and records the user's message, then streams the turn.
// Rejections (validation, unknown session, document not ready, a turn already
// in flight) are returned synchronously and persist nothing. Cancelling ctx
// aborts the turn and closes the channel without an error event.
func (e *Engine) SendTurn(ctx context.Context, sessionID uuid.UUID, text string) (<-chan Event, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Validation("message must not be empty")
	}

	uow := e.uowFactory.NewUnitOfWork(ctx)
	session, err := uow.ChatSessionRepository().FindOne(ctx, specification.ByID{ID: sessionID})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "load chat session", err)
	}
	if session == nil {
		return nil, apperr.NotFound("chat session")
	}

	if !e.acquire(sessionID) {
		return nil, apperr.New(apperr.KindConcurrentTurnRejected, "a turn is already in progress for this session")
	}

	if _, err := e.retriever.Ready(ctx, session.DocumentId); err != nil {
		e.release(sessionID)
		return nil, err
	}

	prior, err := uow.ChatMessageRepository().Count(ctx, specification.ByChatSessionID{ChatSessionID: sessionID})
	if err != nil {
		e.release(sessionID)
		return nil, apperr.Wrap(apperr.KindInternal, "count messages", err)
	}

	userMsg := &entity.ChatMessage{
		Id:            uuid.New(),
		ChatSessionId: sessionID,
		Role:          entity.RoleUser,
		Content:       text,
		CreatedAt:     e.now(),
	}
	if err := e.saveMessage(ctx, userMsg); err != nil {
		e.release(sessionID)
		return nil, err
	}

	if prior == 0 {
		e.generateTitle(session, text)
	}

	out := make(chan Event, 8)
	t := &turn{
		ctx:       ctx,
		sessionID: sessionID,
		out:       out,
		finish:    sync.OnceFunc(func() { e.release(sessionID) }),
	}
	go func() {
		defer close(out)
		defer t.finish()
		e.runTurn(t, session, text)
	}()
	return out, nil
}

// saveMessage appends msg to its session and touches the session, provided
// the session still exists. The session row stays locked until the message is
// written, so a concurrent delete either runs first or sees the message.
func (e *Engine) saveMessage(ctx context.Context, msg *entity.ChatMessage) error {
	uow := e.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return apperr.Wrap(apperr.KindInternal, "begin transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = uow.Rollback()
		}
	}()

	sessions := uow.ChatSessionRepository()
	session, err := sessions.FindOne(ctx, specification.ByID{ID: msg.ChatSessionId}, specification.ForUpdate{})
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "load chat session", err)
	}
	if session == nil {
		return apperr.NotFound("chat session")
	}

	if err := uow.ChatMessageRepository().Create(ctx, msg); err != nil {
		return apperr.Wrap(apperr.KindInternal, "save "+msg.Role+" message", err)
	}
	now := msg.CreatedAt
	session.UpdatedAt = &now
	if err := sessions.Update(ctx, session); err != nil {
		return apperr.Wrap(apperr.KindInternal, "touch chat session", err)
	}

	if err := uow.Commit(); err != nil {
		return apperr.Wrap(apperr.KindInternal, "commit "+msg.Role+" message", err)
	}
	committed = true
	return nil
}

type turn struct {
	ctx       context.Context
	sessionID uuid.UUID
	out       chan<- Event
	// finish frees the session for its next turn. It runs before the terminal
	// event is sent.
	finish func()
}

func (t *turn) send(ev Event) bool {
	ev.SessionID = t.sessionID
	select {
	case t.out <- ev:
		return true
	case <-t.ctx.Done():
		return false
	}
}

// end sends the terminal event of the turn.
func (t *turn) end(ev Event) {
	t.finish()
	t.send(ev)
}

func (t *turn) fail(err error) {
	if t.ctx.Err() != nil {
		return
	}
	t.end(Event{Type: EventError, Code: apperr.KindOf(err), Content: apperr.DetailOf(err), Err: err})
}

func (e *Engine) runTurn(t *turn, session *entity.ChatSession, question string) {
	ctx := t.ctx
	start := e.now()

	if !t.send(Event{Type: EventStatus, Content: "Searching document..."}) {
		return
	}
	results, err := e.retriever.Retrieve(ctx, session.DocumentId, question, 0)
	if err != nil {
		e.logTurnError(session, "retrieval failed", err)
		t.fail(err)
		return
	}

	grounding := prompt.Grounding(results)
	if !t.send(Event{Type: EventContext, Grounding: grounding}) {
		return
	}

	var answer string
	if len(results) == 0 {
		answer = prompt.NoContextAnswer
		if !t.send(Event{Type: EventToken, Content: answer}) {
			return
		}
	} else {
		if !t.send(Event{Type: EventStatus, Content: "Generating response..."}) {
			return
		}
		answer, err = e.generate(ctx, t, prompt.NewGroundedBuilder(question, results).Build())
		if err != nil {
			if ctx.Err() == nil {
				e.logTurnError(session, "generation failed", err)
			}
			t.fail(err)
			return
		}
	}

	// A turn cancelled after the last fragment is still a cancelled turn.
	if ctx.Err() != nil {
		return
	}

	now := e.now()
	assistant := &entity.ChatMessage{
		Id:            uuid.New(),
		ChatSessionId: session.Id,
		Role:          entity.RoleAssistant,
		Content:       answer,
		Grounding:     grounding,
		CreatedAt:     now,
	}
	if err := e.saveMessage(ctx, assistant); err != nil {
		if apperr.KindOf(err) != apperr.KindNotFound {
			e.logTurnError(session, "saving answer failed", err)
		}
		t.fail(err)
		return
	}

	e.logger.Info(module, "Turn completed", map[string]interface{}{
		"session_id":  session.Id.String(),
		"document_id": session.DocumentId.String(),
		"segments":    len(grounding),
		"duration_ms": e.now().Sub(start).Milliseconds(),
	})
	t.end(Event{Type: EventComplete, Content: answer, Grounding: grounding, MessageID: assistant.Id})
}

// generate streams the answer to the turn and returns the full text.
func (e *Engine) generate(ctx context.Context, t *turn, promptText string) (string, error) {
	genCtx, cancel := ctx, context.CancelFunc(func() {})
	if e.cfg.GenerationTimeout > 0 {
		genCtx, cancel = context.WithTimeout(ctx, e.cfg.GenerationTimeout)
	}
	defer cancel()

	opts := []llm.Option{llm.WithTemperature(e.cfg.Temperature)}
	if e.cfg.MaxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(e.cfg.MaxTokens))
	}

	stream, err := e.llm.Stream(genCtx, []llm.Message{{Role: entity.RoleUser, Content: promptText}}, opts...)
	if err != nil {
		return "", generationError(genCtx, err)
	}

	var answer strings.Builder
	for {
		select {
		case chunk, ok := <-stream:
			if !ok {
				if genCtx.Err() != nil {
					return "", generationError(genCtx, genCtx.Err())
				}
				if strings.TrimSpace(answer.String()) == "" {
					return "", &apperr.Error{Kind: apperr.KindGeneration, Reason: apperr.ReasonProviderUnavailable, Message: "empty answer"}
				}
				return answer.String(), nil
			}
			if chunk.Err != nil {
				return "", generationError(genCtx, chunk.Err)
			}
			answer.WriteString(chunk.Text)
			if !t.send(Event{Type: EventToken, Content: chunk.Text}) {
				return "", ctx.Err()
			}
		case <-genCtx.Done():
			return "", generationError(genCtx, genCtx.Err())
		}
	}
}

func generationError(genCtx context.Context, err error) error {
	if errors.Is(genCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &apperr.Error{Kind: apperr.KindGeneration, Reason: apperr.ReasonTimeout, Message: "generation timed out", Cause: err}
	}
	return apperr.Classify(apperr.KindGeneration, err)
}

// generateTitle names the session after its first question in the background.
func (e *Engine) generateTitle(session *entity.ChatSession, question string) {
	e.background.Add(1)
	go func() {
		defer e.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.TitleTimeout)
		defer cancel()

		title := prompt.FallbackTitle
		raw, err := e.llm.Generate(ctx, prompt.TitlePrompt(question), llm.WithMaxTokens(20))
		if err != nil {
			e.logger.Warn(module, "Title generation failed", map[string]interface{}{"session_id": session.Id.String(), "error": err})
		} else {
			title = prompt.CleanTitle(raw)
		}

		repo := e.uowFactory.NewUnitOfWork(ctx).ChatSessionRepository()
		current, err := repo.FindOne(ctx, specification.ByID{ID: session.Id})
		if err != nil || current == nil {
			return
		}
		now := e.now()
		current.Title = title
		current.UpdatedAt = &now
		if err := repo.Update(ctx, current); err != nil {
			e.logger.Warn(module, "Failed to save session title", map[string]interface{}{"session_id": session.Id.String(), "error": err})
		}
	}()
}

// Wait blocks until background work such as title generation has finished.
func (e *Engine) Wait() {
	e.background.Wait()
}

func (e *Engine) logTurnError(session *entity.ChatSession, message string, err error) {
	e.logger.Error(module, message, map[string]interface{}{
		"session_id":  session.Id.String(),
		"document_id": session.DocumentId.String(),
		"error":       err,
	})
}
