package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/virtual-teacher/internal/core"
	"github.com/markdave123-py/virtual-teacher/internal/core/guard"
	"github.com/markdave123-py/virtual-teacher/internal/core/lesson"
	"github.com/markdave123-py/virtual-teacher/internal/logger"
	"github.com/markdave123-py/virtual-teacher/internal/models"
)

const (
	// contextChunks is how many stored chunks ground a document lesson.
	contextChunks = 8
	// progressEvery is how many streamed characters pass between progress statuses.
	progressEvery = 2000
	titleLen      = 60
)

// LessonOptions wires the optional collaborators of a LessonService.
// DB and Embedder may be nil: lessons then run anonymously from the request
// text only.
type LessonOptions struct {
	LLM          core.LLMProvider
	Embedder     core.EmbeddingProvider
	DB           core.DbClient
	Guard        guard.Guard
	MaxSourceLen int
}

type LessonService struct {
	log       *logger.Logger
	llm       core.LLMProvider
	embedder  core.EmbeddingProvider
	db        core.DbClient
	guard     guard.Guard
	maxSource int
}

// Generation summarises one Generate call.
type Generation struct {
	ConversationID string
	Stats          lesson.Stats
	LessonEnded    bool
}

// upstreamError marks failures of the model stream, as opposed to failures
// delivering to the sink.
type upstreamError struct{ err error }

func (e *upstreamError) Error() string { return e.err.Error() }
func (e *upstreamError) Unwrap() error { return e.err }

func NewLessonService(log *logger.Logger, opts LessonOptions) (*LessonService, error) {
	if opts.LLM == nil {
		return nil, errors.New("lesson service: nil LLM provider")
	}
	g := opts.Guard
	if g == nil {
		g = guard.NewMemoryGuard()
	}
	return &LessonService{
		log:       log.With("component", "LessonService"),
		llm:       opts.LLM,
		embedder:  opts.Embedder,
		db:        opts.DB,
		guard:     g,
		maxSource: opts.MaxSourceLen,
	}, nil
}

// Generate streams one lesson for req into sink. userID is empty for
// anonymous clients; authenticated lessons are stored in a conversation.
//
// Failures after validation are reported to sink with EmitError before
// Generate returns. The terminal lesson_end frame is the caller's job.
func (s *LessonService) Generate(ctx context.Context, userID string, req lesson.Request, sink lesson.Sink) (Generation, error) {
	var gen Generation
	if err := req.Normalize(); err != nil {
		return gen, err
	}

	persist := userID != "" && s.db != nil
	if req.DocumentID != "" && !persist {
		return gen, s.reject(ctx, sink, fmt.Errorf("%w: documents need a signed-in user", ErrInvalidInput), "Sign in to learn from an uploaded document.")
	}

	if persist {
		conv, err := s.resolveConversation(ctx, userID, &req)
		if err != nil {
			return gen, s.reject(ctx, sink, err, "Conversation not found.")
		}
		gen.ConversationID = conv.ID
	}

	if gen.ConversationID != "" {
		release, err := s.guard.Acquire(ctx, gen.ConversationID)
		if errors.Is(err, guard.ErrBusy) {
			return gen, s.reject(ctx, sink, lesson.ErrGenerationInFlight, "A lesson is already being generated for this conversation.")
		}
		if err != nil {
			return gen, s.reject(ctx, sink, fmt.Errorf("acquire generation lock: %w", err), "Could not start the lesson. Please try again.")
		}
		defer release()
	}

	if req.DocumentID != "" {
		text, err := s.documentContext(ctx, userID, req.DocumentID, req.Topic)
		switch {
		case errors.Is(err, ErrDocumentNotReady):
			return gen, s.reject(ctx, sink, err, "That document is still being processed. Try again shortly.")
		case err != nil:
			return gen, s.reject(ctx, sink, err, "Document not found.")
		}
		if req.PDFText == "" {
			req.PDFText = text
		}
	}

	prompt, err := lesson.BuildPrompt(req, s.maxSource)
	if err != nil {
		return gen, s.reject(ctx, sink, fmt.Errorf("build prompt: %w", err), "Could not start the lesson. Please try again.")
	}

	if persist {
		sink = NewPersistingSink(s.log, s.db, gen.ConversationID, sink)
		s.storeRequest(ctx, gen.ConversationID, req)
	}

	if err := sink.EmitStatus(ctx, "Generating lesson..."); err != nil {
		return gen, err
	}

	sess := lesson.NewSession(sink, s.log)
	sess.Start()
	err = s.stream(ctx, sess, sink, prompt)
	gen.Stats = sess.Stats()
	gen.LessonEnded = sess.LessonEnded()

	var up *upstreamError
	switch {
	case err == nil:
		sess.End(ctx)
		return gen, nil
	case ctx.Err() != nil:
		sess.Abort()
		return gen, ctx.Err()
	case errors.As(err, &up):
		if serr := sess.Fail(ctx, up.err); serr != nil {
			s.log.Warn("could not deliver generation error", "err", serr)
		}
		return gen, err
	default:
		sess.Abort()
		return gen, err
	}
}

// stream runs the model as producer and the session as consumer.
func (s *LessonService) stream(ctx context.Context, sess *lesson.Session, sink lesson.Sink, prompt string) error {
	frags := make(chan string, 16)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(frags)
		err := s.llm.StreamGenerate(gctx, "", prompt, func(text string) error {
			select {
			case frags <- text:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
		if err != nil && gctx.Err() == nil {
			return &upstreamError{err: err}
		}
		return err
	})

	// Consumer drains every delivered fragment, even after an upstream failure.
	g.Go(func() error {
		received, nextProgress := 0, progressEvery
		for f := range frags {
			if err := sess.Feed(ctx, f); err != nil {
				return err
			}
			received += len(f)
			if received >= nextProgress {
				nextProgress = received + progressEvery
				if err := sink.EmitStatus(ctx, fmt.Sprintf("Streaming... (%d chars received)", received)); err != nil {
					return err
				}
			}
		}
		return nil
	})

	return g.Wait()
}

func (s *LessonService) reject(ctx context.Context, sink lesson.Sink, cause error, message string) error {
	s.log.Warn("lesson request rejected", "err", cause)
	if err := sink.EmitError(ctx, message, ""); err != nil {
		s.log.Debug("could not deliver rejection", "err", err)
	}
	return cause
}

func (s *LessonService) resolveConversation(ctx context.Context, userID string, req *lesson.Request) (*models.Conversation, error) {
	if req.ConversationID != "" {
		conv, err := s.db.GetConversation(ctx, req.ConversationID)
		if err != nil {
			return nil, fmt.Errorf("load conversation: %w", err)
		}
		if conv == nil || conv.UserID != userID {
			return nil, ErrNotFound
		}
		return conv, nil
	}

	conv := newConversation(userID, conversationTitle(*req))
	if err := s.db.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	req.ConversationID = conv.ID
	return conv, nil
}

// documentContext assembles lesson source text from the stored chunks of a
// ready document: the chunks nearest the topic when it can be embedded,
// otherwise every chunk in order.
func (s *LessonService) documentContext(ctx context.Context, userID, docID, topic string) (string, error) {
	doc, err := s.db.GetDocumentByID(ctx, docID)
	if err != nil {
		return "", fmt.Errorf("load document: %w", err)
	}
	if doc == nil || doc.UserID != userID {
		return "", ErrNotFound
	}
	if doc.Status != models.DocumentReady {
		return "", ErrDocumentNotReady
	}

	chunks, err := s.nearestChunks(ctx, docID, topic)
	if err != nil {
		s.log.Warn("similarity search failed, using whole document", "doc_id", docID, "err", err)
	}
	if len(chunks) == 0 {
		chunks, err = s.db.GetChunksByDocument(ctx, docID)
		if err != nil {
			return "", fmt.Errorf("load chunks: %w", err)
		}
	}

	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Position < chunks[j].Position })
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, "\n\n"), nil
}

func (s *LessonService) nearestChunks(ctx context.Context, docID, topic string) ([]models.DocumentChunk, error) {
	if s.embedder == nil || topic == "" {
		return nil, nil
	}
	vecs, err := s.embedder.EmbedTexts(ctx, []string{topic})
	if err != nil {
		return nil, fmt.Errorf("embed topic: %w", err)
	}
	if len(vecs) == 0 {
		return nil, nil
	}
	return s.db.SearchDocumentChunks(ctx, docID, vecs[0], contextChunks)
}

func (s *LessonService) storeRequest(ctx context.Context, conversationID string, req lesson.Request) {
	content, err := jsonContent(map[string]string{
		"topic":       req.Topic,
		"document_id": req.DocumentID,
	})
	if err == nil {
		err = s.db.AddMessage(ctx, newMessage(conversationID, models.RoleUser, models.MessageTopic, content))
	}
	if err != nil {
		s.log.Warn("store lesson request failed", "conversation_id", conversationID, "err", err)
	}
}

func conversationTitle(req lesson.Request) string {
	title := req.Topic
	if title == "" {
		title = "Lesson from document"
	}
	r := []rune(title)
	if len(r) > titleLen {
		title = strings.TrimSpace(string(r[:titleLen])) + "..."
	}
	return title
}
