package services

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/virtual-teacher/internal/core"
	"github.com/markdave123-py/virtual-teacher/internal/core/lesson"
	"github.com/markdave123-py/virtual-teacher/internal/logger"
	"github.com/markdave123-py/virtual-teacher/internal/models"
)

// PersistingSink forwards to another sink and stores every delivered record
// as an assistant message of a conversation. Storage failures are logged and
// never interrupt the lesson.
type PersistingSink struct {
	log            *logger.Logger
	db             core.DbClient
	conversationID string
	next           lesson.Sink
}

func NewPersistingSink(log *logger.Logger, db core.DbClient, conversationID string, next lesson.Sink) *PersistingSink {
	return &PersistingSink{
		log:            log.With("component", "PersistingSink", "conversation_id", conversationID),
		db:             db,
		conversationID: conversationID,
		next:           next,
	}
}

func (p *PersistingSink) EmitStatus(ctx context.Context, message string) error {
	return p.next.EmitStatus(ctx, message)
}

func (p *PersistingSink) EmitError(ctx context.Context, message, rawPreview string) error {
	return p.next.EmitError(ctx, message, rawPreview)
}

func (p *PersistingSink) EmitRecord(ctx context.Context, rec lesson.Record) error {
	if err := p.next.EmitRecord(ctx, rec); err != nil {
		return err
	}

	kind := models.MessageLessonStep
	if rec.Kind == lesson.KindNotesAndQuiz {
		kind = models.MessageNotesAndQuiz
	}
	content, err := jsonContent(rec.Data())
	if err == nil {
		err = p.db.AddMessage(ctx, newMessage(p.conversationID, models.RoleAssistant, kind, content))
	}
	if err != nil {
		p.log.Warn("store lesson record failed", "kind", kind, "err", err)
	}
	return nil
}

var _ lesson.Sink = (*PersistingSink)(nil)

func jsonContent(v any) (json.RawMessage, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(b.Bytes(), "\n"), nil
}

func newMessage(conversationID, role, kind string, content json.RawMessage) *models.Message {
	return &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Kind:           kind,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
}

func newConversation(userID, title string) *models.Conversation {
	now := time.Now().UTC()
	return &models.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
