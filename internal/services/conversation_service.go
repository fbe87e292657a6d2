package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/virtual-teacher/internal/core"
	"github.com/markdave123-py/virtual-teacher/internal/models"
)

// ConversationService exposes a user's lesson history. Every call checks
// ownership and reports foreign conversations as ErrNotFound.
type ConversationService struct {
	db core.DbClient
}

func NewConversationService(db core.DbClient) *ConversationService {
	return &ConversationService{db: db}
}

func (s *ConversationService) List(ctx context.Context, userID string) ([]models.Conversation, error) {
	return s.db.ListConversationsByUser(ctx, userID)
}

func (s *ConversationService) Messages(ctx context.Context, userID, conversationID string) ([]models.Message, error) {
	if _, err := s.owned(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return s.db.ListMessages(ctx, conversationID)
}

func (s *ConversationService) Rename(ctx context.Context, userID, conversationID, title string) (*models.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" || len([]rune(title)) > 200 {
		return nil, fmt.Errorf("%w: title must be 1-200 characters", ErrInvalidInput)
	}
	conv, err := s.owned(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if err := s.db.RenameConversation(ctx, conversationID, title); err != nil {
		return nil, err
	}
	conv.Title = title
	conv.UpdatedAt = time.Now().UTC()
	return conv, nil
}

func (s *ConversationService) Delete(ctx context.Context, userID, conversationID string) error {
	if _, err := s.owned(ctx, userID, conversationID); err != nil {
		return err
	}
	return s.db.DeleteConversation(ctx, conversationID)
}

func (s *ConversationService) owned(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	conv, err := s.db.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil || conv.UserID != userID {
		return nil, ErrNotFound
	}
	return conv, nil
}

// QuizService records quiz attempts.
type QuizService struct {
	db core.DbClient
}

func NewQuizService(db core.DbClient) *QuizService {
	return &QuizService{db: db}
}

// QuizSubmission is what a client reports after finishing a quiz.
type QuizSubmission struct {
	ConversationID   string          `json:"conversation_id"`
	Questions        json.RawMessage `json:"questions"`
	Score            float64         `json:"score"`
	TimeTakenSeconds int             `json:"time_taken_seconds"`
}

func (s *QuizService) Record(ctx context.Context, userID string, sub QuizSubmission) (*models.QuizAttempt, error) {
	if sub.Score < 0 || sub.Score > 100 {
		return nil, fmt.Errorf("%w: score must be within 0-100", ErrInvalidInput)
	}
	if sub.TimeTakenSeconds < 0 {
		return nil, fmt.Errorf("%w: time_taken_seconds must not be negative", ErrInvalidInput)
	}
	if len(sub.Questions) == 0 || !json.Valid(sub.Questions) {
		return nil, fmt.Errorf("%w: questions", ErrInvalidInput)
	}
	if sub.ConversationID != "" {
		conv, err := s.db.GetConversation(ctx, sub.ConversationID)
		if err != nil {
			return nil, err
		}
		if conv == nil || conv.UserID != userID {
			return nil, ErrNotFound
		}
	}

	a := &models.QuizAttempt{
		ID:               uuid.NewString(),
		UserID:           userID,
		ConversationID:   sub.ConversationID,
		Questions:        sub.Questions,
		Score:            sub.Score,
		TimeTakenSeconds: sub.TimeTakenSeconds,
		AttemptedAt:      time.Now().UTC(),
	}
	if err := s.db.CreateQuizAttempt(ctx, a); err != nil {
		return nil, fmt.Errorf("create quiz attempt: %w", err)
	}
	return a, nil
}

func (s *QuizService) List(ctx context.Context, userID string) ([]models.QuizAttempt, error) {
	return s.db.ListQuizAttemptsByUser(ctx, userID)
}
