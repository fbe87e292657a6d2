package models

import (
	"encoding/json"
	"time"
)

// User represents an authenticated student.
type User struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Document processing states.
const (
	DocumentUploaded   = "uploaded"
	DocumentProcessing = "processing"
	DocumentReady      = "ready"
	DocumentFailed     = "failed"
)

// Document represents a PDF a student uploaded to learn from.
type Document struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	FileName    string    `db:"file_name" json:"file_name"`
	StorageURL  string    `db:"storage_url" json:"storage_url"`
	SourceType  string    `db:"source_type" json:"source_type"`   // "upload"
	ContentType string    `db:"content_type" json:"content_type"` // MIME type
	Status      string    `db:"status" json:"status"`             // uploaded | processing | ready | failed
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// DocumentChunk represents one text chunk from a document.
type DocumentChunk struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	Text       string    `db:"text" json:"text"`
	Embedding  []float32 `db:"embedding" json:"-"` // pgvector column
	Position   int       `db:"position" json:"position"`
	TokenCount int       `db:"token_count" json:"token_count"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Conversation groups the lessons generated for one student thread.
type Conversation struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Title     string    `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Message roles and kinds.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	MessageTopic        = "topic"
	MessageLessonStep   = "lesson_step"
	MessageNotesAndQuiz = "notes_and_quiz"
)

// Message is one entry of a conversation: the student's request or a record
// the generated lesson produced. Content holds the record JSON for assistant messages.
type Message struct {
	ID             string          `db:"id" json:"id"`
	ConversationID string          `db:"conversation_id" json:"conversation_id"`
	Role           string          `db:"role" json:"role"`
	Kind           string          `db:"kind" json:"kind"`
	Content        json.RawMessage `db:"content" json:"content"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// QuizAttempt records a student's answers to a lesson quiz.
type QuizAttempt struct {
	ID               string          `db:"id" json:"id"`
	UserID           string          `db:"user_id" json:"user_id"`
	ConversationID   string          `db:"conversation_id" json:"conversation_id"`
	Questions        json.RawMessage `db:"questions" json:"questions"`
	Score            float64         `db:"score" json:"score"`
	TimeTakenSeconds int             `db:"time_taken_seconds" json:"time_taken_seconds"`
	AttemptedAt      time.Time       `db:"attempted_at" json:"attempted_at"`
}
