package services

import (
	"context"
	"errors"
	"sync"

	"github.com/markdave123-py/virtual-teacher/internal/core"
	"github.com/markdave123-py/virtual-teacher/internal/core/lesson"
	"github.com/markdave123-py/virtual-teacher/internal/models"
)

// memDB is an in-memory core.DbClient covering what the services touch.
type memDB struct {
	core.DbClient

	mu       sync.Mutex
	users    map[string]*models.User
	docs     map[string]*models.Document
	chunks   map[string][]models.DocumentChunk
	convs    map[string]*models.Conversation
	messages map[string][]models.Message
	attempts []models.QuizAttempt
	searched int
}

func newMemDB() *memDB {
	return &memDB{
		users:    map[string]*models.User{},
		docs:     map[string]*models.Document{},
		chunks:   map[string][]models.DocumentChunk{},
		convs:    map[string]*models.Conversation{},
		messages: map[string][]models.Message{},
	}
}

func (m *memDB) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return errors.New("duplicate email")
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memDB) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memDB) GetUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *memDB) CreateDocument(_ context.Context, d *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.docs[d.ID] = &cp
	return nil
}

func (m *memDB) GetDocumentByID(_ context.Context, id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.docs[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, nil
}

func (m *memDB) GetChunksByDocument(_ context.Context, id string) ([]models.DocumentChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.DocumentChunk(nil), m.chunks[id]...), nil
}

// SearchDocumentChunks returns the last limit chunks in reverse so callers
// must reorder by position.
func (m *memDB) SearchDocumentChunks(_ context.Context, id string, _ []float32, limit int) ([]models.DocumentChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searched++
	all := m.chunks[id]
	var out []models.DocumentChunk
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (m *memDB) CreateConversation(_ context.Context, c *models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.convs[c.ID] = &cp
	return nil
}

func (m *memDB) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.convs[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (m *memDB) ListConversationsByUser(_ context.Context, userID string) ([]models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Conversation{}
	for _, c := range m.convs {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memDB) RenameConversation(_ context.Context, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[id]
	if !ok {
		return errors.New("conversation not found")
	}
	c.Title = title
	return nil
}

func (m *memDB) DeleteConversation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.convs, id)
	delete(m.messages, id)
	return nil
}

func (m *memDB) AddMessage(_ context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], *msg)
	return nil
}

func (m *memDB) ListMessages(_ context.Context, id string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Message{}, m.messages[id]...), nil
}

func (m *memDB) CreateQuizAttempt(_ context.Context, a *models.QuizAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, *a)
	return nil
}

func (m *memDB) ListQuizAttemptsByUser(_ context.Context, userID string) ([]models.QuizAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.QuizAttempt{}
	for _, a := range m.attempts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

// fakeLLM replays fragments, then returns err.
type fakeLLM struct {
	frags  []string
	err    error
	prompt string
}

func (f *fakeLLM) StreamGenerate(_ context.Context, _, userPrompt string, onChunk func(string) error) error {
	f.prompt = userPrompt
	for _, fr := range f.frags {
		if err := onChunk(fr); err != nil {
			return err
		}
	}
	return f.err
}

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type sinkError struct{ message, preview string }

type recordingSink struct {
	mu        sync.Mutex
	statuses  []string
	records   []lesson.Record
	errs      []sinkError
	recordErr error
}

func (r *recordingSink) EmitStatus(_ context.Context, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, message)
	return nil
}

func (r *recordingSink) EmitRecord(_ context.Context, rec lesson.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recordErr != nil {
		return r.recordErr
	}
	r.records = append(r.records, rec)
	return nil
}

func (r *recordingSink) EmitError(_ context.Context, message, preview string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, sinkError{message: message, preview: preview})
	return nil
}
