package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	middleware "github.com/markdave123-py/virtual-teacher/internal/api/middlewares"
	"github.com/markdave123-py/virtual-teacher/internal/core/lesson"
	"github.com/markdave123-py/virtual-teacher/internal/logger"
	"github.com/markdave123-py/virtual-teacher/internal/services"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxClientFrame = 4 << 20
)

// Frame types sent to lesson clients.
const (
	FrameStatus     = "status"
	FrameLessonStep = "lesson_step"
	FrameNotesQuiz  = "notes_and_quiz_ready"
	FrameError      = "error"
	FrameLessonEnd  = "lesson_end"
)

// LessonGenerator produces one lesson into a sink.
type LessonGenerator interface {
	Generate(ctx context.Context, userID string, req lesson.Request, sink lesson.Sink) (services.Generation, error)
}

// frame is the JSON envelope of every server message.
type frame struct {
	Type           string `json:"type"`
	Message        string `json:"message,omitempty"`
	Data           any    `json:"data,omitempty"`
	RawPreview     string `json:"raw_preview,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type LessonHandler struct {
	log      *logger.Logger
	lessons  LessonGenerator
	secret   string
	upgrader websocket.Upgrader
}

func NewLessonHandler(log *logger.Logger, lessons LessonGenerator, secret string, allowedOrigins []string) *LessonHandler {
	h := &LessonHandler{
		log:     log.With("component", "LessonHandler"),
		lessons: lessons,
		secret:  secret,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// originChecker accepts same-origin requests, requests without an Origin
// header and any origin in allowed. "*" allows everything.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		if _, ok := set[origin]; ok {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// Serve upgrades the request and runs the lesson protocol until the client
// disconnects. A token (query parameter or bearer header) is optional; when
// present it must be valid and lessons are stored for that user.
func (h *LessonHandler) Serve(w http.ResponseWriter, r *http.Request) {
	userID, err := h.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "err", err)
		return
	}

	conn := &lessonConn{ws: ws, log: h.log.With("user_id", userID)}
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
		_ = ws.Close()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		conn.keepAlive(ctx)
	}()

	if err := conn.send(frame{Type: FrameStatus, Message: "Connected! Ready for a topic or PDF."}); err != nil {
		return
	}

	ws.SetReadLimit(maxClientFrame)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	var busy atomic.Bool
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				conn.log.Warn("websocket read failed", "err", err)
			}
			return
		}

		var req lesson.Request
		if err := json.Unmarshal(data, &req); err != nil {
			if conn.send(frame{Type: FrameError, Message: "Invalid JSON payload."}) != nil {
				return
			}
			continue
		}
		if err := req.Normalize(); err != nil {
			if conn.send(frame{Type: FrameError, Message: "Please provide a topic or a PDF."}) != nil {
				return
			}
			continue
		}
		if !busy.CompareAndSwap(false, true) {
			if conn.send(frame{Type: FrameError, Message: "A lesson is already being generated. Please wait for it to finish."}) != nil {
				return
			}
			continue
		}

		wg.Add(1)
		go func(req lesson.Request) {
			defer wg.Done()
			defer busy.Store(false)
			h.generate(ctx, conn, userID, req)
		}(req)
	}
}

func (h *LessonHandler) generate(ctx context.Context, conn *lessonConn, userID string, req lesson.Request) {
	gen, err := h.lessons.Generate(ctx, userID, req, conn)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		conn.log.Debug("lesson cancelled, client gone")
		return
	default:
		conn.log.Warn("lesson generation ended with error", "err", err)
	}
	if gen.ConversationID == "" {
		gen.ConversationID = req.ConversationID
	}

	// Sent after every generation, whatever happened to it.
	if err := conn.send(frame{
		Type:           FrameLessonEnd,
		Message:        "Lesson generation finished.",
		ConversationID: gen.ConversationID,
	}); err != nil {
		conn.log.Debug("lesson_end not delivered", "err", err)
	}
}

func (h *LessonHandler) authenticate(r *http.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		return "", nil
	}
	if h.secret == "" {
		return "", errors.New("authentication not configured")
	}
	return middleware.ParseToken(h.secret, token)
}

// lessonConn serialises writes to one websocket and implements lesson.Sink.
type lessonConn struct {
	ws  *websocket.Conn
	log *logger.Logger
	mu  sync.Mutex
}

func (c *lessonConn) send(f frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(f)
}

func (c *lessonConn) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (c *lessonConn) EmitStatus(_ context.Context, message string) error {
	return c.send(frame{Type: FrameStatus, Message: message})
}

func (c *lessonConn) EmitRecord(_ context.Context, rec lesson.Record) error {
	t := FrameLessonStep
	if rec.Kind == lesson.KindNotesAndQuiz {
		t = FrameNotesQuiz
	}
	return c.send(frame{Type: t, Data: rec.Data()})
}

func (c *lessonConn) EmitError(_ context.Context, message, rawPreview string) error {
	return c.send(frame{Type: FrameError, Message: message, RawPreview: rawPreview})
}

var _ lesson.Sink = (*lessonConn)(nil)
