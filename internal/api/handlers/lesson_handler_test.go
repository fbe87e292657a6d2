package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	middleware "github.com/markdave123-py/virtual-teacher/internal/api/middlewares"
	"github.com/markdave123-py/virtual-teacher/internal/core/lesson"
	"github.com/markdave123-py/virtual-teacher/internal/logger"
	"github.com/markdave123-py/virtual-teacher/internal/services"
)

const wsSecret = "ws-secret"

// scriptedGenerator plays a fixed script into the sink. When hold is set it
// blocks until hold is closed or ctx ends.
type scriptedGenerator struct {
	mu      sync.Mutex
	calls   []lesson.Request
	users   []string
	hold    chan struct{}
	started chan struct{}
	done    chan error
	err     error
}

func (g *scriptedGenerator) snapshot() ([]lesson.Request, []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]lesson.Request(nil), g.calls...), append([]string(nil), g.users...)
}

func (g *scriptedGenerator) Generate(ctx context.Context, userID string, req lesson.Request, sink lesson.Sink) (gen services.Generation, err error) {
	if g.done != nil {
		defer func() { g.done <- err }()
	}
	g.mu.Lock()
	g.calls = append(g.calls, req)
	g.users = append(g.users, userID)
	g.mu.Unlock()

	if g.started != nil {
		g.started <- struct{}{}
	}
	if g.hold != nil {
		select {
		case <-g.hold:
		case <-ctx.Done():
			return services.Generation{}, ctx.Err()
		}
	}
	if g.err != nil {
		_ = sink.EmitError(ctx, "An error occurred: "+g.err.Error(), "partial buffer")
		return services.Generation{}, g.err
	}

	_ = sink.EmitStatus(ctx, "Generating lesson...")
	_ = sink.EmitRecord(ctx, lesson.Record{Kind: lesson.KindLessonStep, Step: &lesson.LessonStep{
		TextExplanation:    "hi",
		TTSText:            "hi",
		WhiteboardCommands: []lesson.Command{lesson.ClearAll{Action: lesson.ActionClearAll}},
	}})
	_ = sink.EmitRecord(ctx, lesson.Record{Kind: lesson.KindNotesAndQuiz, Notes: json.RawMessage(`{"notes_content":"n","quiz":[]}`)})

	conv := req.ConversationID
	if userID != "" && conv == "" {
		conv = "conv-new"
	}
	return services.Generation{ConversationID: conv}, nil
}

type wireFrame struct {
	Type           string         `json:"type"`
	Message        string         `json:"message"`
	Data           map[string]any `json:"data"`
	RawPreview     string         `json:"raw_preview"`
	ConversationID string         `json:"conversation_id"`
}

func dialLesson(t *testing.T, gen LessonGenerator, query string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	h := NewLessonHandler(logger.NewNop(), gen, wsSecret, []string{"http://localhost:5173"})
	srv := httptest.NewServer(http.HandlerFunc(h.Serve))
	t.Cleanup(srv.Close)

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/lesson" + query
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func readFrame(t *testing.T, conn *websocket.Conn) wireFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f wireFrame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string) []wireFrame {
	t.Helper()
	var frames []wireFrame
	for {
		f := readFrame(t, conn)
		frames = append(frames, f)
		if f.Type == typ {
			return frames
		}
	}
}

func connect(t *testing.T, gen LessonGenerator, query string) *websocket.Conn {
	t.Helper()
	conn, _, err := dialLesson(t, gen, query)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if f := readFrame(t, conn); f.Type != FrameStatus || f.Message != "Connected! Ready for a topic or PDF." {
		t.Fatalf("unexpected greeting %+v", f)
	}
	return conn
}

func TestLessonSocketStreamsLesson(t *testing.T) {
	gen := &scriptedGenerator{}
	conn := connect(t, gen, "")

	if err := conn.WriteJSON(map[string]string{"topic": "photosynthesis"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	frames := readUntil(t, conn, FrameLessonEnd)

	var types []string
	for _, f := range frames {
		types = append(types, f.Type)
	}
	want := []string{FrameStatus, FrameLessonStep, FrameNotesQuiz, FrameLessonEnd}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("frame types = %v, want %v", types, want)
	}
	if frames[1].Data["text_explanation"] != "hi" {
		t.Fatalf("lesson_step data = %v", frames[1].Data)
	}
	if frames[2].Data["notes_content"] != "n" {
		t.Fatalf("notes data = %v", frames[2].Data)
	}
	if frames[3].Message != "Lesson generation finished." {
		t.Fatalf("lesson_end message = %q", frames[3].Message)
	}
	if _, users := gen.snapshot(); users[0] != "" {
		t.Fatalf("anonymous socket should generate without a user")
	}
}

func TestLessonSocketRejectsBadPayloads(t *testing.T) {
	gen := &scriptedGenerator{}
	conn := connect(t, gen, "")

	_ = conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
	if f := readFrame(t, conn); f.Type != FrameError || f.Message != "Invalid JSON payload." {
		t.Fatalf("invalid json frame = %+v", f)
	}

	_ = conn.WriteJSON(map[string]string{"topic": "   ", "pdf_text": ""})
	if f := readFrame(t, conn); f.Type != FrameError || f.Message != "Please provide a topic or a PDF." {
		t.Fatalf("empty request frame = %+v", f)
	}

	// the connection survives and still serves lessons
	_ = conn.WriteJSON(map[string]string{"pdf_text": "chapter one"})
	readUntil(t, conn, FrameLessonEnd)
	if calls, _ := gen.snapshot(); len(calls) != 1 || calls[0].PDFText != "chapter one" {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestLessonSocketErrorStillEndsLesson(t *testing.T) {
	gen := &scriptedGenerator{err: errors.New("quota exceeded")}
	conn := connect(t, gen, "")

	_ = conn.WriteJSON(map[string]string{"topic": "x"})
	frames := readUntil(t, conn, FrameLessonEnd)
	if len(frames) != 2 || frames[0].Type != FrameError {
		t.Fatalf("frames = %+v", frames)
	}
	if frames[0].RawPreview != "partial buffer" || !strings.Contains(frames[0].Message, "quota exceeded") {
		t.Fatalf("error frame = %+v", frames[0])
	}
}

func TestLessonSocketOneGenerationAtATime(t *testing.T) {
	gen := &scriptedGenerator{hold: make(chan struct{}), started: make(chan struct{}, 1)}
	conn := connect(t, gen, "")

	_ = conn.WriteJSON(map[string]string{"topic": "first"})
	select {
	case <-gen.started:
	case <-time.After(5 * time.Second):
		t.Fatalf("generation did not start")
	}

	_ = conn.WriteJSON(map[string]string{"topic": "second"})
	if f := readFrame(t, conn); f.Type != FrameError || !strings.Contains(f.Message, "already being generated") {
		t.Fatalf("busy frame = %+v", f)
	}

	close(gen.hold)
	readUntil(t, conn, FrameLessonEnd)
	if calls, _ := gen.snapshot(); len(calls) != 1 {
		t.Fatalf("second request must not start a generation, calls = %d", len(calls))
	}
}

func TestLessonSocketAuthenticatedUser(t *testing.T) {
	tok, err := middleware.IssueToken(wsSecret, "user-7", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	gen := &scriptedGenerator{}
	conn := connect(t, gen, "?token="+tok)

	_ = conn.WriteJSON(map[string]string{"topic": "cells"})
	frames := readUntil(t, conn, FrameLessonEnd)
	if end := frames[len(frames)-1]; end.ConversationID != "conv-new" {
		t.Fatalf("lesson_end should carry the conversation id, got %+v", end)
	}
	if _, users := gen.snapshot(); users[0] != "user-7" {
		t.Fatalf("user = %q", users[0])
	}
}

func TestLessonSocketRejectsBadToken(t *testing.T) {
	_, resp, err := dialLesson(t, &scriptedGenerator{}, "?token=garbage")
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestLessonSocketDisconnectCancelsGeneration(t *testing.T) {
	gen := &scriptedGenerator{
		hold:    make(chan struct{}),
		started: make(chan struct{}, 1),
		done:    make(chan error, 1),
	}
	conn, _, err := dialLesson(t, gen, "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	readFrame(t, conn)
	_ = conn.WriteJSON(map[string]string{"topic": "x"})
	<-gen.started
	conn.Close()

	// hold is never closed: the generator can only return through ctx.
	select {
	case err := <-gen.done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("generation not cancelled after disconnect")
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example/"})
	cases := []struct {
		origin, host string
		want         bool
	}{
		{"", "api.example", true},
		{"https://app.example", "api.example", true},
		{"https://evil.example", "api.example", false},
		{"http://api.example", "api.example", true},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/ws/lesson", nil)
		r.Host = tc.host
		if tc.origin != "" {
			r.Header.Set("Origin", tc.origin)
		}
		if got := check(r); got != tc.want {
			t.Fatalf("origin %q host %q: got %v want %v", tc.origin, tc.host, got, tc.want)
		}
	}
	if !originChecker([]string{"*"})(func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", "https://any.example")
		return r
	}()) {
		t.Fatalf("wildcard should allow any origin")
	}
}
