package lesson

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/markdave123-py/virtual-teacher/internal/logger"
)

// ErrorPreviewLen bounds the buffer excerpt attached to fatal errors.
const ErrorPreviewLen = 2000

var (
	ErrSessionNotStarted  = errors.New("lesson session not started")
	ErrGenerationInFlight = errors.New("a lesson is already being generated")
)

// Sink receives everything a session produces. Calls happen in extraction
// order from the goroutine driving the session. A returned error aborts the
// fragment being processed.
type Sink interface {
	EmitStatus(ctx context.Context, message string) error
	EmitRecord(ctx context.Context, rec Record) error
	EmitError(ctx context.Context, message, rawPreview string) error
}

// Stats counts what a session did with the bodies it extracted.
type Stats struct {
	Fragments  int
	Emitted    int
	Rejected   int
	Duplicates int
}

// Session is one lesson generation: a Reassembler and a Sanitizer bound to a
// Sink. A Session must be driven from a single goroutine.
type Session struct {
	sink      Sink
	log       *logger.Logger
	reasm     Reassembler
	sanitizer *Sanitizer

	started     bool
	lessonEnded bool
	stats       Stats
}

func NewSession(sink Sink, log *logger.Logger) *Session {
	if log == nil {
		log = logger.NewNop()
	}
	return &Session{
		sink:      sink,
		log:       log.With("component", "LessonSession"),
		sanitizer: NewSanitizer(),
	}
}

// Start resets the buffer and the dedup set.
func (s *Session) Start() {
	s.reasm.Reset()
	s.sanitizer.Reset()
	s.started = true
	s.lessonEnded = false
	s.stats = Stats{}
}

// Feed processes one fragment to completion: every record it completes is
// sanitized and handed to the sink before Feed returns.
func (s *Session) Feed(ctx context.Context, fragment string) error {
	if !s.started {
		return ErrSessionNotStarted
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if fragment == "" {
		return nil
	}
	s.stats.Fragments++

	bodies := s.reasm.Ingest(fragment)
	if !s.lessonEnded && strings.Contains(s.reasm.Buffered(), LessonEnd) {
		s.lessonEnded = true
		s.log.Debug("lesson end marker seen", "fragments", s.stats.Fragments)
	}

	for body := range bodies {
		if err := s.handle(ctx, body); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) handle(ctx context.Context, body string) error {
	res := s.sanitizer.Process(body)
	switch res.Outcome {
	case Duplicate:
		s.stats.Duplicates++
		s.log.Debug("duplicate record skipped")
		return nil

	case Rejected:
		s.stats.Rejected++
		s.log.Warn("record rejected", "reason", res.Reason)
		if res.Reason == ReasonParseError {
			return s.sink.EmitStatus(ctx, "JSON parse failed. Preview: "+res.Preview)
		}
		return nil
	}

	s.stats.Emitted++
	if err := s.sink.EmitRecord(ctx, res.Record); err != nil {
		return fmt.Errorf("emit %s: %w", res.Record.Kind, err)
	}
	return nil
}

// End closes the session after the upstream stream completed. An
// unterminated record still in the buffer is dropped silently.
func (s *Session) End(ctx context.Context) {
	if s.reasm.Pending() {
		s.log.Debug("discarding unterminated record", "buffered", len(s.reasm.Buffered()))
	}
	s.log.Info("lesson session finished",
		"fragments", s.stats.Fragments,
		"emitted", s.stats.Emitted,
		"rejected", s.stats.Rejected,
		"duplicates", s.stats.Duplicates,
		"lesson_end", s.lessonEnded,
	)
	s.discard()
}

// Fail reports a fatal upstream error to the sink along with a preview of
// the unconsumed buffer, then discards all session state.
func (s *Session) Fail(ctx context.Context, cause error) error {
	preview := Preview(s.reasm.Buffered(), ErrorPreviewLen)
	s.log.Error("lesson generation failed", "err", cause)
	s.discard()
	return s.sink.EmitError(ctx, fmt.Sprintf("An error occurred: %v", cause), preview)
}

// Abort discards all state without notifying the sink. Used when the client
// is gone.
func (s *Session) Abort() {
	s.log.Debug("lesson session aborted", "buffered", len(s.reasm.Buffered()))
	s.discard()
}

func (s *Session) discard() {
	s.reasm.Reset()
	s.sanitizer.Reset()
	s.started = false
}

// LessonEnded reports whether the lesson-end marker appeared in the stream.
func (s *Session) LessonEnded() bool { return s.lessonEnded }

func (s *Session) Stats() Stats { return s.stats }
