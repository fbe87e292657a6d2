package lesson

import (
	"iter"
	"strings"
	"unicode/utf8"
)

// Markers framing records in the model output. They must match exactly.
const (
	StepStart = "@@STEP_START@@"
	StepEnd   = "@@STEP_END@@"
	LessonEnd = "@@LESSON_END@@"
)

// Reassembler accumulates raw model fragments and cuts complete
// StepStart/StepEnd delimited bodies out of them. It is not safe for
// concurrent use; each session owns its own.
type Reassembler struct {
	buf string
}

// Ingest appends fragment to the buffer and returns the bodies that are now
// complete. The append happens immediately; bodies are extracted (and their
// spans removed from the buffer) as the sequence is consumed, so a caller that
// stops early leaves the rest for the next call.
func (r *Reassembler) Ingest(fragment string) iter.Seq[string] {
	r.buf += fragment
	return func(yield func(string) bool) {
		for {
			body, ok := r.next()
			if !ok {
				return
			}
			if !yield(body) {
				return
			}
		}
	}
}

// next pairs the first start marker with the first end marker after it and
// drops everything up to and including that end marker.
func (r *Reassembler) next() (string, bool) {
	s := strings.Index(r.buf, StepStart)
	if s < 0 {
		return "", false
	}
	from := s + len(StepStart)
	e := strings.Index(r.buf[from:], StepEnd)
	if e < 0 {
		return "", false
	}
	e += from
	body := r.buf[from:e]
	r.buf = r.buf[e+len(StepEnd):]
	return body, true
}

// Buffered returns the unconsumed text.
func (r *Reassembler) Buffered() string { return r.buf }

// Pending reports whether the buffer holds an opened but unterminated record.
func (r *Reassembler) Pending() bool { return strings.Contains(r.buf, StepStart) }

func (r *Reassembler) Reset() { r.buf = "" }

// Preview truncates s to at most n characters, marking the cut with "...".
func Preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return truncateRunes(s, n) + "..."
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := 0
	for idx := range s {
		if i == n {
			return s[:idx]
		}
		i++
	}
	return s
}
