package lesson

import "encoding/json"

// Kind tags an emitted record.
type Kind string

const (
	KindLessonStep   Kind = "lesson_step"
	KindNotesAndQuiz Kind = "notes_and_quiz"
)

// LessonStep is one teaching step: what to show, what to say, what to draw.
type LessonStep struct {
	TextExplanation    string    `json:"text_explanation"`
	TTSText            string    `json:"tts_text"`
	WhiteboardCommands []Command `json:"whiteboard_commands"`
}

// Record is a sanitized record. Exactly one of Step or Notes is set,
// matching Kind. Notes is the notes_and_quiz_ready value exactly as the model
// produced it (notes_content HTML and quiz), re-encoded but never rewritten.
type Record struct {
	Kind  Kind
	Step  *LessonStep
	Notes json.RawMessage
}

// Data returns the payload delivered to clients for this record.
func (r Record) Data() any {
	switch r.Kind {
	case KindLessonStep:
		return r.Step
	case KindNotesAndQuiz:
		return r.Notes
	}
	return nil
}

// Outcome of processing one raw body.
type Outcome int

const (
	Emitted Outcome = iota + 1
	Rejected
	Duplicate
)

func (o Outcome) String() string {
	switch o {
	case Emitted:
		return "emitted"
	case Rejected:
		return "rejected"
	case Duplicate:
		return "duplicate"
	}
	return "unknown"
}

// Rejection reasons.
const (
	ReasonParseError        = "parse_error"
	ReasonUnrecognizedShape = "unrecognized_shape"
)

// Result is what the sanitizer made of one raw body. Record is set for
// Emitted, Reason for Rejected. Preview carries a bounded excerpt of the raw
// body when it failed to parse.
type Result struct {
	Outcome Outcome
	Record  Record
	Reason  string
	Preview string
}
