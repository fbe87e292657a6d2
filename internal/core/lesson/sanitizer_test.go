package lesson

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestStripCodeFences(t *testing.T) {
	cases := []struct{ in, want string }{
		{`{"a":1}`, `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"```{\"a\":1}```", `{"a":1}`},
		{"```json{\"a\":1}```", `{"a":1}`},
		{"```json[1,2]```", `[1,2]`},
		{"\n ```JSON\n[1,2]\n``` \n", `[1,2]`},
		{"```true```", `true`},
		{"````json\n```{\"a\":1}```\n````", "```{\"a\":1}```"},
	}
	for _, c := range cases {
		if got := StripCodeFences(c.in); got != c.want {
			t.Fatalf("StripCodeFences(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSanitizerParseError(t *testing.T) {
	s := NewSanitizer()
	raw := `{"text_explanation": "unterminated` + strings.Repeat("x", 400)
	res := s.Process(raw)
	if res.Outcome != Rejected || res.Reason != ReasonParseError {
		t.Fatalf("got %+v", res)
	}
	if !strings.HasSuffix(res.Preview, "...") || len([]rune(res.Preview)) != ParsePreviewLen+3 {
		t.Fatalf("preview not bounded: %d", len(res.Preview))
	}
	if s.Seen() != 0 {
		t.Fatalf("parse failures must not be fingerprinted")
	}
}

func TestSanitizerRejectsTrailingGarbage(t *testing.T) {
	res := NewSanitizer().Process(`{"a":1} {"b":2}`)
	if res.Outcome != Rejected || res.Reason != ReasonParseError {
		t.Fatalf("got %+v", res)
	}
}

func TestSanitizerDuplicateIgnoresKeyOrder(t *testing.T) {
	s := NewSanitizer()
	first := s.Process(`{"text_explanation":"x","tts_text":"y"}`)
	if first.Outcome != Emitted {
		t.Fatalf("first: %+v", first)
	}
	second := s.Process("```json\n{\"tts_text\":\"y\", \"text_explanation\":\"x\"}\n```")
	if second.Outcome != Duplicate {
		t.Fatalf("second: %+v", second)
	}
	s.Reset()
	if again := s.Process(`{"text_explanation":"x","tts_text":"y"}`); again.Outcome != Emitted {
		t.Fatalf("after reset: %+v", again)
	}
}

func TestSanitizerUnrecognizedShapes(t *testing.T) {
	for _, raw := range []string{`[1,2,3]`, `"just text"`, `42`, `null`, } {
		res := NewSanitizer().Process(raw)
		if res.Outcome != Rejected || res.Reason != ReasonUnrecognizedShape {
			t.Fatalf("%s: got %+v", raw, res)
		}
	}
}

func TestSanitizerLessonStepDefaults(t *testing.T) {
	res := NewSanitizer().Process(`{"text_explanation":"Fractions","whiteboard_commands":[{"action":"clear_all"}],"extra":1}`)
	if res.Outcome != Emitted || res.Record.Kind != KindLessonStep {
		t.Fatalf("got %+v", res)
	}
	step := res.Record.Step
	if step.TextExplanation != "Fractions" || step.TTSText != "Fractions" {
		t.Fatalf("got %+v", step)
	}
	if len(step.WhiteboardCommands) != 1 {
		t.Fatalf("commands %#v", step.WhiteboardCommands)
	}

	res = NewSanitizer().Process(`{"tts_text":"Say this"}`)
	step = res.Record.Step
	if step.TextExplanation != "" || step.TTSText != "Say this" || step.WhiteboardCommands == nil {
		t.Fatalf("got %+v", step)
	}
}

func TestSanitizerFencedStepWithTagAndNoNewline(t *testing.T) {
	res := NewSanitizer().Process("```json{\"text_explanation\":\"hi\"}```")
	if res.Outcome != Emitted || res.Record.Kind != KindLessonStep {
		t.Fatalf("got %+v", res)
	}
	if res.Record.Step.TextExplanation != "hi" {
		t.Fatalf("step %+v", res.Record.Step)
	}
}

func TestSanitizerNotesAndQuizPassThrough(t *testing.T) {
	notes := `{
		"notes_content":"<h2>Key Takeaways</h2><ul><li>1/2 = 2/4 & more</li></ul>",
		"quiz":[
			{"question":"q","options":["a","b"],"answer":"b","hint":"h"},
			{"question":"q2","options":["x"],"correct":"B"},
			{"question":"q3","options":["1","2"],"correct":1.5},
			"garbage"
		]
	}`
	res := NewSanitizer().Process(`{"notes_and_quiz_ready":` + notes + `}`)
	if res.Outcome != Emitted || res.Record.Kind != KindNotesAndQuiz {
		t.Fatalf("got %+v", res)
	}
	if !strings.Contains(string(res.Record.Notes), "<h2>Key Takeaways</h2>") {
		t.Fatalf("markup escaped or altered: %s", res.Record.Notes)
	}

	var got, want any
	if err := json.Unmarshal(res.Record.Notes, &got); err != nil {
		t.Fatalf("emitted notes are not JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(notes), &want); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("notes rewritten:\n got  %s\n want %s", res.Record.Notes, notes)
	}
	if _, ok := res.Record.Data().(json.RawMessage); !ok {
		t.Fatalf("Data should return the notes payload, got %T", res.Record.Data())
	}
}

func TestSanitizerNotesValueNotObject(t *testing.T) {
	res := NewSanitizer().Process(`{"notes_and_quiz_ready": "soon"}`)
	if res.Outcome != Emitted || res.Record.Kind != KindNotesAndQuiz || string(res.Record.Notes) != `"soon"` {
		t.Fatalf("got %+v", res)
	}
}
