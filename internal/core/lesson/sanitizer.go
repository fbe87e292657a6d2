package lesson

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"
)

const (
	notesKey = "notes_and_quiz_ready"

	// ParsePreviewLen bounds the raw body excerpt reported on parse failures.
	ParsePreviewLen = 200
)

var (
	fenceOpen  = regexp.MustCompile(`^\x60+([A-Za-z][A-Za-z0-9_+.-]*)?`)
	fenceClose = regexp.MustCompile(`\x60+$`)
)

// Sanitizer turns raw record bodies into validated records and remembers what
// it has already emitted. The seen set lives as long as the Sanitizer; call
// Reset when a new generation starts.
type Sanitizer struct {
	seen map[string]struct{}
}

func NewSanitizer() *Sanitizer {
	return &Sanitizer{seen: make(map[string]struct{})}
}

func (s *Sanitizer) Reset() {
	s.seen = make(map[string]struct{})
}

// Seen returns the number of distinct fingerprints recorded.
func (s *Sanitizer) Seen() int { return len(s.seen) }

// Process decodes, deduplicates and classifies one raw body.
func (s *Sanitizer) Process(raw string) Result {
	value, err := decodeValue(StripCodeFences(raw))
	if err != nil {
		return Result{Outcome: Rejected, Reason: ReasonParseError, Preview: Preview(raw, ParsePreviewLen)}
	}

	fp, err := Fingerprint(value)
	if err != nil {
		return Result{Outcome: Rejected, Reason: ReasonParseError, Preview: Preview(raw, ParsePreviewLen)}
	}
	if _, dup := s.seen[fp]; dup {
		return Result{Outcome: Duplicate}
	}
	s.seen[fp] = struct{}{}

	obj, ok := value.(map[string]any)
	if !ok {
		return Result{Outcome: Rejected, Reason: ReasonUnrecognizedShape}
	}
	if nq, ok := obj[notesKey]; ok {
		notes, err := encodeVerbatim(nq)
		if err != nil {
			return Result{Outcome: Rejected, Reason: ReasonParseError, Preview: Preview(raw, ParsePreviewLen)}
		}
		return Result{Outcome: Emitted, Record: Record{Kind: KindNotesAndQuiz, Notes: notes}}
	}
	return Result{Outcome: Emitted, Record: Record{Kind: KindLessonStep, Step: decodeStep(obj)}}
}

// StripCodeFences removes one surrounding markdown code fence, if present.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(stripFenceOpen(s))
	s = fenceClose.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// encodeVerbatim re-encodes a decoded value without HTML escaping, so notes
// markup is stored and forwarded as written.
func encodeVerbatim(v any) (json.RawMessage, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(b.Bytes(), "\n"), nil
}

// stripFenceOpen drops a leading backtick run and the language tag after it.
// The tag counts only when whitespace, an object or an array follows it, so a
// bare "```true```" keeps its value.
func stripFenceOpen(s string) string {
	m := fenceOpen.FindStringSubmatchIndex(s)
	if m == nil {
		return s
	}
	rest := s[m[1]:]
	if m[2] >= 0 && rest != "" && !strings.ContainsAny(rest[:1], " \t\r\n{[") {
		return s[m[2]:]
	}
	return rest
}

// Fingerprint hashes the canonical JSON form of v. encoding/json writes map
// keys in sorted order, so equal values hash equally regardless of the key
// order they arrived in.
func Fingerprint(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// decodeValue parses exactly one JSON value, keeping numbers as json.Number.
func decodeValue(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

func decodeStep(obj map[string]any) *LessonStep {
	text := coerceString(obj["text_explanation"], "", 0)
	tts := text
	if raw, ok := obj["tts_text"]; ok && raw != nil {
		tts = coerceString(raw, text, 0)
	}
	return &LessonStep{
		TextExplanation:    text,
		TTSText:            tts,
		WhiteboardCommands: SanitizeCommands(obj["whiteboard_commands"]),
	}
}
