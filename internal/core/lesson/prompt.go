package lesson

import (
	"errors"
	"strings"
	"text/template"
)

// DefaultMaxSourceLen caps how much supplied document text goes into a prompt.
const DefaultMaxSourceLen = 15000

var ErrEmptyRequest = errors.New("lesson request has no topic or document")

// Request is what a client asks a lesson about.
type Request struct {
	Topic          string `json:"topic"`
	PDFText        string `json:"pdf_text"`
	DocumentID     string `json:"document_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Normalize trims the free-text fields and rejects a request with nothing to
// teach from.
func (r *Request) Normalize() error {
	r.Topic = strings.TrimSpace(r.Topic)
	r.PDFText = strings.TrimSpace(r.PDFText)
	r.DocumentID = strings.TrimSpace(r.DocumentID)
	r.ConversationID = strings.TrimSpace(r.ConversationID)
	if r.Topic == "" && r.PDFText == "" && r.DocumentID == "" {
		return ErrEmptyRequest
	}
	return nil
}

var promptTmpl = template.Must(template.New("lesson").Parse(`You are an engaging AI Virtual Teacher. Your student is a complete beginner. Your task is to create a simple, step-by-step lesson based on the provided content:
'{{.Content}}'.

**VERY IMPORTANT RULES**:
1.  Break the lesson into 4-8 small, easily digestible steps.
2.  For each step, generate a JSON object wrapped between the exact markers {{.StepStart}} and {{.StepEnd}}.
3.  After the final step, generate one last JSON object for notes and a quiz, also wrapped in the markers.
4.  End the entire generation with the single token {{.LessonEnd}} on a new line.
5.  Use the whiteboard creatively! Use shapes to create diagrams, use text of different sizes and colors, and arrows to show connections. Make it feel like a real teacher at a whiteboard.

**Whiteboard commands** (coordinates and sizes are percentages of the board):
- {"action":"clear_all"}
- {"action":"write_text","text":"...","x_percent":10,"y_percent":10,"font_size":24,"color":"black","align":"left"}
- {"action":"draw_shape","shape":"rect","x_percent":10,"y_percent":30,"width_percent":20,"height_percent":10,"color":"#f3f4f6","stroke":"black"}
- {"action":"draw_arrow","points":[30,35,50,35],"color":"black"}

**JSON Schemas**:

// For a lesson step:
{
  "text_explanation": "Simple explanation for the student.",
  "tts_text": "Slightly more conversational text for text-to-speech.",
  "whiteboard_commands": [ /* Array of whiteboard drawing commands */ ]
}

// For the final notes & quiz object:
{
  "notes_and_quiz_ready": {
      "notes_content": "<h2>Key Takeaways</h2><ul><li>...</li></ul>",
      "quiz": [ { "question": "...", "options":[...], "correct": 0, "feedback":"..." } ]
  }
}

Now, begin the lesson.
`))

// BuildPrompt renders the generation prompt for req. Source text beyond
// maxSource characters is cut off.
func BuildPrompt(req Request, maxSource int) (string, error) {
	if maxSource <= 0 {
		maxSource = DefaultMaxSourceLen
	}
	content := "Topic: " + req.Topic
	if req.PDFText != "" {
		content += "\n\nUse the following content to create the lesson:\n\n---\n" + truncateRunes(req.PDFText, maxSource) + "\n---"
	}

	var b strings.Builder
	err := promptTmpl.Execute(&b, struct {
		Content                       string
		StepStart, StepEnd, LessonEnd string
	}{content, StepStart, StepEnd, LessonEnd})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}
