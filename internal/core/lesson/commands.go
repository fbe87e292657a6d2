package lesson

// Action discriminates whiteboard commands.
type Action string

const (
	ActionClearAll  Action = "clear_all"
	ActionWriteText Action = "write_text"
	ActionDrawShape Action = "draw_shape"
	ActionDrawArrow Action = "draw_arrow"
)

// Field bounds.
const (
	MinPercent    = 0.0
	MaxPercent    = 100.0
	MinFontSize   = 8.0
	MaxFontSize   = 200.0
	MinShapeSize  = 0.1
	MaxTextLen    = 1200
	MaxColorLen   = 32
	DefaultFont   = 20
	DefaultShape  = 10.0
	DefaultColor  = "black"
	DefaultFill   = "#f3f4f6"
	DefaultStroke = "black"
	AlignLeft     = "left"
	AlignCenter   = "center"
	ShapeRect     = "rect"
	ShapeCircle   = "circle"
)

// Command is one sanitized whiteboard instruction.
type Command interface {
	CommandAction() Action
}

type ClearAll struct {
	Action Action `json:"action"`
}

type WriteText struct {
	Action   Action  `json:"action"`
	Text     string  `json:"text"`
	XPercent float64 `json:"x_percent"`
	YPercent float64 `json:"y_percent"`
	FontSize int     `json:"font_size"`
	Color    string  `json:"color"`
	Align    string  `json:"align"`
}

type DrawShape struct {
	Action        Action  `json:"action"`
	Shape         string  `json:"shape"`
	XPercent      float64 `json:"x_percent"`
	YPercent      float64 `json:"y_percent"`
	WidthPercent  float64 `json:"width_percent"`
	HeightPercent float64 `json:"height_percent"`
	Color         string  `json:"color"`
	Stroke        string  `json:"stroke"`
}

// DrawArrow points are x1, y1, x2, y2 in percent.
type DrawArrow struct {
	Action Action     `json:"action"`
	Points [4]float64 `json:"points"`
	Color  string     `json:"color"`
}

func (ClearAll) CommandAction() Action  { return ActionClearAll }
func (WriteText) CommandAction() Action { return ActionWriteText }
func (DrawShape) CommandAction() Action { return ActionDrawShape }
func (DrawArrow) CommandAction() Action { return ActionDrawArrow }

// SanitizeCommands keeps the whitelisted entries of raw, in order, rebuilt
// from their recognized fields only. Anything that is not an array yields an
// empty list.
func SanitizeCommands(raw any) []Command {
	out := make([]Command, 0)
	items, ok := raw.([]any)
	if !ok {
		return out
	}
	for _, item := range items {
		if cmd, ok := SanitizeCommand(item); ok {
			out = append(out, cmd)
		}
	}
	return out
}

// SanitizeCommand validates a single decoded entry. ok is false when the entry
// must be dropped.
func SanitizeCommand(raw any) (Command, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}
	action, _ := m["action"].(string)

	switch Action(action) {
	case ActionClearAll:
		return ClearAll{Action: ActionClearAll}, true

	case ActionWriteText:
		align, _ := m["align"].(string)
		if align != AlignCenter {
			align = AlignLeft
		}
		return WriteText{
			Action:   ActionWriteText,
			Text:     coerceString(m["text"], "", MaxTextLen),
			XPercent: percent(m["x_percent"], 0),
			YPercent: percent(m["y_percent"], 0),
			FontSize: int(ParseClampedNumber(m["font_size"], DefaultFont, MinFontSize, MaxFontSize)),
			Color:    coerceString(m["color"], DefaultColor, MaxColorLen),
			Align:    align,
		}, true

	case ActionDrawShape:
		shape, _ := m["shape"].(string)
		if shape != ShapeRect && shape != ShapeCircle {
			return nil, false
		}
		return DrawShape{
			Action:        ActionDrawShape,
			Shape:         shape,
			XPercent:      percent(m["x_percent"], 0),
			YPercent:      percent(m["y_percent"], 0),
			WidthPercent:  ParseClampedNumber(m["width_percent"], DefaultShape, MinShapeSize, MaxPercent),
			HeightPercent: ParseClampedNumber(m["height_percent"], DefaultShape, MinShapeSize, MaxPercent),
			Color:         coerceString(m["color"], DefaultFill, MaxColorLen),
			Stroke:        coerceString(m["stroke"], DefaultStroke, MaxColorLen),
		}, true

	case ActionDrawArrow:
		pts, ok := m["points"].([]any)
		if !ok || len(pts) != 4 {
			return nil, false
		}
		arrow := DrawArrow{Action: ActionDrawArrow, Color: coerceString(m["color"], DefaultColor, MaxColorLen)}
		for i, p := range pts {
			v, ok := toFloat(p)
			if !ok {
				return nil, false
			}
			arrow.Points[i] = ParseClampedNumber(v, 0, MinPercent, MaxPercent)
		}
		return arrow, true
	}
	return nil, false
}

func percent(raw any, def float64) float64 {
	return ParseClampedNumber(raw, def, MinPercent, MaxPercent)
}
