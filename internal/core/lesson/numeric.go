package lesson

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// ParseClampedNumber coerces raw to a float and clamps it into [lo, hi].
// A missing (nil) or non-numeric raw value yields def, which is clamped too.
func ParseClampedNumber(raw any, def, lo, hi float64) float64 {
	v, ok := toFloat(raw)
	if !ok {
		v = def
	}
	return math.Max(lo, math.Min(hi, v))
}

// toFloat accepts JSON numbers, numeric strings and booleans.
func toFloat(raw any) (float64, bool) {
	var (
		v   float64
		err error
	)
	switch t := raw.(type) {
	case float64:
		v = t
	case float32:
		v = float64(t)
	case int:
		v = float64(t)
	case int64:
		v = float64(t)
	case json.Number:
		v, err = strconv.ParseFloat(string(t), 64)
	case string:
		v, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
	case bool:
		if t {
			v = 1
		}
	default:
		return 0, false
	}
	// Out-of-range literals come back as ±Inf and clamp to the bound.
	if errors.Is(err, strconv.ErrRange) && math.IsInf(v, 0) {
		err = nil
	}
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// coerceString renders raw as text, falling back to def when absent, and
// truncates the result to max characters (max <= 0 means unbounded).
func coerceString(raw any, def string, max int) string {
	var s string
	switch t := raw.(type) {
	case nil:
		s = def
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			s = def
		} else {
			s = string(b)
		}
	}
	if max > 0 {
		s = truncateRunes(s, max)
	}
	return s
}
