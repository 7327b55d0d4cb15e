package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Setting is a numeric configuration value supplied by a client.
//
// Decoding a Setting never fails: JSON numbers and strings holding a number
// are valid, with fractions truncated and out-of-range magnitudes saturated
// to the int64 range. Anything else (booleans, objects, text) produces a
// Setting with Valid set to false, which normalization later replaces with a
// default.
type Setting struct {
	Value int64
	Valid bool
}

// NewSetting returns a valid Setting holding v.
func NewSetting(v int64) *Setting {
	return &Setting{Value: v, Valid: true}
}

// Get returns the value of s, or def when s is nil or invalid.
func (s *Setting) Get(def int64) int64 {
	if s == nil || !s.Valid {
		return def
	}
	return s.Value
}

// MarshalJSON emits the value as a JSON number, or null when invalid.
func (s Setting) MarshalJSON() ([]byte, error) {
	if !s.Valid {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, s.Value, 10), nil
}

// UnmarshalJSON implements json.Unmarshaler. See Setting for the rules.
func (s *Setting) UnmarshalJSON(b []byte) error {
	*s = Setting{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	var text string
	switch b[0] {
	case '"':
		if err := json.Unmarshal(b, &text); err != nil {
			return nil
		}
		text = strings.TrimSpace(text)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		text = string(b)
	default:
		return nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil && !isRangeError(err) {
		return nil
	}
	if math.IsNaN(f) {
		return nil
	}
	s.Value = saturate(f)
	s.Valid = true
	return nil
}

func isRangeError(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}

// saturate converts f to int64, truncating toward zero and saturating at the
// bounds of the int64 range.
func saturate(f float64) int64 {
	switch {
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}
