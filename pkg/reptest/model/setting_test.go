package model

import (
	"encoding/json"
	"math"
	"testing"
)

func TestSetting_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Setting
	}{
		{name: "integer", input: `123`, want: Setting{Value: 123, Valid: true}},
		{name: "negative", input: `-5`, want: Setting{Value: -5, Valid: true}},
		{name: "fraction truncates", input: `12.9`, want: Setting{Value: 12, Valid: true}},
		{name: "exponent", input: `1e6`, want: Setting{Value: 1000000, Valid: true}},
		{name: "numeric string", input: `" 2048 "`, want: Setting{Value: 2048, Valid: true}},
		{name: "huge saturates", input: `1e300`, want: Setting{Value: math.MaxInt64, Valid: true}},
		{name: "huge negative saturates", input: `-1e300`, want: Setting{Value: math.MinInt64, Valid: true}},
		{name: "text", input: `"lots"`, want: Setting{}},
		{name: "nan string", input: `"NaN"`, want: Setting{}},
		{name: "bool", input: `true`, want: Setting{}},
		{name: "object", input: `{"a":1}`, want: Setting{}},
		{name: "array", input: `[1]`, want: Setting{}},
		{name: "null", input: `null`, want: Setting{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Setting
			if err := got.UnmarshalJSON([]byte(tt.input)); err != nil {
				t.Fatalf("UnmarshalJSON() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("UnmarshalJSON(%s) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSetting_InsideTestInfo(t *testing.T) {
	var info TestInfo
	err := json.Unmarshal([]byte(`{"downloadLength":"abc","uploadLength":7,"interval":null}`), &info)
	if err != nil {
		t.Fatalf("invalid settings must not fail decoding: %v", err)
	}
	if info.DownloadLength == nil || info.DownloadLength.Valid {
		t.Errorf("downloadLength should be present and invalid: %+v", info.DownloadLength)
	}
	if info.UploadLength.Get(0) != 7 {
		t.Errorf("uploadLength = %d, want 7", info.UploadLength.Get(0))
	}
	if info.Interval != nil {
		t.Errorf("null interval should decode as absent")
	}
	b, err := json.Marshal(&info)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(b) != `{"downloadLength":null,"uploadLength":7}` {
		t.Errorf("unexpected encoding: %s", b)
	}
}

func TestSetting_Get(t *testing.T) {
	var s *Setting
	if s.Get(42) != 42 {
		t.Errorf("nil Setting should return the default")
	}
	if (&Setting{Value: 1}).Get(42) != 42 {
		t.Errorf("invalid Setting should return the default")
	}
	if NewSetting(1).Get(42) != 1 {
		t.Errorf("valid Setting should return its value")
	}
}
