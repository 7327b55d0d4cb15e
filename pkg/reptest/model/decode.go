package model

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// UnmarshalJSON decodes any JSON object into a TestInfo. Only malformed JSON
// and values that are not objects are errors: a field holding an unexpected
// type is coerced when possible and dropped otherwise, so that a well-formed
// record is never rejected.
//
//   - string fields accept strings, and take the literal text of numbers and
//     booleans;
//   - server-stamped times and lengths accept numbers and numeric strings,
//     truncated to an integer;
//   - client-stamped values are kept verbatim;
//   - error accepts a Fault object or a plain message.
func (info *TestInfo) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	*info = TestInfo{}
	for name, raw := range fields {
		switch name {
		case "testID":
			info.TestID = RawText(raw)
		case "externalIP":
			info.ExternalIP = RawText(raw)
		case "oldExternalIP":
			info.OldExternalIP = RawText(raw)
		case "pathname":
			info.Pathname = RawText(raw)

		case "testBegin":
			info.TestBegin, _ = RawInt(raw)
		case "serverTimestamp":
			info.ServerTimestamp, _ = RawInt(raw)
		case "serverRequestBegin":
			info.ServerRequestBegin, _ = RawInt(raw)
		case "serverRequestEnd":
			info.ServerRequestEnd, _ = RawInt(raw)
		case "serverResponseBegin":
			info.ServerResponseBegin, _ = RawInt(raw)
		case "serverResponseEnd":
			info.ServerResponseEnd, _ = RawInt(raw)

		case "serverReceiveLength":
			info.ServerReceiveLength = rawLength(raw)
		case "uploadReceiveLength":
			info.UploadReceiveLength = rawLength(raw)

		case "testNumber":
			info.TestNumber = verbatim(raw)
		case "clientTimestamp":
			info.ClientTimestamp = verbatim(raw)
		case "clientRequestBegin":
			info.ClientRequestBegin = verbatim(raw)
		case "clientRequestEnd":
			info.ClientRequestEnd = verbatim(raw)
		case "clientResponseBegin":
			info.ClientResponseBegin = verbatim(raw)
		case "clientResponseEnd":
			info.ClientResponseEnd = verbatim(raw)
		case "clientReceiveLength":
			info.ClientReceiveLength = verbatim(raw)
		case "downloadReceiveLength":
			info.DownloadReceiveLength = verbatim(raw)

		case "interval":
			info.Interval = rawSetting(raw)
		case "downloadLength":
			info.DownloadLength = rawSetting(raw)
		case "uploadLength":
			info.UploadLength = rawSetting(raw)

		case "error":
			info.Error = rawFault(raw)
		}
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// RawText returns the text of a JSON string, or the literal of a number or
// boolean. Null, objects and arrays yield an empty string.
func RawText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case '{', '[', 'n':
		return ""
	}
	return string(raw)
}

// RawInt returns the integer held by a JSON number or numeric string, with
// the same rules as Setting. ok is false for any other value.
func RawInt(raw json.RawMessage) (v int64, ok bool) {
	var s Setting
	if err := s.UnmarshalJSON(raw); err != nil || !s.Valid {
		return 0, false
	}
	return s.Value, true
}

func rawLength(raw json.RawMessage) *int64 {
	v, ok := RawInt(raw)
	if !ok {
		return nil
	}
	return Int64(v)
}

func rawSetting(raw json.RawMessage) *Setting {
	if isNull(raw) {
		return nil
	}
	s := &Setting{}
	// Setting.UnmarshalJSON never fails.
	s.UnmarshalJSON(raw)
	return s
}

func rawFault(raw json.RawMessage) *Fault {
	if isNull(raw) {
		return nil
	}
	if raw[0] == '"' {
		return &Fault{Err: RawText(raw)}
	}
	f := &Fault{}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil
	}
	return f
}

// verbatim returns a copy of raw, or nil for null.
func verbatim(raw json.RawMessage) json.RawMessage {
	if isNull(raw) {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

// Number returns v as a JSON number for a client-stamped field.
func Number(v int64) json.RawMessage {
	return strconv.AppendInt(nil, v, 10)
}
