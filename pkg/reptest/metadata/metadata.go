// Package metadata decodes, encodes and normalizes TestInfo records.
package metadata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/m-lab/reptest/pkg/reptest/model"
	"github.com/m-lab/reptest/pkg/reptest/spec"
)

// ErrInvalidJSON is returned by Decode when the input is malformed or is not
// a JSON object.
var ErrInvalidJSON = errors.New("invalid JSON")

// Range is the default and the inclusive bounds of a configuration field.
type Range struct {
	Default int64
	Min     int64
	Max     int64
}

// clamp saturates v into [r.Min, r.Max].
func (r Range) clamp(v int64) int64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Bounds maps the JSON name of a configuration field to its Range.
type Bounds map[string]Range

// DefaultBounds returns the protocol's default bounds.
func DefaultBounds() Bounds {
	return Bounds{
		spec.IntervalField: {
			Default: spec.DefaultInterval,
			Min:     spec.MinInterval,
			Max:     spec.MaxInterval,
		},
		spec.DownloadLengthField: {
			Default: spec.DefaultDownloadLength,
			Min:     spec.MinDownloadLength,
			Max:     spec.MaxDownloadLength,
		},
		spec.UploadLengthField: {
			Default: spec.DefaultUploadLength,
			Min:     spec.MinUploadLength,
			Max:     spec.MaxUploadLength,
		},
	}
}

// Validate checks that every field is known and has Min <= Max.
func (b Bounds) Validate() error {
	for name, r := range b {
		if field(&model.TestInfo{}, name) == nil {
			return fmt.Errorf("unknown configuration field %q", name)
		}
		if r.Min > r.Max {
			return fmt.Errorf("invalid bounds for %s: min %d > max %d",
				name, r.Min, r.Max)
		}
	}
	return nil
}

// Decode parses a JSON object into a TestInfo. An empty body decodes as an
// empty record. Fields of unexpected types never fail decoding, see
// model.TestInfo.UnmarshalJSON. Malformed input returns an error wrapping
// ErrInvalidJSON.
func Decode(b []byte) (*model.TestInfo, error) {
	info := &model.TestInfo{}
	if len(bytes.TrimSpace(b)) == 0 {
		return info, nil
	}
	if err := json.Unmarshal(b, info); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return info, nil
}

// Encode serializes info. Unset fields are omitted.
func Encode(info *model.TestInfo) ([]byte, error) {
	return json.Marshal(info)
}

// Clamp normalizes every configuration field named in b. Absent or invalid
// values are replaced with the default, then the value is saturated into
// [Min, Max]. Clamp never rejects a record and is idempotent. It returns the
// names of the fields whose value it changed.
func Clamp(info *model.TestInfo, b Bounds) []string {
	var changed []string
	for name, r := range b {
		f := field(info, name)
		if f == nil {
			continue
		}
		v := r.clamp((*f).Get(r.Default))
		if *f == nil || !(*f).Valid || (*f).Value != v {
			changed = append(changed, name)
		}
		*f = model.NewSetting(v)
	}
	sort.Strings(changed)
	return changed
}

// field returns the address of the configuration field called name, or nil
// if there is no such field.
func field(info *model.TestInfo, name string) **model.Setting {
	switch name {
	case spec.IntervalField:
		return &info.Interval
	case spec.DownloadLengthField:
		return &info.DownloadLength
	case spec.UploadLengthField:
		return &info.UploadLength
	}
	return nil
}
