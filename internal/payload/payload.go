// Package payload decodes device JSON reports leniently: fields that are absent or of
// the wrong type fall back to defaults instead of failing the report.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

var ErrNotObject = errors.New("payload is not a JSON object")

// Object is a decoded top-level JSON object.
type Object map[string]json.RawMessage

// Parse decodes body as a JSON object. Arrays, scalars and null are rejected.
func Parse(body []byte) (Object, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		if !json.Valid(trimmed) {
			return nil, errors.New("malformed JSON")
		}
		return nil, ErrNotObject
	}
	var obj Object
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// Object returns the nested object under key, or an empty one when absent or not an object.
func (o Object) Object(key string) Object {
	raw, ok := o[key]
	if !ok {
		return Object{}
	}
	var nested Object
	if err := json.Unmarshal(raw, &nested); err != nil || nested == nil {
		return Object{}
	}
	return nested
}

// Number returns the numeric value under key. JSON numbers and numeric strings count;
// anything else (including NaN and infinities) is reported as absent.
func (o Object) Number(key string) (float64, bool) {
	raw, ok := o[key]
	if !ok {
		return 0, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Int returns Number truncated toward zero, or def when absent, zero or outside the
// int64 range.
func (o Object) Int(key string, def int64) int64 {
	f, ok := o.Number(key)
	if !ok || f >= math.MaxInt64 || f < math.MinInt64 {
		return def
	}
	n := int64(f)
	if n == 0 {
		return def
	}
	return n
}

// String returns the string under key; ok is false for null and any other JSON type.
func (o Object) String(key string) (string, bool) {
	raw, ok := o[key]
	if !ok {
		return "", false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Text returns a string value as is, or the literal of a non-zero number. Anything else
// (absent, null, "", 0, booleans, objects) reads as "".
func (o Object) Text(key string) string {
	raw, ok := o[key]
	if !ok {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == 0 || math.IsNaN(t) || math.IsInf(t, 0) {
			return ""
		}
		return strings.TrimSpace(string(raw))
	}
	return ""
}
