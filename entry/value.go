package entry

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// Kind identifies the JSON type held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "null"
	}
}

// Value is a single JSON value kept in its original encoding, so numbers
// retain their literal text and nested documents can be re-emitted as is.
type Value struct {
	raw json.RawMessage
}

// RawValue wraps already-valid JSON text.
func RawValue(raw []byte) Value {
	return Value{raw: append(json.RawMessage(nil), raw...)}
}

func (v Value) Kind() Kind {
	b := bytes.TrimLeft(v.raw, " \t\r\n")
	if len(b) == 0 {
		return KindNull
	}
	switch b[0] {
	case '"':
		return KindString
	case '{':
		return KindObject
	case '[':
		return KindArray
	case 't', 'f':
		return KindBool
	case 'n':
		return KindNull
	default:
		return KindNumber
	}
}

// Text coerces v to the string stored in a text or hstore column.
// Strings are unquoted, numbers and booleans keep their JSON literal, objects
// and arrays become compact JSON. ok is false for null.
func (v Value) Text() (s string, ok bool, err error) {
	switch v.Kind() {
	case KindNull:
		return "", false, nil
	case KindString:
		if err := json.Unmarshal(v.raw, &s); err != nil {
			return "", false, errors.WithStack(err)
		}
		return s, true, nil
	case KindObject, KindArray:
		buf := &bytes.Buffer{}
		if err := json.Compact(buf, v.raw); err != nil {
			return "", false, errors.WithStack(err)
		}
		return buf.String(), true, nil
	default:
		return string(bytes.TrimSpace(v.raw)), true, nil
	}
}

// Members decodes an object value into an ordered Payload.
func (v Value) Members() (Payload, error) {
	if v.Kind() != KindObject {
		return Payload{}, errors.Errorf("expected object, got %s", v.Kind())
	}
	return ParsePayload(v.raw)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if len(v.raw) == 0 {
		return []byte("null"), nil
	}
	return v.raw, nil
}

func (v *Value) UnmarshalJSON(b []byte) error {
	v.raw = append(v.raw[:0], b...)
	return nil
}
