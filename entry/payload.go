package entry

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// ErrNotObject is returned when a payload body is valid JSON but not an object.
var ErrNotObject = errors.New("payload is not a JSON object")

// Field is one top-level member of a Payload.
type Field struct {
	Key   string
	Value Value
}

// Payload is a JSON object whose members are kept in document order.
// A repeated key keeps its first position and its last value.
type Payload struct {
	fields []Field
	index  map[string]int
}

// ParsePayload decodes a JSON object.
func ParsePayload(data []byte) (Payload, error) {
	p := Payload{index: map[string]int{}}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return Payload{}, errors.Wrap(err, "parsing payload json")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return Payload{}, ErrNotObject
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Payload{}, errors.Wrap(err, "parsing payload json")
		}
		key, _ := tok.(string)

		var v Value
		if err := dec.Decode(&v); err != nil {
			return Payload{}, errors.Wrapf(err, "parsing payload json at %q", key)
		}
		p.Set(key, v)
	}

	if _, err := dec.Token(); err != nil {
		return Payload{}, errors.Wrap(err, "parsing payload json")
	}
	if _, err := dec.Token(); err != io.EOF {
		return Payload{}, errors.New("parsing payload json: unexpected data after object")
	}

	return p, nil
}

// Set adds or replaces a member.
func (p *Payload) Set(key string, v Value) {
	if p.index == nil {
		p.index = map[string]int{}
	}
	if i, ok := p.index[key]; ok {
		p.fields[i].Value = v
		return
	}
	p.index[key] = len(p.fields)
	p.fields = append(p.fields, Field{Key: key, Value: v})
}

func (p Payload) Get(key string) (Value, bool) {
	i, ok := p.index[key]
	if !ok {
		return Value{}, false
	}
	return p.fields[i].Value, true
}

func (p Payload) Has(key string) bool {
	_, ok := p.index[key]
	return ok
}

func (p Payload) Len() int {
	return len(p.fields)
}

func (p Payload) Fields() []Field {
	return p.fields
}

func (p Payload) Keys() []string {
	keys := make([]string, len(p.fields))
	for i, f := range p.fields {
		keys[i] = f.Key
	}
	return keys
}

func (p Payload) MarshalJSON() ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	for i, f := range p.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		val, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
