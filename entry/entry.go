// Package entry turns free-form event payloads into rows for the logs table.
package entry

import (
	"github.com/glassechidna/lambdalogs/hstore"
	"github.com/pkg/errors"
)

// ParametersField names the payload member that feeds the parameters column.
const ParametersField = "parameters"

// FixedFields are the payload members copied into their own text columns.
var FixedFields = []string{
	"session",
	"username",
	"application",
	"activity",
	"event",
	"event_value",
	"run_remote_endpoint",
}

// ErrMalformedParameters is returned when the parameters member is present
// but is neither an object nor null.
var ErrMalformedParameters = errors.New("parameters must be a JSON object")

// LogEntry is one row of the logs table. Nil text fields are stored as NULL.
type LogEntry struct {
	Session           *string `json:"session"`
	Username          *string `json:"username"`
	Application       *string `json:"application"`
	Activity          *string `json:"activity"`
	Event             *string `json:"event"`
	EventValue        *string `json:"event_value"`
	RunRemoteEndpoint *string `json:"run_remote_endpoint"`

	// Time is seconds since the Unix epoch.
	Time int64 `json:"time"`

	// Parameters and Extras hold hstore text.
	Parameters string `json:"parameters"`
	Extras     string `json:"extras"`
}

func (e *LogEntry) column(name string) **string {
	switch name {
	case "session":
		return &e.Session
	case "username":
		return &e.Username
	case "application":
		return &e.Application
	case "activity":
		return &e.Activity
	case "event":
		return &e.Event
	case "event_value":
		return &e.EventValue
	case "run_remote_endpoint":
		return &e.RunRemoteEndpoint
	}
	return nil
}

// Canonicalize maps a payload onto a LogEntry stamped with seconds.
// Every payload member lands in exactly one place: a fixed column, the
// parameters column, or the extras column.
func Canonicalize(p Payload, seconds int64) (*LogEntry, error) {
	e := &LogEntry{Time: seconds}

	for _, name := range FixedFields {
		v, ok := p.Get(name)
		if !ok {
			continue
		}
		s, ok, err := v.Text()
		if err != nil {
			return nil, errors.Wrapf(err, "coercing %s", name)
		}
		if ok {
			*e.column(name) = &s
		}
	}

	params, err := parameters(p)
	if err != nil {
		return nil, err
	}
	e.Parameters, err = hstore.Encode(params)
	if err != nil {
		return nil, errors.Wrap(err, "encoding parameters")
	}

	extras := hstore.Map{}
	for _, f := range p.Fields() {
		if IsFixedField(f.Key) || f.Key == ParametersField {
			continue
		}
		if err := put(extras, f.Key, f.Value); err != nil {
			return nil, errors.Wrapf(err, "coercing extra %s", f.Key)
		}
	}
	e.Extras, err = hstore.Encode(extras)
	if err != nil {
		return nil, errors.Wrap(err, "encoding extras")
	}

	return e, nil
}

// IsFixedField reports whether name has its own column.
func IsFixedField(name string) bool {
	for _, f := range FixedFields {
		if f == name {
			return true
		}
	}
	return false
}

func parameters(p Payload) (hstore.Map, error) {
	m := hstore.Map{}

	v, ok := p.Get(ParametersField)
	if !ok || v.Kind() == KindNull {
		return m, nil
	}
	if v.Kind() != KindObject {
		return nil, errors.Wrapf(ErrMalformedParameters, "got %s", v.Kind())
	}

	members, err := v.Members()
	if err != nil {
		return nil, errors.Wrap(err, "parsing parameters")
	}
	for _, f := range members.Fields() {
		if err := put(m, f.Key, f.Value); err != nil {
			return nil, errors.Wrapf(err, "coercing parameter %s", f.Key)
		}
	}
	return m, nil
}

func put(m hstore.Map, key string, v Value) error {
	s, ok, err := v.Text()
	if err != nil {
		return err
	}
	if !ok {
		m[key] = nil
		return nil
	}
	m[key] = &s
	return nil
}
