// Package hstore encodes flat string maps in the PostgreSQL hstore text format.
package hstore

import (
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pkg/errors"
)

// Map is a flat key/value map. A nil value is stored as NULL.
type Map map[string]*string

// Encode renders m as hstore text. Key order in the output is unspecified.
func Encode(m Map) (string, error) {
	if len(m) == 0 {
		return "", nil
	}

	v, err := pgtype.Hstore(m).Value()
	if err != nil {
		return "", errors.WithStack(err)
	}

	s, _ := v.(string)
	return s, nil
}

// Decode parses hstore text produced by Encode (or by PostgreSQL).
func Decode(s string) (Map, error) {
	m := Map{}
	if s == "" {
		return m, nil
	}

	var h pgtype.Hstore
	if err := h.Scan(s); err != nil {
		return nil, errors.Wrap(err, "parsing hstore")
	}

	for k, v := range h {
		m[k] = v
	}
	return m, nil
}

// Strings flattens m, dropping NULL values.
func (m Map) Strings() map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if v != nil {
			out[k] = *v
		}
	}
	return out
}
