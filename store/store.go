// Package store persists log entries.
package store

import (
	"context"
	"fmt"

	"github.com/glassechidna/lambdalogs/entry"
)

type Writer interface {
	InsertEntry(ctx context.Context, e *entry.LogEntry) (int64, error)
}

// WriteCloser is a Writer that owns a connection.
type WriteCloser interface {
	Writer
	Close()
}

// Opener acquires a connection for the duration of one invocation.
type Opener func(ctx context.Context) (WriteCloser, error)

// Error wraps a failure talking to the database.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Cause() error { return e.Err }
