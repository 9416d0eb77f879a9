package store

import (
	"context"
	"strconv"
	"time"

	"github.com/glassechidna/lambdalogs/entry"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const insertEntrySQL = `
INSERT INTO logs
  (session, username, application, activity, event, time, parameters, extras, event_value, run_remote_endpoint)
VALUES ($1, $2, $3, $4, $5, to_timestamp($6), $7, $8, $9, $10) RETURNING id`

const (
	DefaultStatementTimeout = 10 * time.Second
	DefaultConnectTimeout   = 5 * time.Second
)

type Config struct {
	DSN              string
	StatementTimeout time.Duration
	ConnectTimeout   time.Duration
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres writes entries over a pool capped at a single connection, so
// concurrent inserts share one session and queue for it.
type Postgres struct {
	q     querier
	close func()
}

// Open connects and pings the database.
func Open(ctx context.Context, cfg Config) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, &Error{Op: "parsing database url", Err: errors.WithStack(err)}
	}

	statementTimeout := cfg.StatementTimeout
	if statementTimeout <= 0 {
		statementTimeout = DefaultStatementTimeout
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}

	poolCfg.MaxConns = 1
	poolCfg.MinConns = 0
	poolCfg.ConnConfig.ConnectTimeout = connectTimeout
	poolCfg.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(statementTimeout.Milliseconds(), 10)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, &Error{Op: "connecting", Err: errors.WithStack(err)}
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &Error{Op: "connecting", Err: errors.WithStack(err)}
	}

	return &Postgres{q: pool, close: pool.Close}, nil
}

// NewOpener returns an Opener that connects with cfg on each call.
func NewOpener(cfg Config) Opener {
	return func(ctx context.Context) (WriteCloser, error) {
		p, err := Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

func (p *Postgres) InsertEntry(ctx context.Context, e *entry.LogEntry) (int64, error) {
	var id int64
	err := p.q.QueryRow(ctx, insertEntrySQL,
		e.Session,
		e.Username,
		e.Application,
		e.Activity,
		e.Event,
		float64(e.Time),
		e.Parameters,
		e.Extras,
		e.EventValue,
		e.RunRemoteEndpoint,
	).Scan(&id)
	if err != nil {
		return 0, &Error{Op: "inserting log entry", Err: errors.WithStack(err)}
	}
	return id, nil
}

func (p *Postgres) Close() {
	if p.close != nil {
		p.close()
	}
}
