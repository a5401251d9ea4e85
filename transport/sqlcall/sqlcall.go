// Package sqlcall adapts PostgreSQL queries issued through pgx to the
// dispatcher's Invoker contract.
package sqlcall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Swind/go-call-runner/core"
)

// ErrAborted is returned by Invoke when the call was aborted before it started.
var ErrAborted = errors.New("sqlcall: call aborted")

// Querier runs row-returning statements. *pgxpool.Pool, *pgx.Conn and pgx.Tx
// satisfy it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Execer runs statements that return no rows.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Result holds the rows of a query. Bytes encodes the rows as a JSON array of
// objects keyed by column name, which lets JSONConverter decode them into
// structs or slices.
type Result struct {
	Columns []string
	Rows    []map[string]any
}

// Encode returns the JSON encoding of Rows. Converters use it, so a row value
// that cannot be encoded fails the conversion with its cause.
func (r *Result) Encode() ([]byte, error) {
	rows := r.Rows
	if rows == nil {
		rows = []map[string]any{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlcall: encode rows: %w", err)
	}
	return data, nil
}

// Bytes is Encode without the error; it returns nil when encoding fails.
func (r *Result) Bytes() []byte {
	data, _ := r.Encode()
	return data
}

// ExecResult reports the outcome of an Exec statement.
type ExecResult struct {
	Command      string `json:"command"`
	RowsAffected int64  `json:"rowsAffected"`
}

// Encode returns the JSON encoding of the result.
func (r *ExecResult) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("sqlcall: encode exec result: %w", err)
	}
	return data, nil
}

// Bytes is Encode without the error.
func (r *ExecResult) Bytes() []byte {
	data, _ := r.Encode()
	return data
}

// abortable carries the per-call cancel func shared by Query and Exec invokers.
type abortable struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	aborted bool
}

func (a *abortable) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.aborted {
		return nil, nil, ErrAborted
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	return ctx, cancel, nil
}

// Abort cancels the running statement; pgx sends a cancel request to the server.
func (a *abortable) Abort() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.aborted = true
	if a.cancel != nil {
		a.cancel()
	}
}

// QueryInvoker runs one query. Build a new one for each request.
type QueryInvoker struct {
	abortable
	q    Querier
	sql  string
	args []any
}

var (
	_ core.Invoker = (*QueryInvoker)(nil)
	_ core.Aborter = (*QueryInvoker)(nil)
	_ core.Payload        = (*Result)(nil)
	_ core.EncodedPayload = (*Result)(nil)
	_ core.EncodedPayload = (*ExecResult)(nil)
)

// Query returns an invoker for a row-returning statement.
func Query(q Querier, sql string, args ...any) *QueryInvoker {
	return &QueryInvoker{q: q, sql: sql, args: args}
}

// Invoke runs the query and collects every row.
func (i *QueryInvoker) Invoke(ctx context.Context) (any, error) {
	ctx, cancel, err := i.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	rows, err := i.q.Query(ctx, i.sql, i.args...)
	if err != nil {
		return nil, wrapError("query", err)
	}

	columns := make([]string, 0, len(rows.FieldDescriptions()))
	for _, fd := range rows.FieldDescriptions() {
		columns = append(columns, fd.Name)
	}
	collected, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, wrapError("collect rows", err)
	}
	return &Result{Columns: columns, Rows: collected}, nil
}

// ExecInvoker runs one statement that returns no rows.
type ExecInvoker struct {
	abortable
	e    Execer
	sql  string
	args []any
}

var (
	_ core.Invoker = (*ExecInvoker)(nil)
	_ core.Aborter = (*ExecInvoker)(nil)
)

// Exec returns an invoker for a statement that returns no rows.
func Exec(e Execer, sql string, args ...any) *ExecInvoker {
	return &ExecInvoker{e: e, sql: sql, args: args}
}

// Invoke runs the statement.
func (i *ExecInvoker) Invoke(ctx context.Context) (any, error) {
	ctx, cancel, err := i.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	tag, err := i.e.Exec(ctx, i.sql, i.args...)
	if err != nil {
		return nil, wrapError("exec", err)
	}
	return &ExecResult{Command: tag.String(), RowsAffected: tag.RowsAffected()}, nil
}

func wrapError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("sqlcall: %s failed (SQLSTATE %s): %w", op, pgErr.Code, err)
	}
	return fmt.Errorf("sqlcall: %s failed: %w", op, err)
}
