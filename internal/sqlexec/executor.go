package sqlexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/eventdesk/eventdesk/internal/observability"
)

// ErrRejected marks a statement the read-only gate refused to run. It is
// always distinct from ErrExecutionFailed so callers can tell "the model
// proposed something unsafe" from "a valid-looking query did not run".
var ErrRejected = errors.New("query rejected by read-only policy")

// ErrExecutionFailed is the only execution error callers see; driver detail
// goes to the logger.
var ErrExecutionFailed = errors.New("query execution failed")

// Rows is a column-ordered result set. Columns preserves the driver's column
// order; each row maps column name to a scanned value, with nil standing in
// for SQL NULL.
type Rows struct {
	Columns []string
	Rows    []map[string]any
}

func (r Rows) Count() int {
	return len(r.Rows)
}

type Executor struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutor(db *sql.DB, logger *slog.Logger) *Executor {
	return &Executor{db: db, logger: logger}
}

// Execute validates the candidate statement against the read-only policy and
// runs it. Validation happens before any database call.
func (e *Executor) Execute(ctx context.Context, statement string) (Rows, error) {
	if !IsReadStatement(statement) {
		e.warn(ctx, "non-read statement blocked", statement)
		observability.ObserveRejectedQuery()
		return Rows{}, fmt.Errorf("%w: statement must begin with SELECT", ErrRejected)
	}
	if keyword := ForbiddenKeyword(statement); keyword != "" {
		e.warn(ctx, "forbidden keyword blocked: "+keyword, statement)
		observability.ObserveRejectedQuery()
		return Rows{}, fmt.Errorf("%w: forbidden keyword %s", ErrRejected, keyword)
	}

	rows, err := e.db.QueryContext(ctx, statement)
	if err != nil {
		e.fail(ctx, "query failed", statement, err)
		return Rows{}, ErrExecutionFailed
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		e.fail(ctx, "read columns failed", statement, err)
		return Rows{}, ErrExecutionFailed
	}

	result := Rows{Columns: columns, Rows: make([]map[string]any, 0)}
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			e.fail(ctx, "scan row failed", statement, err)
			return Rows{}, ErrExecutionFailed
		}
		row := make(map[string]any, len(columns))
		for i, column := range columns {
			row[column] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		e.fail(ctx, "iterate rows failed", statement, err)
		return Rows{}, ErrExecutionFailed
	}

	return result, nil
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	default:
		return typed
	}
}

func (e *Executor) warn(ctx context.Context, message, statement string) {
	if e.logger == nil {
		return
	}
	e.logger.WarnContext(ctx, message,
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("statement", statement),
	)
}

func (e *Executor) fail(ctx context.Context, message, statement string, err error) {
	if e.logger == nil {
		return
	}
	e.logger.ErrorContext(ctx, message,
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("statement", statement),
		slog.Any("error", err),
	)
}
