package adapters

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/otcheredev/ris-db-connector/internal/models"
	"github.com/otcheredev/ris-db-connector/internal/query"
)

// PgxAdapter runs archive queries on a native pgx pool
type PgxAdapter struct {
	BaseAdapter
	pool *pgxpool.Pool
}

// NewPgxAdapter creates the pool and verifies the archive is reachable
func NewPgxAdapter(ctx context.Context, settings Settings) (*PgxAdapter, error) {
	cfg, err := pgxpool.ParseConfig(settings.URI)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = int32(settings.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping archive %s: %w", settings.Name, err)
	}

	return &PgxAdapter{
		BaseAdapter: BaseAdapter{settings: settings},
		pool:        pool,
	}, nil
}

// Placeholder implements query.Executor
func (a *PgxAdapter) Placeholder() query.Placeholder {
	return query.PlaceholderDollar
}

// Query implements query.Executor
func (a *PgxAdapter) Query(ctx context.Context, stmt query.Statement) (query.Cursor, error) {
	rows, err := a.pool.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}

	fieldDescs := rows.FieldDescriptions()
	cols := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		cols[i] = fd.Name
	}
	return &pgxCursor{rows: rows, columns: cols}, nil
}

// TestConnection pings the archive database
func (a *PgxAdapter) TestConnection(ctx context.Context) (*models.ConnectionStatus, error) {
	start := time.Now()
	status := &models.ConnectionStatus{LastChecked: start}

	err := a.pool.Ping(ctx)
	status.ResponseTime = time.Since(start).Milliseconds()
	if err != nil {
		status.ErrorMessage = err.Error()
		return status, err
	}

	status.IsConnected = true
	return status, nil
}

// Close closes the pool
func (a *PgxAdapter) Close() error {
	a.pool.Close()
	return nil
}

// pgxCursor adapts pgx.Rows to query.Cursor
type pgxCursor struct {
	rows    pgx.Rows
	columns []string
}

func (c *pgxCursor) Next() bool {
	return c.rows.Next()
}

func (c *pgxCursor) Row() (query.Row, error) {
	values, err := c.rows.Values()
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		values[i] = normalizePgxValue(v)
	}
	return query.NewRow(c.columns, values), nil
}

func (c *pgxCursor) Err() error {
	return c.rows.Err()
}

func (c *pgxCursor) Close() error {
	c.rows.Close()
	return nil
}

// normalizePgxValue maps pgx specific types onto the plain values the decoder reads
func normalizePgxValue(v any) any {
	switch t := v.(type) {
	case pgtype.Time:
		if !t.Valid {
			return nil
		}
		return time.Time{}.Add(time.Duration(t.Microseconds) * time.Microsecond).Format("15:04:05")
	case [16]byte:
		return uuid.UUID(t).String()
	case pgtype.Numeric:
		if !t.Valid {
			return nil
		}
		f, err := t.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	default:
		return v
	}
}
