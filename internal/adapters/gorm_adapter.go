package adapters

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/otcheredev/ris-db-connector/internal/models"
	"github.com/otcheredev/ris-db-connector/internal/query"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormAdapter runs archive queries through gorm's raw SQL API
type GormAdapter struct {
	BaseAdapter
	db *gorm.DB
}

// NewGormAdapter opens a connection pool for the archive database
func NewGormAdapter(settings Settings) (*GormAdapter, error) {
	db, err := gorm.Open(postgres.Open(settings.URI), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to archive %s: %w", settings.Name, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(settings.MaxConns)
	sqlDB.SetMaxIdleConns(max(1, settings.MaxConns/5))
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return NewGormAdapterFromDB(settings, db), nil
}

// NewGormAdapterFromDB wraps an existing gorm handle
func NewGormAdapterFromDB(settings Settings, db *gorm.DB) *GormAdapter {
	return &GormAdapter{
		BaseAdapter: BaseAdapter{settings: settings},
		db:          db,
	}
}

// Placeholder implements query.Executor; gorm rewrites ? for the dialect
func (a *GormAdapter) Placeholder() query.Placeholder {
	return query.PlaceholderQuestion
}

// Query implements query.Executor
func (a *GormAdapter) Query(ctx context.Context, stmt query.Statement) (query.Cursor, error) {
	rows, err := a.db.WithContext(ctx).Raw(stmt.SQL, stmt.Args...).Rows()
	if err != nil {
		return nil, err
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	return &sqlCursor{rows: rows, columns: cols}, nil
}

// TestConnection pings the archive database
func (a *GormAdapter) TestConnection(ctx context.Context) (*models.ConnectionStatus, error) {
	start := time.Now()
	status := &models.ConnectionStatus{LastChecked: start}

	sqlDB, err := a.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	status.ResponseTime = time.Since(start).Milliseconds()
	if err != nil {
		status.ErrorMessage = err.Error()
		return status, err
	}

	status.IsConnected = true
	return status, nil
}

// Close closes the connection pool
func (a *GormAdapter) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// sqlCursor adapts *sql.Rows to query.Cursor
type sqlCursor struct {
	rows    *sql.Rows
	columns []string
}

func (c *sqlCursor) Next() bool {
	return c.rows.Next()
}

func (c *sqlCursor) Row() (query.Row, error) {
	values := make([]any, len(c.columns))
	ptrs := make([]any, len(c.columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return query.NewRow(c.columns, values), nil
}

func (c *sqlCursor) Err() error {
	return c.rows.Err()
}

func (c *sqlCursor) Close() error {
	return c.rows.Close()
}
