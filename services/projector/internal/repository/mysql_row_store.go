package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakashimaa/fulfillment/services/projector/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const schema = `
CREATE TABLE IF NOT EXISTS read_model_rows (
	view_name  VARCHAR(32)  NOT NULL,
	row_key    VARCHAR(191) NOT NULL,
	owner      VARCHAR(191) NOT NULL DEFAULT '',
	version    BIGINT       NOT NULL,
	data       JSON         NOT NULL,
	updated_at DATETIME(6)  NOT NULL,
	PRIMARY KEY (view_name, row_key),
	KEY idx_read_model_rows_owner (view_name, owner)
)`

type MySQLRowStore struct {
	db     *sql.DB
	tracer trace.Tracer
}

func NewMySQLRowStore(db *sql.DB) *MySQLRowStore {
	return &MySQLRowStore{
		db:     db,
		tracer: otel.Tracer("repository/mysql_row_store"),
	}
}

func (s *MySQLRowStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create read_model_rows: %w", err)
	}

	return nil
}

func (s *MySQLRowStore) Get(ctx context.Context, view, key string) (*domain.Row, error) {
	ctx, span := s.tracer.Start(ctx, "MySQLRowStore.Get")
	defer span.End()

	span.SetAttributes(attribute.String("view", view), attribute.String("key", key))

	var row domain.Row
	err := s.db.QueryRowContext(ctx, `
		SELECT view_name, row_key, owner, version, data, updated_at
		FROM read_model_rows WHERE view_name = ? AND row_key = ?`, view, key,
	).Scan(&row.View, &row.Key, &row.Owner, &row.Version, &row.Data, &row.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s", domain.ErrRowNotFound, view, key)
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query read model row: %w", err)
	}

	return &row, nil
}

func (s *MySQLRowStore) Upsert(ctx context.Context, row domain.Row) error {
	ctx, span := s.tracer.Start(ctx, "MySQLRowStore.Upsert")
	defer span.End()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO read_model_rows (view_name, row_key, owner, version, data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			owner = VALUES(owner),
			version = VALUES(version),
			data = VALUES(data),
			updated_at = VALUES(updated_at)`,
		row.View, row.Key, row.Owner, row.Version, []byte(row.Data), row.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("upsert read model row: %w", err)
	}

	return nil
}

func (s *MySQLRowStore) List(ctx context.Context, view string) ([]domain.Row, error) {
	return s.query(ctx, `
		SELECT view_name, row_key, owner, version, data, updated_at
		FROM read_model_rows WHERE view_name = ? ORDER BY row_key`, view)
}

func (s *MySQLRowStore) ListByOwner(ctx context.Context, view, owner string) ([]domain.Row, error) {
	return s.query(ctx, `
		SELECT view_name, row_key, owner, version, data, updated_at
		FROM read_model_rows WHERE view_name = ? AND owner = ? ORDER BY row_key`, view, owner)
}

func (s *MySQLRowStore) query(ctx context.Context, query string, args ...any) ([]domain.Row, error) {
	ctx, span := s.tracer.Start(ctx, "MySQLRowStore.List")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list read model rows: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Row, 0)
	for rows.Next() {
		var row domain.Row
		if err := rows.Scan(&row.View, &row.Key, &row.Owner, &row.Version, &row.Data, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan read model row: %w", err)
		}
		out = append(out, row)
	}

	return out, rows.Err()
}
