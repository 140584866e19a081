package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"pos-service/internal/store"
)

//go:embed schema.sql
var schema string

// Store keeps every collection in a single jsonb documents table
type Store struct {
	db          *sqlx.DB
	maxAttempts int
}

// NewStore creates a new database store
func NewStore(databaseURL string, maxAttempts int) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if maxAttempts < 1 {
		maxAttempts = store.DefaultMaxAttempts
	}
	return &Store{db: db, maxAttempts: maxAttempts}, nil
}

// Migrate creates the documents table and its indexes
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

type documentRow struct {
	ID     string `db:"id"`
	Fields []byte `db:"fields"`
}

func (r documentRow) document() (store.Document, error) {
	fields, err := decodeFields(r.Fields)
	if err != nil {
		return store.Document{}, fmt.Errorf("failed to decode document %s: %w", r.ID, err)
	}
	return store.Document{ID: r.ID, Fields: fields}, nil
}

func (s *Store) List(ctx context.Context, collection string, opts ...store.QueryOption) ([]store.Document, error) {
	q := store.BuildQuery(opts...)
	if err := q.Validate(); err != nil {
		return nil, err
	}

	query, args := buildListQuery(collection, q)

	var rows []documentRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}

	docs := make([]store.Document, 0, len(rows))
	for _, row := range rows {
		doc, err := row.document()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func buildListQuery(collection string, q store.Query) (string, []interface{}) {
	query := "SELECT id, fields FROM documents WHERE collection = $1"
	args := []interface{}{collection}

	for _, f := range q.Filters {
		value := encodeValue(f.Value)
		args = append(args, f.Field, value)
		switch value.(type) {
		case int, int32, int64, float32, float64:
			query += fmt.Sprintf(" AND (fields->>$%d)::numeric >= $%d", len(args)-1, len(args))
		default:
			query += fmt.Sprintf(" AND fields->>$%d >= $%d", len(args)-1, len(args))
		}
	}

	if q.OrderBy != "" {
		args = append(args, q.OrderBy)
		direction := "ASC"
		if q.Descending {
			direction = "DESC"
		}
		query += fmt.Sprintf(` ORDER BY (fields->>$%d) COLLATE "C" %s, id`, len(args), direction)
	} else {
		query += " ORDER BY id"
	}
	return query, args
}

func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	var row documentRow
	err := s.db.GetContext(ctx, &row,
		"SELECT id, fields FROM documents WHERE collection = $1 AND id = $2", collection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Document{}, store.ErrNotFound
	}
	if err != nil {
		return store.Document{}, err
	}
	return row.document()
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	now, err := serverNow(ctx, s.db)
	if err != nil {
		return err
	}
	return updateDocument(ctx, s.db, collection, id, fields, now)
}

func (s *Store) Insert(ctx context.Context, collection string, fields map[string]interface{}) (string, error) {
	now, err := serverNow(ctx, s.db)
	if err != nil {
		return "", err
	}
	id := newID()
	if err := insertDocument(ctx, s.db, collection, id, fields, now); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = $1 AND id = $2", collection, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func serverNow(ctx context.Context, q sqlx.QueryerContext) (time.Time, error) {
	var now time.Time
	if err := sqlx.GetContext(ctx, q, &now, "SELECT now()"); err != nil {
		return time.Time{}, fmt.Errorf("failed to read server time: %w", err)
	}
	return now.UTC(), nil
}

func updateDocument(ctx context.Context, e sqlx.ExecerContext, collection, id string, fields map[string]interface{}, now time.Time) error {
	payload, err := encodeFields(fields, now)
	if err != nil {
		return err
	}
	res, err := e.ExecContext(ctx,
		"UPDATE documents SET fields = fields || $3::jsonb, updated_at = NOW() WHERE collection = $1 AND id = $2",
		collection, id, payload)
	if err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func insertDocument(ctx context.Context, e sqlx.ExecerContext, collection, id string, fields map[string]interface{}, now time.Time) error {
	payload, err := encodeFields(fields, now)
	if err != nil {
		return err
	}
	_, err = e.ExecContext(ctx,
		"INSERT INTO documents (collection, id, fields) VALUES ($1, $2, $3::jsonb)",
		collection, id, payload)
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", collection, err)
	}
	return nil
}

// isRetryable reports serialization failures and deadlocks
func isRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}
