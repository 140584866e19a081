package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"pos-service/internal/store"
)

type pendingWrite struct {
	collection string
	id         string
	fields     map[string]interface{}
	insert     bool
}

type pgTx struct {
	tx     *sqlx.Tx
	writes []pendingWrite
}

// Get reads and locks a document (FOR UPDATE) for the rest of the transaction
func (t *pgTx) Get(ctx context.Context, collection, id string) (store.Document, error) {
	if len(t.writes) > 0 {
		return store.Document{}, store.ErrReadAfterWrite
	}

	var row documentRow
	err := t.tx.GetContext(ctx, &row,
		"SELECT id, fields FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE", collection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Document{}, store.ErrNotFound
	}
	if err != nil {
		return store.Document{}, fmt.Errorf("failed to lock %s/%s: %w", collection, id, err)
	}
	return row.document()
}

func (t *pgTx) Update(collection, id string, fields map[string]interface{}) {
	t.writes = append(t.writes, pendingWrite{collection: collection, id: id, fields: fields})
}

func (t *pgTx) Insert(collection string, fields map[string]interface{}) string {
	id := newID()
	t.writes = append(t.writes, pendingWrite{collection: collection, id: id, fields: fields, insert: true})
	return id
}

// RunTransaction runs fn in a SERIALIZABLE transaction, retrying the whole
// function on serialization failures and deadlocks.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w (%d): %v", store.ErrTxConflict, s.maxAttempts, lastErr)
}

func (s *Store) runOnce(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ptx := &pgTx{tx: tx}
	if err := fn(ctx, ptx); err != nil {
		return err
	}

	if len(ptx.writes) > 0 {
		now, err := serverNow(ctx, tx)
		if err != nil {
			return err
		}
		for _, w := range ptx.writes {
			if w.insert {
				err = insertDocument(ctx, tx, w.collection, w.id, w.fields, now)
			} else {
				err = updateDocument(ctx, tx, w.collection, w.id, w.fields, now)
			}
			if err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}
