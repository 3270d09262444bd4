package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/starblog/internal/apperror"
)

// ownedMutation describes one edit or delete of an owned resource.
//
// THE PROTOCOL (one transaction, strictly in this order):
//  1. BEGIN (immediate: takes the write lock)
//  2. SELECT the owner id by primary key      missing  -> NotFound
//  3. compare owner id to the caller          mismatch -> Forbidden
//  4. run the mutation scoped by primary key
//  5. zero rows affected                      -> NotFound
//  6. reload the joined view (updates only)
//  7. COMMIT
//
// Any error after BEGIN rolls back before it is returned, so a rejected or
// failed mutation never leaves a partial write behind.
type ownedMutation struct {
	resource   string // "post" or "comment", used in error messages
	action     string // "edit" or "delete"
	ownerQuery string // must select exactly the owner id for "id = ?"

	mutate func(ctx context.Context, tx *sql.Tx) (sql.Result, error)

	// reload is optional; it runs inside the transaction after the mutation.
	reload func(ctx context.Context, tx *sql.Tx) error
}

func (db *DB) runOwned(ctx context.Context, id, callerID int64, m ownedMutation) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning %s %s: %w", m.resource, m.action, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var ownerID int64
	if err = tx.QueryRowContext(ctx, m.ownerQuery, id).Scan(&ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.NotFound(m.resource, id)
		}
		return fmt.Errorf("sqlite: reading %s %d owner: %w", m.resource, id, err)
	}

	if ownerID != callerID {
		return apperror.Forbidden(fmt.Sprintf("User not authorized to %s this %s.", m.action, m.resource))
	}

	res, err := m.mutate(ctx, tx)
	if err != nil {
		return fmt.Errorf("sqlite: %s %s %d: %w", m.action, m.resource, id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(m.resource, id)
	}

	if m.reload != nil {
		if err = m.reload(ctx, tx); err != nil {
			return fmt.Errorf("sqlite: reloading %s %d: %w", m.resource, id, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing %s %s: %w", m.resource, m.action, err)
	}
	return nil
}
