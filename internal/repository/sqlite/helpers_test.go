package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sakif/starblog/internal/model"
	"github.com/sakif/starblog/internal/repository"
)

// newTestDB creates a migrated database in a per-test temp directory.
//
// A file, not ":memory:": each pooled connection to ":memory:" would get
// its own empty database.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *DB, email, name string) *model.User {
	t.Helper()
	u := &model.User{
		Email:      email,
		Name:       name,
		Credential: model.PasswordCredential{Hash: "$2a$04$hash-for-" + name},
	}
	require.NoError(t, db.Users().Create(context.Background(), u))
	return u
}

func createTestPost(t *testing.T, db *DB, authorID int64, title string) int64 {
	t.Helper()
	content := "body of " + title
	id, err := db.Posts().Create(context.Background(), authorID, repository.PostInput{
		Title:      title,
		Content:    &content,
		Categories: []string{"go", "sqlite"},
	})
	require.NoError(t, err)
	return id
}

// rawRow reads a row's stored columns directly, bypassing the stores, so
// tests can assert a rejected mutation left it byte-for-byte unchanged.
func rawRow(t *testing.T, db *DB, query string, id int64) []any {
	t.Helper()
	rows, err := db.conn.QueryContext(context.Background(), query, id)
	require.NoError(t, err)
	defer rows.Close()

	cols, err := rows.Columns()
	require.NoError(t, err)
	if !rows.Next() {
		require.NoError(t, rows.Err())
		return nil
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	require.NoError(t, rows.Scan(ptrs...))
	return vals
}
