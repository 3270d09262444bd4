package sqlite

import (
	"errors"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// constraintKind classifies a driver error by the constraint it violated.
type constraintKind int

const (
	constraintNone constraintKind = iota
	constraintUnique
	constraintForeignKey
)

// classify inspects the extended result code of a modernc driver error.
// The returned column is the first "table.column" named in the message,
// e.g. "users.email" for "UNIQUE constraint failed: users.email".
func classify(err error) (constraintKind, string) {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return constraintNone, ""
	}

	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return constraintUnique, failedColumn(se.Error())
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return constraintForeignKey, ""
	default:
		return constraintNone, ""
	}
}

func failedColumn(msg string) string {
	_, rest, ok := strings.Cut(msg, "constraint failed: ")
	if !ok {
		return ""
	}
	col, _, _ := strings.Cut(rest, ",")
	col, _, _ = strings.Cut(col, " ")
	return strings.TrimRight(col, ")")
}
