package sqlite

import (
	"database/sql/driver"
	"errors"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// isUniqueViolation reports whether err came from a UNIQUE or PRIMARY KEY
// constraint. Callers translate it to apperror.Conflict.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// violatedColumn extracts "table.column" from a SQLite unique-constraint
// message, or "" when it cannot be determined.
func violatedColumn(err error) string {
	msg := err.Error()
	const marker = "UNIQUE constraint failed: "
	idx := strings.Index(msg, marker)
	if idx == -1 {
		return ""
	}
	col := msg[idx+len(marker):]
	if end := strings.IndexAny(col, " ,)"); end != -1 {
		col = col[:end]
	}
	return col
}

var (
	registerOnce sync.Once
	registerErr  error
)

// registerFunctions installs casefold(text) on the driver. It applies Unicode
// case folding so LIKE-style searches are case-insensitive beyond ASCII,
// which SQLite's built-in lower() is not.
func registerFunctions() error {
	registerOnce.Do(func() {
		registerErr = msqlite.RegisterDeterministicScalarFunction("casefold", 1,
			func(_ *msqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
				switch v := args[0].(type) {
				case nil:
					return nil, nil
				case string:
					return foldString(v), nil
				case []byte:
					return foldString(string(v)), nil
				default:
					return v, nil
				}
			})
	})
	return registerErr
}

// foldString case-folds s. A Caser holds state, so one is built per call.
func foldString(s string) string {
	return cases.Fold().String(s)
}
