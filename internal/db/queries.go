package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hpungsan/chronicler/internal/errors"
)

// ErrUniqueConstraint is returned when an insert violates a PRIMARY KEY or UNIQUE constraint.
var ErrUniqueConstraint = &errors.ChroniclerError{
	Code:    "UNIQUE_CONSTRAINT",
	Status:  409,
	Message: "unique constraint violation",
}

// Row is one stored entity: its id, indexed name and serialized record.
type Row struct {
	ID     string
	Name   string
	Record []byte
}

// Setting is one entry of the settings space.
type Setting struct {
	Key   string
	Value json.RawMessage
	Date  time.Time
}

func checkSpace(space string) error {
	if !slices.Contains(Spaces, space) {
		return errors.NewInvalidRequest(fmt.Sprintf("unknown record space %q", space))
	}
	return nil
}

// ReplaceAll replaces the full contents of a record space with rows in a single
// transaction. Rows keep their slice order. A duplicate id aborts the transaction
// with ErrUniqueConstraint and leaves the previous contents in place.
func ReplaceAll(ctx context.Context, db *sql.DB, space string, rows []Row) error {
	if err := checkSpace(space); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError(err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM "`+space+`"`); err != nil {
		return wrapDBError(err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO "`+space+`" (id, name, position, record) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return wrapDBError(err)
	}
	defer stmt.Close()

	for i, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.ID, r.Name, i, string(r.Record)); err != nil {
			if isUniqueConstraintError(err) {
				return ErrUniqueConstraint
			}
			return wrapDBError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapDBError(err)
	}
	return nil
}

// All returns every row of a record space in saved order.
func All(ctx context.Context, db *sql.DB, space string) ([]Row, error) {
	if err := checkSpace(space); err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id, name, record FROM "`+space+`" ORDER BY position, rowid`)
	if err != nil {
		return nil, wrapDBError(err)
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		var r Row
		var record string
		if err := rows.Scan(&r.ID, &r.Name, &record); err != nil {
			return nil, wrapDBError(err)
		}
		r.Record = []byte(record)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError(err)
	}
	return out, nil
}

// Count returns the number of rows in a record space.
func Count(ctx context.Context, db *sql.DB, space string) (int, error) {
	if err := checkSpace(space); err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM "`+space+`"`).Scan(&n); err != nil {
		return 0, wrapDBError(err)
	}
	return n, nil
}

// Clear empties the given record spaces in one transaction.
func Clear(ctx context.Context, db *sql.DB, spaces ...string) error {
	for _, space := range spaces {
		if err := checkSpace(space); err != nil {
			return err
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError(err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, space := range spaces {
		if _, err := tx.ExecContext(ctx, `DELETE FROM "`+space+`"`); err != nil {
			return wrapDBError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapDBError(err)
	}
	return nil
}

// GetSetting retrieves a setting by key. Returns NOT_FOUND if absent.
func GetSetting(ctx context.Context, db *sql.DB, key string) (*Setting, error) {
	var value string
	var date sql.NullInt64
	err := db.QueryRowContext(ctx, `SELECT value, date FROM settings WHERE key = ?`, key).Scan(&value, &date)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("setting", key)
	}
	if err != nil {
		return nil, wrapDBError(err)
	}

	s := &Setting{Key: key, Value: json.RawMessage(value)}
	if date.Valid {
		s.Date = time.UnixMilli(date.Int64).UTC()
	}
	return s, nil
}

// PutSetting inserts or replaces a setting. A zero Date is stored as the current time.
func PutSetting(ctx context.Context, db *sql.DB, s Setting) error {
	if s.Key == "" {
		return errors.NewInvalidRequest("setting key is required")
	}
	if !json.Valid(s.Value) {
		return errors.NewInvalidRequest(fmt.Sprintf("setting %q value is not valid JSON", s.Key))
	}
	date := s.Date
	if date.IsZero() {
		date = time.Now()
	}

	_, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO settings (key, value, date) VALUES (?, ?, ?)`,
		s.Key, string(s.Value), date.UnixMilli(),
	)
	return wrapDBError(err)
}

// DeleteSetting removes a setting. Deleting an absent key is not an error.
func DeleteSetting(ctx context.Context, db *sql.DB, key string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key)
	return wrapDBError(err)
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE or PRIMARY KEY violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for both
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isDiskFullError checks for SQLITE_FULL.
func isDiskFullError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "database or disk is full")
}

// wrapDBError maps driver errors onto coded errors. nil stays nil.
func wrapDBError(err error) error {
	if err == nil {
		return nil
	}
	if isDiskFullError(err) {
		return errors.NewQuotaExceeded(nil)
	}
	return errors.NewInternal(err)
}
