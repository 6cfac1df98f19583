package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/hpungsan/chronicler/internal/errors"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Init(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func rowsOf(ids ...string) []Row {
	out := make([]Row, len(ids))
	for i, id := range ids {
		out[i] = Row{ID: id, Name: "name-" + id, Record: []byte(`{"id":"` + id + `"}`)}
	}
	return out
}

func idsOf(rows []Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestReplaceAll_RoundTripPreservesOrder(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// Deliberately not sorted by id
	want := rowsOf("c3", "c1", "c2")
	if err := ReplaceAll(ctx, db, "characters", want); err != nil {
		t.Fatalf("ReplaceAll() error = %v", err)
	}

	got, err := All(ctx, db, "characters")
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if !equalStrings(idsOf(got), []string{"c3", "c1", "c2"}) {
		t.Errorf("ids = %v, want [c3 c1 c2]", idsOf(got))
	}
	if string(got[0].Record) != `{"id":"c3"}` {
		t.Errorf("record = %s", got[0].Record)
	}
	if got[0].Name != "name-c3" {
		t.Errorf("name = %q", got[0].Name)
	}
}

func TestReplaceAll_FullReplace(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := ReplaceAll(ctx, db, "worldBooks", rowsOf("a", "b")); err != nil {
		t.Fatalf("ReplaceAll() error = %v", err)
	}
	if err := ReplaceAll(ctx, db, "worldBooks", rowsOf("c")); err != nil {
		t.Fatalf("ReplaceAll() error = %v", err)
	}

	got, err := All(ctx, db, "worldBooks")
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if !equalStrings(idsOf(got), []string{"c"}) {
		t.Errorf("ids = %v, want [c]", idsOf(got))
	}
}

func TestReplaceAll_DuplicateIDRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := ReplaceAll(ctx, db, "customSections", rowsOf("n1")); err != nil {
		t.Fatalf("ReplaceAll() error = %v", err)
	}

	err := ReplaceAll(ctx, db, "customSections", rowsOf("n2", "n2"))
	if err != ErrUniqueConstraint {
		t.Fatalf("ReplaceAll() error = %v, want ErrUniqueConstraint", err)
	}

	// Previous contents survive the failed transaction
	got, err := All(ctx, db, "customSections")
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if !equalStrings(idsOf(got), []string{"n1"}) {
		t.Errorf("ids = %v, want [n1]", idsOf(got))
	}
}

func TestReplaceAll_UnknownSpace(t *testing.T) {
	db := openTestDB(t)

	err := ReplaceAll(context.Background(), db, "settings", nil)
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("ReplaceAll(settings) error = %v, want INVALID_REQUEST", err)
	}
	if _, err := All(context.Background(), db, "spells; DROP TABLE x"); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("All(bogus) error = %v, want INVALID_REQUEST", err)
	}
}

func TestAll_Empty(t *testing.T) {
	db := openTestDB(t)

	got, err := All(context.Background(), db, "characters")
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("All() = %v, want empty non-nil slice", got)
	}
}

func TestCount(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	rows := []Row{
		{ID: "c1", Name: "Alice", Record: []byte(`{}`)},
		{ID: "c2", Name: "Bob", Record: []byte(`{}`)},
		{ID: "c3", Name: "Alice", Record: []byte(`{}`)},
	}
	if err := ReplaceAll(ctx, db, "characters", rows); err != nil {
		t.Fatalf("ReplaceAll() error = %v", err)
	}

	n, err := Count(ctx, db, "characters")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}

	if _, err := Count(ctx, db, "nope"); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("Count(nope) error = %v, want INVALID_REQUEST", err)
	}
}

func TestClear_MultipleSpaces(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, space := range []string{"characters", "customSections", "worldBooks"} {
		if err := ReplaceAll(ctx, db, space, rowsOf("x")); err != nil {
			t.Fatalf("ReplaceAll(%s) error = %v", space, err)
		}
	}

	if err := Clear(ctx, db, "characters", "customSections", "worldBooks"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	for _, space := range []string{"characters", "customSections", "worldBooks"} {
		n, err := Count(ctx, db, space)
		if err != nil {
			t.Fatalf("Count(%s) error = %v", space, err)
		}
		if n != 0 {
			t.Errorf("Count(%s) = %d after Clear, want 0", space, n)
		}
	}
}

func TestClear_UnknownSpaceClearsNothing(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := ReplaceAll(ctx, db, "characters", rowsOf("x")); err != nil {
		t.Fatalf("ReplaceAll() error = %v", err)
	}
	if err := Clear(ctx, db, "characters", "bogus"); err == nil {
		t.Fatal("Clear() expected error for unknown space")
	}
	if n, _ := Count(ctx, db, "characters"); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestSettings(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := GetSetting(ctx, db, "migrated"); !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("GetSetting() error = %v, want NOT_FOUND", err)
	}

	date := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := PutSetting(ctx, db, Setting{Key: "migrated", Value: json.RawMessage(`{"migrated":true}`), Date: date}); err != nil {
		t.Fatalf("PutSetting() error = %v", err)
	}

	s, err := GetSetting(ctx, db, "migrated")
	if err != nil {
		t.Fatalf("GetSetting() error = %v", err)
	}
	if string(s.Value) != `{"migrated":true}` {
		t.Errorf("Value = %s", s.Value)
	}
	if !s.Date.Equal(date) {
		t.Errorf("Date = %v, want %v", s.Date, date)
	}

	// Replace
	if err := PutSetting(ctx, db, Setting{Key: "migrated", Value: json.RawMessage(`false`)}); err != nil {
		t.Fatalf("PutSetting() error = %v", err)
	}
	s, err = GetSetting(ctx, db, "migrated")
	if err != nil {
		t.Fatalf("GetSetting() error = %v", err)
	}
	if string(s.Value) != "false" {
		t.Errorf("Value = %s, want false", s.Value)
	}
	if s.Date.IsZero() {
		t.Error("Date is zero, want defaulted to now")
	}

	if err := DeleteSetting(ctx, db, "migrated"); err != nil {
		t.Fatalf("DeleteSetting() error = %v", err)
	}
	if _, err := GetSetting(ctx, db, "migrated"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetSetting() after delete error = %v, want NOT_FOUND", err)
	}
}

func TestPutSetting_Validation(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := PutSetting(ctx, db, Setting{Value: json.RawMessage(`1`)}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("empty key error = %v, want INVALID_REQUEST", err)
	}
	if err := PutSetting(ctx, db, Setting{Key: "k", Value: json.RawMessage(`{bad`)}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("bad JSON error = %v, want INVALID_REQUEST", err)
	}
}

func TestClosedDatabaseReturnsInternal(t *testing.T) {
	db := openTestDB(t)
	db.Close()

	err := ReplaceAll(context.Background(), db, "characters", rowsOf("x"))
	if !errors.Is(err, errors.ErrInternal) {
		t.Errorf("ReplaceAll() on closed db error = %v, want INTERNAL", err)
	}
}
