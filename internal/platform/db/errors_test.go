package db

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestErrorClassification(t *testing.T) {
	fk := fmt.Errorf("insert observation: %w", &pgconn.PgError{Code: "23503"})
	uniq := &pgconn.PgError{Code: "23505"}

	if !IsForeignKeyViolation(fk) {
		t.Error("expected wrapped 23503 to be a foreign key violation")
	}
	if IsForeignKeyViolation(uniq) {
		t.Error("23505 is not a foreign key violation")
	}
	if !IsUniqueViolation(uniq) {
		t.Error("expected 23505 to be a unique violation")
	}
	if !IsNoRows(fmt.Errorf("get: %w", pgx.ErrNoRows)) {
		t.Error("expected wrapped ErrNoRows to be detected")
	}
	if IsNoRows(fk) {
		t.Error("foreign key violation is not ErrNoRows")
	}
}
