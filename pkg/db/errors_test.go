package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestIsUniqueViolationPgx(t *testing.T) {
	err := &pgconn.PgError{Code: "23505", ConstraintName: "orders_order_number_key"}

	if !IsUniqueViolation(err, "orders_order_number_key") {
		t.Fatal("expected match on constraint name")
	}
	if !IsUniqueViolation(err, "") {
		t.Fatal("empty constraint should match any unique violation")
	}
	if IsUniqueViolation(err, "other_constraint") {
		t.Fatal("different constraint should not match")
	}
}

func TestIsUniqueViolationWrapped(t *testing.T) {
	inner := &pgconn.PgError{Code: "23505", ConstraintName: "orders_order_number_key"}
	err := fmt.Errorf("create order: %w", inner)

	if !IsUniqueViolation(err, "orders_order_number_key") {
		t.Fatal("expected match through wrapping")
	}
}

func TestIsUniqueViolationLibPQ(t *testing.T) {
	err := &pq.Error{Code: "23505", Constraint: "orders_order_number_key"}

	if !IsUniqueViolation(err, "orders_order_number_key") {
		t.Fatal("expected lib/pq match")
	}
	if IsUniqueViolation(&pq.Error{Code: "23503"}, "") {
		t.Fatal("foreign key violation should not match")
	}
}

func TestIsUniqueViolationSQLiteMessage(t *testing.T) {
	err := errors.New("UNIQUE constraint failed: orders.order_number")

	if !IsUniqueViolation(err, "orders_order_number_key") {
		t.Fatal("sqlite unique violations should match by message")
	}
}

func TestIsUniqueViolationNonMatches(t *testing.T) {
	if IsUniqueViolation(nil, "") {
		t.Fatal("nil should not match")
	}
	if IsUniqueViolation(errors.New("connection refused"), "") {
		t.Fatal("unrelated errors should not match")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Fatal("other pg error codes should not match")
	}
}
