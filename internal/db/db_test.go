package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "carts_active_session_uniq"}

	assert.True(t, UniqueViolation(dup, ""))
	assert.True(t, UniqueViolation(fmt.Errorf("insert cart: %w", dup), "carts_active_session_uniq"))
	assert.False(t, UniqueViolation(dup, "offerings_store_key_uniq"))
	assert.False(t, UniqueViolation(&pgconn.PgError{Code: "23503"}, ""))
	assert.False(t, UniqueViolation(errors.New("boom"), ""))
	assert.False(t, UniqueViolation(nil, ""))
}
