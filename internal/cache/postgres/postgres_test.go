package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/dbparser/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySQLState(t *testing.T) {
	tests := []struct {
		code string
		kind errs.ErrKind
	}{
		{"08006", errs.ErrKindConnectionFailed},
		{"57P01", errs.ErrKindConnectionFailed},
		{"28P01", errs.ErrKindPermissionDenied},
		{"42501", errs.ErrKindPermissionDenied},
		{"42P01", errs.ErrKindQueryFailed},
		{"22P02", errs.ErrKindInvalidInput},
		{"23505", errs.ErrKindQueryFailed},
		{"", errs.ErrKindQueryFailed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, classifySQLState(tt.code), tt.code)
	}
}

func TestMapError(t *testing.T) {
	got := mapError(&pgconn.PgError{Code: "42P01", Message: `relation "x" does not exist`}, "get k")
	require.NotNil(t, got)
	assert.True(t, errs.IsQueryFailed(got))
	assert.Contains(t, got.Error(), `relation "x" does not exist`)

	assert.True(t, errs.IsTimeout(mapError(context.Canceled, "op")))
	assert.True(t, errs.IsNotFound(mapError(pgx.ErrNoRows, "op")))
	assert.True(t, errs.IsConnectionFailed(mapError(errors.New("dial error"), "op")))
	assert.Nil(t, mapError(nil, "op"))
}

func TestCreateTableSQL(t *testing.T) {
	table := pgx.Identifier{"schema cache"}.Sanitize()
	assert.Equal(t, `"schema cache"`, table)

	assert.Contains(t, createTableSQL(table, true), `CREATE UNLOGGED TABLE IF NOT EXISTS "schema cache"`)
	assert.Contains(t, createTableSQL(table, false), `CREATE TABLE IF NOT EXISTS "schema cache"`)
}

func TestUpsertSQL_WritesTagsWithValue(t *testing.T) {
	q := upsertSQL(`"dbparser_cache"`)
	assert.Contains(t, q, `INSERT INTO "dbparser_cache" (key, value, expires_at, tags)`)
	assert.Contains(t, q, `VALUES ($1, $2, $3, $4::text[])`)
	assert.Contains(t, q, `tags = EXCLUDED.tags`)
}

func TestNew_RejectsEmptyTable(t *testing.T) {
	_, err := New(context.Background(), nil, &Config{})
	assert.True(t, errs.IsInvalidInput(err))
}
