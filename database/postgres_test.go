package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egor/dealercrm/models"
)

func setClause(t *testing.T, query string) string {
	t.Helper()
	start := strings.Index(query, " SET ")
	end := strings.Index(query, " WHERE ")
	require.True(t, start >= 0 && end > start, "unexpected query %q", query)
	return query[start+len(" SET ") : end]
}

func TestBuildConfigUpdate_OnlyPatchedColumns(t *testing.T) {
	s := NewPostgresStore(nil, 0)
	name := "Sofía"

	q, args, err := s.buildConfigUpdate(models.AssistantConfigPatch{Name: &name})
	require.NoError(t, err)

	set := setClause(t, q)
	assert.Equal(t, "name = $1, updated_at = now()", set)
	assert.True(t, strings.HasPrefix(q, "UPDATE assistant_config SET "))
	assert.Contains(t, q, "WHERE id = $2")
	assert.Contains(t, q, "RETURNING id, name, tone")
	assert.Equal(t, []any{"Sofía", 1}, args)
}

func TestBuildConfigUpdate_JSONColumns(t *testing.T) {
	s := NewPostgresStore(nil, 0)
	ml := models.MessageLength{Min: 80, Max: 200}

	q, args, err := s.buildConfigUpdate(models.AssistantConfigPatch{
		Brands:        []string{"Kia"},
		Models:        map[string][]string{"Kia": {"Sportage"}},
		MessageLength: &ml,
	})
	require.NoError(t, err)

	set := setClause(t, q)
	assert.Contains(t, set, "brands = $1::jsonb")
	assert.Contains(t, set, "models = $2::jsonb")
	assert.Contains(t, set, "message_length_min = $3")
	assert.Contains(t, set, "message_length_max = $4")
	assert.NotContains(t, set, "tone")
	assert.NotContains(t, set, "branches")

	require.Len(t, args, 5)
	assert.Equal(t, `["Kia"]`, args[0])
	assert.Equal(t, `{"Kia":["Sportage"]}`, args[1])
	assert.Equal(t, 80, args[2])
	assert.Equal(t, 200, args[3])
}

func TestActivityQuery(t *testing.T) {
	s := NewPostgresStore(nil, 0)

	q, args, err := s.activityQuery()
	require.NoError(t, err)
	assert.Empty(t, args)
	assert.Contains(t, q, "MAX(m.sent_at)")
	assert.Contains(t, q, "LEFT JOIN messages m ON m.client_id = c.id")
	assert.Contains(t, q, "GROUP BY c.id, c.name, c.rut")
	assert.Contains(t, q, "ORDER BY c.name ASC, c.id ASC")
}

func TestWrapErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"no rows", sql.ErrNoRows, KindNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, KindConflict},
		{"foreign key", &pgconn.PgError{Code: "23503"}, KindNotFound},
		{"check violation", &pgconn.PgError{Code: "23514"}, KindInvalid},
		{"invalid text", &pgconn.PgError{Code: "22P02"}, KindInvalid},
		{"connection failure", &pgconn.PgError{Code: "08006"}, KindUnavailable},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, KindUnavailable},
		{"syntax error", &pgconn.PgError{Code: "42601"}, KindUnknown},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), KindUnavailable},
		{"conn done", sql.ErrConnDone, KindUnavailable},
		{"plain", errors.New("boom"), KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := wrapErr("Op", tc.err)
			require.Error(t, err)
			assert.Equal(t, tc.kind, KindOf(err))
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestWrapErr_NilAndPassThrough(t *testing.T) {
	assert.NoError(t, wrapErr("Op", nil))

	inner := &Error{Kind: KindConflict, Op: "Inner"}
	assert.Same(t, inner, wrapErr("Outer", inner))
}

func TestErrorIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("service: %w", notFound("GetClient"))

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.Equal(t, "GetClient: not_found", notFound("GetClient").Error())
}

func TestAppendMessageSQL_SingleStatement(t *testing.T) {
	q := strings.TrimSpace(appendMessageSQL)

	// одно выражение: вставка и обновление клиента фиксируются вместе
	assert.NotContains(t, q, ";")
	assert.True(t, strings.HasPrefix(q, "WITH ins AS ("))
	assert.Contains(t, q, "INSERT INTO messages (client_id, text, role, sent_at)")
	assert.Contains(t, q, "UPDATE clients SET updated_at = ins.sent_at")
	assert.Contains(t, q, "WHERE clients.id = ins.client_id")
	assert.True(t, strings.HasSuffix(q, "SELECT id, sent_at FROM ins"))
}
