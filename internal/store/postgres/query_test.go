package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWhereBuild(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var w where
	w.add("project_id = $%d", int64(3))
	w.window("at", &since, nil)
	query, args := w.build("SELECT * FROM events", "seq DESC", 10, 20)

	assert.Equal(t, "SELECT * FROM events WHERE project_id = $1 AND at >= $2 ORDER BY seq DESC LIMIT $3 OFFSET $4", query)
	assert.Equal(t, []any{int64(3), since, 10, 20}, args)
}

func TestWhereBuildEmpty(t *testing.T) {
	var w where
	query, args := w.build("SELECT * FROM audit_log", "id DESC", 0, 0)
	assert.Equal(t, "SELECT * FROM audit_log ORDER BY id DESC", query)
	assert.Empty(t, args)
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/easybet?sslmode=disable",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Database: "easybet"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
}
