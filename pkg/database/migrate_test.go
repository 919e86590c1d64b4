package database

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/library-api/pkg/config"
)

func TestEmbeddedMigrationsAreGooseAnnotated(t *testing.T) {
	entries, err := fs.ReadDir(migrations, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	for _, entry := range entries {
		body, err := fs.ReadFile(migrations, "migrations/"+entry.Name())
		require.NoError(t, err)
		assert.Contains(t, string(body), "-- +goose Up", entry.Name())
		assert.Contains(t, string(body), "-- +goose Down", entry.Name())
	}
}

func TestInitialSchemaGuardsAvailability(t *testing.T) {
	body, err := fs.ReadFile(migrations, "migrations/00001_init.sql")
	require.NoError(t, err)

	schema := string(body)
	assert.Contains(t, schema, "available_copies >= 0")
	assert.Contains(t, schema, "available_copies <= total_copies")
	assert.True(t, strings.Contains(schema, "ON DELETE RESTRICT"))
}

func TestGooseLoggerNeverExits(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := gooseLogger{logger: zap.New(core)}

	l.Printf("OK   %s\n", "00001_init.sql")
	l.Fatalf("failed %d", 1)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "OK   00001_init.sql", entries[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5433, User: "lib", Password: "pw", Name: "library", SSLMode: "disable"})
	assert.Equal(t, "host=db port=5433 user=lib password=pw dbname=library sslmode=disable", dsn)
}
