package migration

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supplychain/backend/migrations"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add status index", "add_status_index"},
		{"Add-Status-Index", "add_status_index"},
		{"ADD__STATUS__INDEX", "add_status_index"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"_leading trailing_", "leading_trailing"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration(t *testing.T) {
	dir := t.TempDir()

	first, err := CreateMigration(dir, "create partner relationships", "")
	require.NoError(t, err)
	assert.Equal(t, "000001", first.Version)
	assert.Equal(t, filepath.Join(dir, "000001_create_partner_relationships.up.sql"), first.UpPath)
	assert.FileExists(t, first.DownPath)

	second, err := CreateMigration(dir, "Add status index", "speeds up listing")
	require.NoError(t, err)
	assert.Equal(t, "000002", second.Version)

	content, err := os.ReadFile(second.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "-- 000002 add_status_index")
	assert.Contains(t, string(content), "-- speeds up listing")

	t.Run("creates missing directory", func(t *testing.T) {
		nested := filepath.Join(t.TempDir(), "db", "migrations")
		mf, err := CreateMigration(nested, "init", "")
		require.NoError(t, err)
		assert.FileExists(t, mf.UpPath)
	})

	t.Run("rejects empty name", func(t *testing.T) {
		_, err := CreateMigration(dir, "!!!", "")
		assert.Error(t, err)
	})
}

func TestListMigrations(t *testing.T) {
	files := fstest.MapFS{
		"000010_later.up.sql":    {},
		"000010_later.down.sql":  {},
		"000002_second.up.sql":   {},
		"000002_second.down.sql": {},
		"README.md":              {},
		"draft.up.sql":           {},
		"nested":                 {Mode: os.ModeDir},
	}

	got, err := ListMigrations(files)
	require.NoError(t, err)
	assert.Equal(t, []string{"000002_second", "000010_later"}, got)
}

func TestListMigrations_MissingDirectory(t *testing.T) {
	got, err := ListMigrations(os.DirFS(filepath.Join(t.TempDir(), "absent")))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListMigrations_Embedded(t *testing.T) {
	got, err := ListMigrations(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "000001_create_partner_relationships", got[0])
}
