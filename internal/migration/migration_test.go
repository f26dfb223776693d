package migration

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	names := map[string]bool{}
	for _, entry := range entries {
		names[entry.Name()] = true
	}
	for name := range names {
		if up, ok := strings.CutSuffix(name, ".up.sql"); ok {
			assert.True(t, names[up+".down.sql"], "missing down migration for %s", name)
		}
	}
}

func TestSourceWalksVersionsInOrder(t *testing.T) {
	src, err := newSource()
	require.NoError(t, err)
	defer src.Close()

	version, err := src.First()
	require.NoError(t, err)
	assert.EqualValues(t, 1, version)

	seen := []uint{version}
	for {
		next, err := src.Next(version)
		if errors.Is(err, os.ErrNotExist) {
			break
		}
		require.NoError(t, err)
		seen = append(seen, next)
		version = next
	}
	assert.Equal(t, []uint{1, 2, 3}, seen)
}

func TestRunMigrationsRequiresHandle(t *testing.T) {
	assert.Error(t, RunMigrations(nil, nil))
}
