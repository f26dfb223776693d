package db

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestLockTimeoutStatements(t *testing.T) {
	apply, undo := lockTimeoutStatements("postgres", 750)
	assert.Equal(t, []string{"SET LOCAL lock_timeout = 750"}, apply)
	assert.Empty(t, undo)

	apply, undo = lockTimeoutStatements("mysql", 750)
	require.Len(t, apply, 2)
	assert.Equal(t, "SET @boukii_lock_wait_timeout = @@SESSION.innodb_lock_wait_timeout", apply[0])
	assert.Equal(t, "SET SESSION innodb_lock_wait_timeout = 1", apply[1])
	assert.Equal(t, "SET SESSION innodb_lock_wait_timeout = @boukii_lock_wait_timeout", undo)

	apply, _ = lockTimeoutStatements("mysql", 4200)
	assert.Equal(t, "SET SESSION innodb_lock_wait_timeout = 4", apply[1])

	apply, undo = lockTimeoutStatements("mysql", 0)
	assert.Empty(t, apply)
	assert.Empty(t, undo)

	apply, undo = lockTimeoutStatements("sqlite", 3000)
	assert.Empty(t, apply)
	assert.Empty(t, undo)
}

func TestSetLockTimeoutOnSQLiteIsNoop(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = conn.Transaction(func(tx *gorm.DB) error {
		restore, err := SetLockTimeout(tx, 3000)
		if err != nil {
			return err
		}
		restore()
		return nil
	})
	require.NoError(t, err)

	restore, err := SetLockTimeout(nil, 3000)
	require.NoError(t, err)
	restore()
}

func TestForUpdateSkipsSQLite(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	assert.Empty(t, ForUpdate(conn))
	assert.Empty(t, ForUpdate(nil))
}
