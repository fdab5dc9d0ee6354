package database

import (
	"testing"

	"teamdrive/config"
	"teamdrive/models"

	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteAndMigrate(t *testing.T) {
	db, err := Open(&config.DatabaseConfig{Driver: "sqlite", Path: "file:dbtest?mode=memory&cache=shared"})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	for _, model := range models.AllModels() {
		require.True(t, db.Migrator().HasTable(model), "missing table for %T", model)
	}
}

func TestDialectorRejectsUnknownDriver(t *testing.T) {
	_, err := Dialector(&config.DatabaseConfig{Driver: "oracle"})
	require.Error(t, err)
}
