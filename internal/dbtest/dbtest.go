// Package dbtest hands every test its own migrated in-memory database.
package dbtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/ums/internal/config"
	"github.com/Skotchmaster/ums/internal/repo"
)

func New(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := config.OpenSQLite(context.Background(), dsn, "silent")
	require.NoError(t, err)

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func NewRepo(t *testing.T) *repo.GormRepo {
	t.Helper()
	return repo.New(New(t))
}
