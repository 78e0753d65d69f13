package repository

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wikigate/moderation-backend/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.PendingChange{},
		&domain.ModerationBlock{},
		&domain.RevisionTag{},
	))
	return db
}

func pendingEdit(user, title string) *domain.PendingChange {
	return &domain.PendingChange{
		Type:      domain.ChangeEdit,
		Namespace: 0,
		Title:     title,
		UserName:  user,
		PreloadID: "[" + user,
		Text:      "queued text",
		Comment:   "summary",
	}
}
