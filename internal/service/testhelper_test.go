package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/newshub/newsdesk/internal/models"
)

// newTestDB opens an isolated in-memory database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// A second connection would get its own empty in-memory database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Article{},
		&models.PushSubscription{},
		&models.LiveEvent{},
		&models.LiveEntry{},
	))

	return db
}

func newTestWorkflow(t *testing.T, db *gorm.DB, media MediaHost) *WorkflowService {
	t.Helper()
	return NewWorkflowService(db, media, nil, zap.NewNop())
}

// fakeMediaHost records release calls for assertions.
type fakeMediaHost struct {
	released []string
}

func (f *fakeMediaHost) Upload(ctx context.Context, data []byte, folder string) (*models.Attachment, error) {
	return &models.Attachment{URL: "https://media.test/file", ExternalID: "uploaded"}, nil
}

func (f *fakeMediaHost) Release(ctx context.Context, externalID string) error {
	f.released = append(f.released, externalID)
	return nil
}
