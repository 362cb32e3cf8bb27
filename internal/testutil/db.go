// Package testutil holds helpers shared by repository and usecase tests.
package testutil

import (
	"testing"
	"time"

	authdomain "foratask-backend/internal/auth/domain"
	historydomain "foratask-backend/internal/history/domain"
	notificationdomain "foratask-backend/internal/notification/domain"
	taskdomain "foratask-backend/internal/task/domain"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens an isolated in-memory SQLite database with every model migrated.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.New().String() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// Models lists every persisted model, in migration order.
func Models() []interface{} {
	return []interface{}{
		&taskdomain.Task{},
		&taskdomain.TaskMember{},
		&taskdomain.NotificationSchedule{},
		&notificationdomain.Notification{},
		&historydomain.CompletionRecord{},
		&authdomain.PushToken{},
	}
}
