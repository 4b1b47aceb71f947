package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/asmb123/voting-workshop-bhu/config"
	"github.com/asmb123/voting-workshop-bhu/database"
)

// SetupTestDB opens an isolated in-memory SQLite account store.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		LogLevel:   "silent",
	}, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = database.Close(db)
	})
	return db
}

// recordingLocker serializes everything and remembers lock order.
type recordingLocker struct {
	mu    sync.Mutex
	order []string
}

func (l *recordingLocker) WithLock(ctx context.Context, name string, action func() error) error {
	l.mu.Lock()
	l.order = append(l.order, name)
	l.mu.Unlock()
	return action()
}
