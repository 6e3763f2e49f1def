package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/calbuddy/internal/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("not found")

// RunStorage persists finished runs for use as diff baselines
type RunStorage interface {
	SaveRun(ctx context.Context, run *models.RunRecord) error
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)
	LatestRun(ctx context.Context) (*models.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]*models.RunRecord, error)
}

// SessionStateStorage persists the shared login cookie snapshot
type SessionStateStorage interface {
	LoadSessionState(ctx context.Context) (*models.SessionState, error)
	SaveSessionState(ctx context.Context, state *models.SessionState) error
}

// StorageManager owns the database and hands out the typed stores
type StorageManager interface {
	RunStorage() RunStorage
	SessionStorage() SessionStateStorage
	Close() error
}
