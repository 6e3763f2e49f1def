package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/calbuddy/internal/interfaces"
	"github.com/ternarybob/calbuddy/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// sessionStateKey is the single record holding the shared login state
const sessionStateKey = "session:default"

// SessionStorage implements interfaces.SessionStateStorage for Badger
type SessionStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSessionStorage creates a new SessionStorage
func NewSessionStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SessionStateStorage {
	return &SessionStorage{
		db:     db,
		logger: logger,
	}
}

// LoadSessionState returns the saved cookie snapshot or ErrNotFound
func (s *SessionStorage) LoadSessionState(ctx context.Context) (*models.SessionState, error) {
	var state models.SessionState
	err := s.db.Store().Get(sessionStateKey, &state)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session state: %w", err)
	}
	return &state, nil
}

// SaveSessionState replaces the saved cookie snapshot
func (s *SessionStorage) SaveSessionState(ctx context.Context, state *models.SessionState) error {
	state.ID = sessionStateKey
	if state.SavedAt.IsZero() {
		state.SavedAt = time.Now()
	}

	if err := s.db.Store().Upsert(sessionStateKey, state); err != nil {
		return fmt.Errorf("failed to save session state: %w", err)
	}

	s.logger.Debug().
		Int("cookies", len(state.Cookies)).
		Msg("Session state saved")
	return nil
}
