package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/calbuddy/internal/common"
	"github.com/ternarybob/calbuddy/internal/interfaces"
)

// Manager implements interfaces.StorageManager on a single Badger database
type Manager struct {
	db       *BadgerDB
	runs     interfaces.RunStorage
	sessions interfaces.SessionStateStorage
	logger   arbor.ILogger
}

// NewManager opens the database and builds the stores on top of it
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:       db,
		runs:     NewRunStorage(db, logger, config.KeepRuns),
		sessions: NewSessionStorage(db, logger),
		logger:   logger,
	}, nil
}

func (m *Manager) RunStorage() interfaces.RunStorage {
	return m.runs
}

func (m *Manager) SessionStorage() interfaces.SessionStateStorage {
	return m.sessions
}

// Close closes the underlying database
func (m *Manager) Close() error {
	return m.db.Close()
}
