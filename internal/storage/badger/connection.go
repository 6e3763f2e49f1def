package badger

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/calbuddy/internal/common"
	"github.com/timshannon/badgerhold/v4"
)

// gcDiscardRatio is the value log file share that must be stale before a rewrite
const gcDiscardRatio = 0.5

// BadgerDB holds the run-history database
type BadgerDB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
	config *common.BadgerConfig
}

// NewBadgerDB opens (and with reset_on_startup first wipes) the database at config.Path
func NewBadgerDB(logger arbor.ILogger, config *common.BadgerConfig) (*BadgerDB, error) {
	if config.ResetOnStartup {
		if _, err := os.Stat(config.Path); err == nil {
			logger.Debug().Str("path", config.Path).Msg("Deleting existing database (reset_on_startup=true)")
			if err := os.RemoveAll(config.Path); err != nil {
				logger.Warn().Err(err).Str("path", config.Path).Msg("Failed to delete database directory")
			}
		}
	}

	if err := os.MkdirAll(config.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Options = badger.DefaultOptions(config.Path).
		WithLogger(&badgerLogger{logger: logger}).
		WithLoggingLevel(badger.WARNING).
		WithNumVersionsToKeep(1)

	store, err := badgerhold.Open(options)
	if err != nil {
		logger.Error().Err(err).Str("path", config.Path).Msg("Failed to open run history database")
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Debug().
		Str("path", config.Path).
		Int("keep_runs", config.KeepRuns).
		Msg("Run history database opened")

	return &BadgerDB{
		store:  store,
		logger: logger,
		config: config,
	}, nil
}

// Store returns the underlying badgerhold store
func (b *BadgerDB) Store() *badgerhold.Store {
	return b.store
}

// CollectGarbage rewrites value log files until none is worth rewriting
func (b *BadgerDB) CollectGarbage() error {
	for {
		err := b.store.Badger().RunValueLogGC(gcDiscardRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("value log gc failed: %w", err)
		}
	}
}

// Close closes the database
func (b *BadgerDB) Close() error {
	if b.store != nil {
		return b.store.Close()
	}
	return nil
}

// badgerLogger routes badger's internal messages into arbor
type badgerLogger struct {
	logger arbor.ILogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Str("component", "badger").Msg(trimLine(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Str("component", "badger").Msg(trimLine(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Str("component", "badger").Msg(trimLine(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Str("component", "badger").Msg(trimLine(format, args...))
}

func trimLine(format string, args ...interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
