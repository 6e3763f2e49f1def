package badger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/calbuddy/internal/common"
	"github.com/ternarybob/calbuddy/internal/interfaces"
	"github.com/ternarybob/calbuddy/internal/models"
)

func openTestDB(t *testing.T) *BadgerDB {
	t.Helper()
	db, err := NewBadgerDB(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunStorage_SaveAndLatest(t *testing.T) {
	db := openTestDB(t)
	storage := NewRunStorage(db, arbor.NewLogger(), 0)
	ctx := context.Background()

	_, err := storage.LatestRun(ctx)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	base := time.Date(2025, 6, 16, 7, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		run := &models.RunRecord{
			ID:        fmt.Sprintf("run-%d", i),
			Mode:      models.RunModeDay,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			Results: []models.JobResult{
				{ID: fmt.Sprintf("cid-%d", i), TimeSlot: "8:00", Assignee: "Acme"},
			},
		}
		require.NoError(t, storage.SaveRun(ctx, run))
	}

	latest, err := storage.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-2", latest.ID)
	require.Len(t, latest.Results, 1)
	assert.Equal(t, "cid-2", latest.Results[0].ID)

	runs, err := storage.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-0", runs[2].ID)

	got, err := storage.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunModeDay, got.Mode)

	_, err = storage.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestRunStorage_PrunesOldRuns(t *testing.T) {
	db := openTestDB(t)
	storage := NewRunStorage(db, arbor.NewLogger(), 2)
	ctx := context.Background()

	base := time.Date(2025, 6, 16, 7, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		require.NoError(t, storage.SaveRun(ctx, &models.RunRecord{
			ID:        fmt.Sprintf("run-%d", i),
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	runs, err := storage.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-3", runs[0].ID)
	assert.Equal(t, "run-2", runs[1].ID)
}

func TestRunStorage_RequiresID(t *testing.T) {
	storage := NewRunStorage(openTestDB(t), arbor.NewLogger(), 0)
	assert.Error(t, storage.SaveRun(context.Background(), &models.RunRecord{}))
}

func TestSessionStorage_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	storage := NewSessionStorage(db, arbor.NewLogger())
	ctx := context.Background()

	_, err := storage.LoadSessionState(ctx)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	require.NoError(t, storage.SaveSessionState(ctx, &models.SessionState{
		Cookies: []models.Cookie{{Name: "PHPSESSID", Value: "abc", Domain: "inside.example.com", Path: "/"}},
	}))
	require.NoError(t, storage.SaveSessionState(ctx, &models.SessionState{
		Cookies: []models.Cookie{{Name: "PHPSESSID", Value: "def", Domain: "inside.example.com", Path: "/"}},
	}))

	state, err := storage.LoadSessionState(ctx)
	require.NoError(t, err)
	require.Len(t, state.Cookies, 1)
	assert.Equal(t, "def", state.Cookies[0].Value)
	assert.False(t, state.SavedAt.IsZero())
}

func TestManager_SharesOneDatabase(t *testing.T) {
	manager, err := NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir(), KeepRuns: 5})
	require.NoError(t, err)
	defer manager.Close()

	ctx := context.Background()
	require.NoError(t, manager.RunStorage().SaveRun(ctx, &models.RunRecord{ID: "run-1", StartedAt: time.Now()}))
	require.NoError(t, manager.SessionStorage().SaveSessionState(ctx, &models.SessionState{}))

	run, err := manager.RunStorage().LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
}

func TestBadgerDB_CollectGarbageOnFreshStore(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, db.CollectGarbage())
}
