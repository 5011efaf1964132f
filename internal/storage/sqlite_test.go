package storage_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazz-dev/upnotif/internal/checker"
	"github.com/hazz-dev/upnotif/internal/storage"
	"github.com/hazz-dev/upnotif/internal/tracker"
)

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(storage.MemoryPath)
	require.NoError(t, err, "opening in-memory DB")
	t.Cleanup(func() { db.Close() })
	return db
}

func makeResult(url string, status checker.Status, responseMs int64) checker.CheckResult {
	return checker.CheckResult{
		Target:       checker.Target{URL: url},
		Status:       status,
		StatusCode:   200,
		ResponseTime: time.Duration(responseMs) * time.Millisecond,
		CheckedAt:    time.Now().UTC(),
	}
}

func statusPtr(s checker.Status) *checker.Status {
	return &s
}

func TestInsertCheck_And_LatestCheck(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.InsertCheck(ctx, makeResult("https://a.test", checker.StatusUp, 42)))

	got, err := db.LatestCheck(ctx, "https://a.test")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "https://a.test", got.Target)
	assert.Equal(t, "up", got.Status)
	assert.Equal(t, 200, got.StatusCode)
	assert.EqualValues(t, 42, got.ResponseMs)
}

func TestLatestCheck_ReturnsNilWhenEmpty(t *testing.T) {
	got, err := openTestDB(t).LatestCheck(context.Background(), "https://nope.test")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLatestCheck_ReturnsMostRecent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	r1 := makeResult("https://a.test", checker.StatusDown, 10)
	r1.CheckedAt = time.Now().Add(-2 * time.Minute).UTC()
	r2 := makeResult("https://a.test", checker.StatusUp, 20)
	r2.CheckedAt = time.Now().Add(-1 * time.Minute).UTC()
	require.NoError(t, db.InsertCheck(ctx, r1))
	require.NoError(t, db.InsertCheck(ctx, r2))

	got, err := db.LatestCheck(ctx, "https://a.test")
	require.NoError(t, err)
	assert.Equal(t, "up", got.Status)
}

func TestTargetHistory_Pagination(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		r := makeResult("https://a.test", checker.StatusUp, int64(i))
		r.CheckedAt = time.Now().Add(time.Duration(i) * time.Second).UTC()
		require.NoError(t, db.InsertCheck(ctx, r))
	}

	checks, total, err := db.TargetHistory(ctx, "https://a.test", 5, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, total)
	require.Len(t, checks, 5)
	assert.EqualValues(t, 9, checks[0].ResponseMs, "newest first")

	checks2, total2, err := db.TargetHistory(ctx, "https://a.test", 5, 5)
	require.NoError(t, err)
	assert.Equal(t, 10, total2)
	assert.Len(t, checks2, 5)
}

func TestTargetHistory_EmptyDB(t *testing.T) {
	checks, total, err := openTestDB(t).TargetHistory(context.Background(), "https://a.test", 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, checks)
}

func TestAllLatest_ReturnsOnePerTarget(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, db.InsertCheck(ctx, makeResult("https://a.test", checker.StatusUp, int64(i))))
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, db.InsertCheck(ctx, makeResult("https://b.test", checker.StatusDown, int64(i))))
	}

	all, err := db.AllLatest(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "https://a.test", all[0].Target)
	assert.Equal(t, "up", all[0].Status)
	assert.Equal(t, "https://b.test", all[1].Target)
	assert.Equal(t, "down", all[1].Status)
}

func TestUptimePercent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	pct, err := db.UptimePercent(ctx, "https://a.test", 100)
	require.NoError(t, err)
	assert.Zero(t, pct)

	for i := 0; i < 5; i++ {
		require.NoError(t, db.InsertCheck(ctx, makeResult("https://a.test", checker.StatusUp, 10)))
		require.NoError(t, db.InsertCheck(ctx, makeResult("https://a.test", checker.StatusDown, 10)))
	}

	pct, err = db.UptimePercent(ctx, "https://a.test", 10)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, pct, 0.001)
}

func TestInsertTransition_And_RecentTransitions(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := tracker.Transition{
		ID:      "t-1",
		Target:  checker.Target{URL: "https://a.test"},
		Current: checker.StatusUp,
		At:      base,
	}
	second := tracker.Transition{
		ID:       "t-2",
		Target:   checker.Target{URL: "https://a.test"},
		Previous: statusPtr(checker.StatusUp),
		Current:  checker.StatusDown,
		At:       base.Add(time.Minute),
	}
	require.NoError(t, db.InsertTransition(ctx, first, nil))
	require.NoError(t, db.InsertTransition(ctx, second, errors.New("slack webhook returned status 500")))

	got, err := db.RecentTransitions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "t-2", got[0].ID)
	assert.Equal(t, "up", got[0].PreviousStatus)
	assert.Equal(t, "down", got[0].Status)
	assert.False(t, got[0].Delivered)
	assert.Contains(t, got[0].DeliveryError, "500")
	assert.True(t, got[0].OccurredAt.Equal(base.Add(time.Minute)))

	assert.Equal(t, "t-1", got[1].ID)
	assert.Empty(t, got[1].PreviousStatus)
	assert.True(t, got[1].Delivered)
	assert.Empty(t, got[1].DeliveryError)
}

func TestRecentTransitions_Limit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, db.InsertTransition(ctx, tracker.Transition{
			ID:      id,
			Target:  checker.Target{URL: "https://a.test"},
			Current: checker.StatusUp,
			At:      time.Now().Add(time.Duration(i) * time.Second),
		}, nil))
	}

	got, err := db.RecentTransitions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
}

func TestOpen_FileBackedReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	db, err := storage.Open(path)
	require.NoError(t, err)
	require.NoError(t, db.InsertCheck(ctx, makeResult("https://a.test", checker.StatusUp, 1)))
	require.NoError(t, db.Close())

	db, err = storage.Open(path)
	require.NoError(t, err)
	defer db.Close()

	all, err := db.AllLatest(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestClose(t *testing.T) {
	db, err := storage.Open(storage.MemoryPath)
	require.NoError(t, err)
	assert.NoError(t, db.Close())
}

func TestOrdering_SubSecondTimestamps(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	older := makeResult("https://a.test", checker.StatusUp, 10)
	older.CheckedAt = base.Add(120 * time.Millisecond)
	newer := makeResult("https://a.test", checker.StatusDown, 20)
	newer.CheckedAt = base.Add(123 * time.Millisecond)
	// Insert newest first so row id order cannot mask text ordering.
	require.NoError(t, db.InsertCheck(ctx, newer))
	require.NoError(t, db.InsertCheck(ctx, older))

	latest, err := db.LatestCheck(ctx, "https://a.test")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "down", latest.Status)
	assert.True(t, latest.CheckedAt.Equal(newer.CheckedAt))

	pct, err := db.UptimePercent(ctx, "https://a.test", 1)
	require.NoError(t, err)
	assert.Zero(t, pct)

	checks, _, err := db.TargetHistory(ctx, "https://a.test", 10, 0)
	require.NoError(t, err)
	require.Len(t, checks, 2)
	assert.Equal(t, "down", checks[0].Status)

	require.NoError(t, db.InsertTransition(ctx, tracker.Transition{
		ID: "new", Target: checker.Target{URL: "https://a.test"}, Current: checker.StatusDown,
		At: base.Add(123 * time.Millisecond),
	}, nil))
	require.NoError(t, db.InsertTransition(ctx, tracker.Transition{
		ID: "old", Target: checker.Target{URL: "https://a.test"}, Current: checker.StatusUp,
		At: base.Add(120 * time.Millisecond),
	}, nil))
	trs, err := db.RecentTransitions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, trs, 2)
	assert.Equal(t, "new", trs[0].ID)
}
