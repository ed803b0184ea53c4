package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/saas-provisioning/internal/model"
)

func entry(id, customerID uint64, status model.Status, priority model.Priority, createdAt time.Time) model.QueueEntry {
	return model.QueueEntry{
		ID:                  id,
		CustomerID:          customerID,
		Status:              status,
		Priority:            priority,
		CreatedAt:           createdAt,
		EstimatedCompletion: createdAt.Add(48 * time.Hour),
		LastStatusUpdate:    createdAt,
	}
}

func TestPositionNoActiveEntry(t *testing.T) {
	_, err := Position(nil, 1, 24)
	assert.ErrorIs(t, err, ErrNoActiveEntry)

	// A terminal entry does not count as active.
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	entries := []model.QueueEntry{entry(1, 1, model.StatusCompleted, model.PriorityNormal, base)}
	_, err = Position(entries, 1, 24)
	assert.ErrorIs(t, err, ErrNoActiveEntry)
}

func TestPositionSingleEntry(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	entries := []model.QueueEntry{entry(1, 42, model.StatusPending, model.PriorityNormal, base)}

	res, err := Position(entries, 42, 24)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Position)
	assert.Equal(t, 0, res.AheadInQueue)
	assert.Equal(t, 0.0, res.EstimatedWaitHours)
	assert.Equal(t, model.StatusPending, res.Status)
}

func TestPositionPriorityBeatsAge(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	// B enqueued first at normal priority, A later at high priority.
	entries := []model.QueueEntry{
		entry(1, 100, model.StatusPending, model.PriorityNormal, base),                // B
		entry(2, 200, model.StatusPending, model.PriorityHigh, base.Add(time.Hour)), // A
	}

	a, err := Position(entries, 200, 24)
	require.NoError(t, err)
	b, err := Position(entries, 100, 24)
	require.NoError(t, err)
	assert.Less(t, a.Position, b.Position)
	assert.Equal(t, 1, a.Position)
	assert.Equal(t, 2, b.Position)
	assert.Equal(t, 1, b.AheadInQueue)
}

func TestPositionOldestFirstWithinPriority(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	entries := []model.QueueEntry{
		entry(1, 100, model.StatusPending, model.PriorityNormal, base.Add(2*time.Hour)),
		entry(2, 200, model.StatusPending, model.PriorityNormal, base),
		entry(3, 300, model.StatusInProgress, model.PriorityNormal, base.Add(time.Hour)),
	}

	res, err := Position(entries, 200, 24)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Position)

	res, err = Position(entries, 100, 24)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Position)
	assert.Equal(t, 2, res.AheadInQueue)
}

func TestPositionIgnoresTerminalEntries(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	entries := []model.QueueEntry{
		entry(1, 100, model.StatusCompleted, model.PriorityUrgent, base),
		entry(2, 200, model.StatusCancelled, model.PriorityUrgent, base),
		entry(3, 300, model.StatusPending, model.PriorityNormal, base.Add(time.Hour)),
	}

	res, err := Position(entries, 300, 24)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Position)
	assert.Equal(t, 0, res.AheadInQueue)
}

func TestEstimatedWaitUsesHistory(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	started := base.Add(time.Hour)
	completed := started.Add(6 * time.Hour) // 6h processing time

	done := entry(1, 100, model.StatusCompleted, model.PriorityNormal, base)
	done.StartedAt = &started
	done.CompletedAt = &completed

	entries := []model.QueueEntry{
		done,
		entry(2, 200, model.StatusPending, model.PriorityNormal, base.Add(2*time.Hour)),
		entry(3, 300, model.StatusPending, model.PriorityNormal, base.Add(3*time.Hour)),
	}

	res, err := Position(entries, 300, 24)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Position)
	assert.InDelta(t, 6.0, res.EstimatedWaitHours, 0.001)
}

func TestEstimatedWaitFallsBackWithoutHistory(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	entries := []model.QueueEntry{
		entry(1, 100, model.StatusPending, model.PriorityNormal, base),
		entry(2, 200, model.StatusPending, model.PriorityNormal, base.Add(time.Hour)),
	}

	res, err := Position(entries, 200, 24)
	require.NoError(t, err)
	assert.InDelta(t, 24.0, res.EstimatedWaitHours, 0.001)
}

func TestAverageProcessingHoursSkipsPartialRows(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	started := base.Add(time.Hour)
	completed := started.Add(4 * time.Hour)

	full := entry(1, 100, model.StatusCompleted, model.PriorityNormal, base)
	full.StartedAt = &started
	full.CompletedAt = &completed

	// Completed but never claimed: no started_at, must not skew the mean.
	partial := entry(2, 200, model.StatusCompleted, model.PriorityNormal, base)
	partial.CompletedAt = &completed

	avg := AverageProcessingHours([]model.QueueEntry{full, partial}, 99)
	assert.InDelta(t, 4.0, avg, 0.001)
}

func TestStatsEmptyQueue(t *testing.T) {
	st := Stats(nil, time.Now().UTC(), time.UTC, 24)
	for _, s := range model.AllStatuses {
		assert.Equal(t, 0, st.ByStatus[s])
	}
	assert.Equal(t, 0, st.TotalActive)
	assert.Equal(t, 0, st.CompletedToday)
	assert.Equal(t, 0, st.FailedToday)
	assert.Equal(t, 0, st.OverdueCount)
	assert.InDelta(t, 24.0, st.AverageProcessingHours, 0.001)
}

func TestStatsCountsAndOverdue(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	overdue := entry(1, 100, model.StatusPending, model.PriorityNormal, now.Add(-72*time.Hour))
	overdue.EstimatedCompletion = now.Add(-time.Hour)

	onTime := entry(2, 200, model.StatusInProgress, model.PriorityHigh, now.Add(-time.Hour))
	onTime.EstimatedCompletion = now.Add(23 * time.Hour)

	st := Stats([]model.QueueEntry{overdue, onTime}, now, time.UTC, 24)
	assert.Equal(t, 1, st.ByStatus[model.StatusPending])
	assert.Equal(t, 1, st.ByStatus[model.StatusInProgress])
	assert.Equal(t, 2, st.TotalActive)
	assert.Equal(t, 1, st.OverdueCount)
}

func TestStatsTodayBucketsRespectTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 02:00 UTC on March 2nd is still March 1st in New York.
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	lateNight := time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)

	done := entry(1, 100, model.StatusCompleted, model.PriorityNormal, lateNight.Add(-24*time.Hour))
	done.CompletedAt = &lateNight

	utcStats := Stats([]model.QueueEntry{done}, now, time.UTC, 24)
	assert.Equal(t, 1, utcStats.CompletedToday)

	nyStats := Stats([]model.QueueEntry{done}, now, loc, 24)
	assert.Equal(t, 0, nyStats.CompletedToday)
}

func TestStatsFailedToday(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	failedAt := now.Add(-2 * time.Hour)

	failed := entry(1, 100, model.StatusFailed, model.PriorityNormal, now.Add(-48*time.Hour))
	failed.CompletedAt = &failedAt

	yesterday := now.Add(-30 * time.Hour)
	oldFailure := entry(2, 200, model.StatusFailed, model.PriorityNormal, now.Add(-96*time.Hour))
	oldFailure.CompletedAt = &yesterday

	st := Stats([]model.QueueEntry{failed, oldFailure}, now, time.UTC, 24)
	assert.Equal(t, 1, st.FailedToday)
	assert.Equal(t, 2, st.ByStatus[model.StatusFailed])
	assert.Equal(t, 0, st.TotalActive)
}

func TestSortCanonicalIsStableAndDeterministic(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	entries := []model.QueueEntry{
		entry(1, 100, model.StatusPending, model.PriorityNormal, base.Add(time.Hour)),
		entry(2, 200, model.StatusPending, model.PriorityUrgent, base.Add(2*time.Hour)),
		entry(3, 300, model.StatusPending, model.PriorityHigh, base),
	}

	SortCanonical(entries)
	require.Equal(t, uint64(2), entries[0].ID)
	require.Equal(t, uint64(3), entries[1].ID)
	require.Equal(t, uint64(1), entries[2].ID)

	// Sorting again must not change the order.
	again := make([]model.QueueEntry, len(entries))
	copy(again, entries)
	SortCanonical(again)
	assert.Equal(t, entries, again)
}
