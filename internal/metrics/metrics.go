// Package metrics computes derived, read-only views over a snapshot of
// queue entries: a customer's position in the queue, estimated wait, and
// aggregate counts.  Nothing here persists state; callers fetch the
// current entries from the repository and pass them in, which keeps
// every computation deterministic and testable without a database.
package metrics

import (
    "errors"
    "sort"
    "time"

    "github.com/iliyamo/saas-provisioning/internal/model"
)

// ErrNoActiveEntry is returned by Position when the customer has no
// non-terminal queue entry.  Handlers translate this into an HTTP 404.
var ErrNoActiveEntry = errors.New("no active queue entry for customer")

// CanonicalLess orders two entries the way the queue is serviced:
// higher priority first, then oldest first.  Every position computation
// in the system uses this ordering and no other.
func CanonicalLess(a, b *model.QueueEntry) bool {
    if a.Priority != b.Priority {
        return a.Priority > b.Priority
    }
    return a.CreatedAt.Before(b.CreatedAt)
}

// SortCanonical sorts entries in place into canonical queue order.
func SortCanonical(entries []model.QueueEntry) {
    sort.SliceStable(entries, func(i, j int) bool {
        return CanonicalLess(&entries[i], &entries[j])
    })
}

// PositionResult describes where a customer's active entry sits in the
// queue and how long they can expect to wait.
type PositionResult struct {
    Position           int          `json:"position"`
    AheadInQueue       int          `json:"ahead_in_queue"`
    EstimatedWaitHours float64      `json:"estimated_wait_hours"`
    Status             model.Status `json:"status"`
}

// Position returns the 1-based rank of the customer's active entry among
// all non-terminal entries in canonical order.  The estimated wait is
// the number of entries ahead times the average processing time observed
// from completed entries, falling back to defaultHours when there is no
// history yet.  Entries may be passed in any order and may include
// terminal rows; both are handled here.
func Position(entries []model.QueueEntry, customerID uint64, defaultHours float64) (PositionResult, error) {
    active := make([]model.QueueEntry, 0, len(entries))
    for _, e := range entries {
        if e.IsActive() {
            active = append(active, e)
        }
    }
    SortCanonical(active)

    rank := 0
    var status model.Status
    for i := range active {
        if active[i].CustomerID == customerID {
            rank = i + 1
            status = active[i].Status
            break
        }
    }
    if rank == 0 {
        return PositionResult{}, ErrNoActiveEntry
    }

    avg := AverageProcessingHours(entries, defaultHours)
    return PositionResult{
        Position:           rank,
        AheadInQueue:       rank - 1,
        EstimatedWaitHours: float64(rank-1) * avg,
        Status:             status,
    }, nil
}

// AverageProcessingHours returns the mean wall-clock hours between claim
// and completion across completed entries.  Entries missing either
// timestamp are skipped; with no usable history the fallback is
// returned.
func AverageProcessingHours(entries []model.QueueEntry, fallback float64) float64 {
    var total time.Duration
    var count int
    for _, e := range entries {
        if e.Status != model.StatusCompleted || e.StartedAt == nil || e.CompletedAt == nil {
            continue
        }
        d := e.CompletedAt.Sub(*e.StartedAt)
        if d < 0 {
            continue
        }
        total += d
        count++
    }
    if count == 0 {
        return fallback
    }
    return total.Hours() / float64(count)
}

// QueueStats aggregates the current queue contents for the back office
// dashboard.
type QueueStats struct {
    ByStatus               map[model.Status]int `json:"by_status"`
    TotalActive            int                  `json:"total_active"`
    CompletedToday         int                  `json:"completed_today"`
    FailedToday            int                  `json:"failed_today"`
    OverdueCount           int                  `json:"overdue_count"`
    AverageProcessingHours float64              `json:"average_processing_hours"`
}

// Stats partitions entries by status and derives the dashboard counters:
// completions and failures whose completed_at falls within the current
// calendar day in loc, and active entries whose completion promise has
// already passed at now.  An empty snapshot yields all-zero counts.
func Stats(entries []model.QueueEntry, now time.Time, loc *time.Location, defaultHours float64) QueueStats {
    if loc == nil {
        loc = time.UTC
    }
    st := QueueStats{ByStatus: make(map[model.Status]int, len(model.AllStatuses))}
    for _, s := range model.AllStatuses {
        st.ByStatus[s] = 0
    }

    localNow := now.In(loc)
    dayStart := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), 0, 0, 0, 0, loc)
    dayEnd := dayStart.Add(24 * time.Hour)

    for _, e := range entries {
        st.ByStatus[e.Status]++
        if e.IsActive() {
            st.TotalActive++
            if e.EstimatedCompletion.Before(now) {
                st.OverdueCount++
            }
        }
        if e.CompletedAt != nil {
            done := e.CompletedAt.In(loc)
            if !done.Before(dayStart) && done.Before(dayEnd) {
                switch e.Status {
                case model.StatusCompleted:
                    st.CompletedToday++
                case model.StatusFailed:
                    st.FailedToday++
                }
            }
        }
    }
    st.AverageProcessingHours = AverageProcessingHours(entries, defaultHours)
    return st
}
