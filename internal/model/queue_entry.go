package model

import "time"

// Status enumerates the lifecycle states of a provisioning queue entry.
// Values match the ENUM stored in the provisioning_queue table.  The set
// is closed: code should only ever construct Status values from the
// constants below, and AllStatuses lists every member for iteration.
type Status string

const (
    StatusPending             Status = "pending"              // waiting for an admin to claim
    StatusInProgress          Status = "in_progress"          // claimed, admin is working on it
    StatusCredentialsReceived Status = "credentials_received" // backend credentials submitted
    StatusMigrating           Status = "migrating"            // data migration running
    StatusCompleted           Status = "completed"            // terminal: provisioned successfully
    StatusFailed              Status = "failed"               // terminal: unrecoverable error
    StatusCancelled           Status = "cancelled"            // terminal: withdrawn by customer or admin
)

// AllStatuses lists every valid status in lifecycle order.
var AllStatuses = []Status{
    StatusPending,
    StatusInProgress,
    StatusCredentialsReceived,
    StatusMigrating,
    StatusCompleted,
    StatusFailed,
    StatusCancelled,
}

// transitions maps each state to the set of states reachable from it.
// failed and cancelled are reachable from every non-terminal state; the
// happy path advances one step at a time.  Terminal states map to nothing.
var transitions = map[Status][]Status{
    StatusPending:             {StatusInProgress, StatusFailed, StatusCancelled},
    StatusInProgress:          {StatusCredentialsReceived, StatusFailed, StatusCancelled},
    StatusCredentialsReceived: {StatusMigrating, StatusFailed, StatusCancelled},
    StatusMigrating:           {StatusCompleted, StatusFailed, StatusCancelled},
    StatusCompleted:           {},
    StatusFailed:              {},
    StatusCancelled:           {},
}

// IsValid reports whether s is a member of the closed status set.
func (s Status) IsValid() bool {
    _, ok := transitions[s]
    return ok
}

// IsTerminal reports whether no further transitions are permitted out of s.
func (s Status) IsTerminal() bool {
    return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransitionTo reports whether the state machine permits moving from s
// to next.  Unknown statuses on either side are never permitted.
func (s Status) CanTransitionTo(next Status) bool {
    for _, t := range transitions[s] {
        if t == next {
            return true
        }
    }
    return false
}

// ValidNextStates returns a copy of the states reachable from s.
func (s Status) ValidNextStates() []Status {
    out := make([]Status, len(transitions[s]))
    copy(out, transitions[s])
    return out
}

// ParseStatus converts a raw string into a Status, reporting whether the
// value belongs to the closed set.  Use this at the boundary when reading
// query parameters or request bodies.
func ParseStatus(raw string) (Status, bool) {
    s := Status(raw)
    return s, s.IsValid()
}

// Priority orders queue entries for servicing.  Higher values are served
// first; within the same priority the oldest entry goes first.
type Priority int8

const (
    PriorityNormal Priority = 0
    PriorityHigh   Priority = 1
    PriorityUrgent Priority = 2
)

// IsValid reports whether p is one of the defined priority levels.
func (p Priority) IsValid() bool {
    return p >= PriorityNormal && p <= PriorityUrgent
}

// QueueEntry mirrors a row of the provisioning_queue table.  An entry is
// the unit of work tracked by the back office: it references exactly one
// customer, carries the features requested at signup, and moves through
// the Status state machine until it reaches a terminal state.  Entries
// are never deleted; terminal rows remain as audit history.
//
// Fields:
//  ID                  – primary key identifier.
//  CustomerID          – owning customer; immutable after creation.
//  Status              – current lifecycle state.
//  Priority            – 0 normal, 1 high, 2 urgent.
//  RequestedFeatures   – ordered feature keys requested at signup.
//  AssignedAdminID     – admin who claimed the entry (nil until claimed).
//  AdminNotes          – free-text notes, including failure reasons.
//  CreatedAt           – when the entry was enqueued.
//  StartedAt           – when an admin claimed it (nil until then).
//  CompletedAt         – when it reached completed or failed (nil until then).
//  EstimatedCompletion – promise computed at enqueue time from priority.
//  LastStatusUpdate    – bumped on every transition.
type QueueEntry struct {
    ID                  uint64     `json:"id"`
    CustomerID          uint64     `json:"customer_id"`
    Status              Status     `json:"status"`
    Priority            Priority   `json:"priority"`
    RequestedFeatures   []string   `json:"requested_features"`
    AssignedAdminID     *uint64    `json:"assigned_admin_id,omitempty"`
    AdminNotes          string     `json:"admin_notes,omitempty"`
    CreatedAt           time.Time  `json:"created_at"`
    StartedAt           *time.Time `json:"started_at,omitempty"`
    CompletedAt         *time.Time `json:"completed_at,omitempty"`
    EstimatedCompletion time.Time  `json:"estimated_completion"`
    LastStatusUpdate    time.Time  `json:"last_status_update"`
}

// IsActive reports whether the entry still occupies a place in the queue,
// i.e. its status is non-terminal.
func (e *QueueEntry) IsActive() bool {
    return !e.Status.IsTerminal()
}
