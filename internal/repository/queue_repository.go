package repository

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "fmt"
    "time"

    "github.com/iliyamo/saas-provisioning/internal/model"
)

// EstimateOffsets configures the fixed completion promise computed at
// enqueue time.  Higher priorities promise a shorter turnaround.
type EstimateOffsets struct {
    NormalHours int // priority 0
    HighHours   int // priority 1
    UrgentHours int // priority 2
}

// ForPriority returns the offset for a given priority level.
func (o EstimateOffsets) ForPriority(p model.Priority) time.Duration {
    switch p {
    case model.PriorityUrgent:
        return time.Duration(o.UrgentHours) * time.Hour
    case model.PriorityHigh:
        return time.Duration(o.HighHours) * time.Hour
    default:
        return time.Duration(o.NormalHours) * time.Hour
    }
}

// QueueRepo provides data access to the provisioning_queue table.  It
// owns the invariant that every entry references exactly one customer
// and enforces the single-active-entry rule at enqueue time.  Status
// changes go through conditional UPDATEs keyed on the last observed
// status, so a lost race surfaces as ErrConflict instead of a silent
// overwrite.  Multiple server instances can safely share the table.
type QueueRepo struct {
    db  *sql.DB
    est EstimateOffsets
}

// NewQueueRepo returns a new QueueRepo bound to the given database.
func NewQueueRepo(db *sql.DB, est EstimateOffsets) *QueueRepo {
    return &QueueRepo{db: db, est: est}
}

// DB exposes the underlying handle so handlers can open transactions
// spanning multiple repositories.
func (r *QueueRepo) DB() *sql.DB { return r.db }

const queueColumns = `id, customer_id, status, priority, requested_features, assigned_admin_id,
       admin_notes, created_at, started_at, completed_at, estimated_completion, last_status_update`

// canonicalOrder is the one queue ordering used everywhere a position is
// computed: urgent first, oldest first within the same priority.
const canonicalOrder = ` ORDER BY priority DESC, created_at ASC`

// scanner abstracts *sql.Row and *sql.Rows for shared scanning.
type scanner interface {
    Scan(dest ...interface{}) error
}

func scanQueueEntry(s scanner) (*model.QueueEntry, error) {
    var e model.QueueEntry
    var featuresJSON []byte
    var adminID sql.NullInt64
    var notes sql.NullString
    var startedAt, completedAt sql.NullTime
    err := s.Scan(&e.ID, &e.CustomerID, &e.Status, &e.Priority, &featuresJSON, &adminID,
        &notes, &e.CreatedAt, &startedAt, &completedAt, &e.EstimatedCompletion, &e.LastStatusUpdate)
    if err != nil {
        return nil, err
    }
    if len(featuresJSON) > 0 {
        if err := json.Unmarshal(featuresJSON, &e.RequestedFeatures); err != nil {
            return nil, fmt.Errorf("decode requested_features for entry %d: %w", e.ID, err)
        }
    }
    if adminID.Valid {
        id := uint64(adminID.Int64)
        e.AssignedAdminID = &id
    }
    if notes.Valid {
        e.AdminNotes = notes.String
    }
    if startedAt.Valid {
        t := startedAt.Time
        e.StartedAt = &t
    }
    if completedAt.Valid {
        t := completedAt.Time
        e.CompletedAt = &t
    }
    return &e, nil
}

// Enqueue creates a pending queue entry for a customer.  It validates
// that the customer exists (ErrCustomerNotFound) and that no active
// entry is already in flight for them (ErrConflict); the estimated
// completion is the creation time plus the configured offset for the
// requested priority.  The caller is responsible for rejecting empty
// feature lists before calling.
func (r *QueueRepo) Enqueue(ctx context.Context, customerID uint64, features []string, priority model.Priority) (*model.QueueEntry, error) {
    var one int
    err := r.db.QueryRowContext(ctx, `SELECT 1 FROM customers WHERE id = ?`, customerID).Scan(&one)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrCustomerNotFound
    }
    if err != nil {
        return nil, err
    }

    // One active entry per customer: reject rather than stack requests.
    active, err := r.GetActiveForCustomer(ctx, customerID)
    if err != nil {
        return nil, err
    }
    if active != nil {
        return nil, ErrConflict
    }

    featuresJSON, err := json.Marshal(features)
    if err != nil {
        return nil, err
    }
    estimated := time.Now().UTC().Add(r.est.ForPriority(priority))

    res, err := r.db.ExecContext(ctx,
        `INSERT INTO provisioning_queue
            (customer_id, status, priority, requested_features, estimated_completion, last_status_update)
         VALUES (?, ?, ?, ?, ?, UTC_TIMESTAMP())`,
        customerID, model.StatusPending, priority, featuresJSON,
        estimated.Format("2006-01-02 15:04:05"))
    if err != nil {
        return nil, err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return nil, err
    }
    return r.GetByID(ctx, uint64(id))
}

// GetByID fetches a single queue entry.  Returns ErrQueueEntryNotFound
// when no row exists.
func (r *QueueRepo) GetByID(ctx context.Context, id uint64) (*model.QueueEntry, error) {
    row := r.db.QueryRowContext(ctx,
        `SELECT `+queueColumns+` FROM provisioning_queue WHERE id = ?`, id)
    e, err := scanQueueEntry(row)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrQueueEntryNotFound
    }
    return e, err
}

// GetByStatus returns all entries with the given status in canonical
// queue order (priority descending, then oldest first).
func (r *QueueRepo) GetByStatus(ctx context.Context, status model.Status) ([]model.QueueEntry, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+queueColumns+` FROM provisioning_queue WHERE status = ?`+canonicalOrder, status)
    if err != nil {
        return nil, err
    }
    return collectEntries(rows)
}

// GetAll returns every queue entry, terminal ones included, in canonical
// order.  The metrics engine consumes this snapshot.
func (r *QueueRepo) GetAll(ctx context.Context) ([]model.QueueEntry, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+queueColumns+` FROM provisioning_queue`+canonicalOrder)
    if err != nil {
        return nil, err
    }
    return collectEntries(rows)
}

func collectEntries(rows *sql.Rows) ([]model.QueueEntry, error) {
    defer rows.Close()
    entries := make([]model.QueueEntry, 0)
    for rows.Next() {
        e, err := scanQueueEntry(rows)
        if err != nil {
            return nil, err
        }
        entries = append(entries, *e)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return entries, nil
}

// GetActiveForCustomer returns the customer's non-terminal entry, or
// (nil, nil) when the customer has nothing in flight.
func (r *QueueRepo) GetActiveForCustomer(ctx context.Context, customerID uint64) (*model.QueueEntry, error) {
    row := r.db.QueryRowContext(ctx,
        `SELECT `+queueColumns+` FROM provisioning_queue
          WHERE customer_id = ? AND status NOT IN (?, ?, ?)`+canonicalOrder+` LIMIT 1`,
        customerID, model.StatusCompleted, model.StatusFailed, model.StatusCancelled)
    e, err := scanQueueEntry(row)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, nil
    }
    return e, err
}

// UpdateFields carries the optional column changes that accompany a
// status transition.  Nil fields are left untouched.
type UpdateFields struct {
    AssignedAdminID *uint64
    AppendNote      *string    // appended to admin_notes
    StartedAt       *time.Time
    CompletedAt     *time.Time
}

// UpdateStatus applies one state-machine transition with optimistic
// concurrency: the write is conditioned on the status still being the
// one the caller last observed.  Invalid (expected, next) pairs fail
// with ErrInvalidTransition before touching the store; a lost race
// surfaces as ErrConflict and the caller must re-read.  The
// last_status_update column is bumped on every successful transition.
func (r *QueueRepo) UpdateStatus(ctx context.Context, id uint64, expected, next model.Status, fields UpdateFields) (*model.QueueEntry, error) {
    if err := r.updateStatus(ctx, r.db, id, expected, next, fields); err != nil {
        return nil, err
    }
    return r.GetByID(ctx, id)
}

// UpdateStatusTx is UpdateStatus scoped to an existing transaction, for
// transitions that must commit together with other writes (e.g. moving
// to credentials_received while inserting the backend record).  The
// caller commits or rolls back.
func (r *QueueRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, expected, next model.Status, fields UpdateFields) error {
    return r.updateStatus(ctx, tx, id, expected, next, fields)
}

// execer abstracts *sql.DB and *sql.Tx for the shared CAS update.
type execer interface {
    ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
    QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (r *QueueRepo) updateStatus(ctx context.Context, ex execer, id uint64, expected, next model.Status, fields UpdateFields) error {
    if !expected.CanTransitionTo(next) {
        return ErrInvalidTransition
    }

    query := `UPDATE provisioning_queue SET status = ?, last_status_update = UTC_TIMESTAMP()`
    args := []interface{}{next}
    if fields.AssignedAdminID != nil {
        query += `, assigned_admin_id = ?`
        args = append(args, *fields.AssignedAdminID)
    }
    if fields.AppendNote != nil {
        // COALESCE: CONCAT(NULL, x) is NULL, which would swallow the note.
        query += `, admin_notes = CONCAT(COALESCE(admin_notes, ''), ?)`
        args = append(args, *fields.AppendNote)
    }
    if fields.StartedAt != nil {
        query += `, started_at = ?`
        args = append(args, fields.StartedAt.UTC().Format("2006-01-02 15:04:05"))
    }
    if fields.CompletedAt != nil {
        query += `, completed_at = ?`
        args = append(args, fields.CompletedAt.UTC().Format("2006-01-02 15:04:05"))
    }
    query += ` WHERE id = ? AND status = ?`
    args = append(args, id, expected)

    res, err := ex.ExecContext(ctx, query, args...)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        // Row absent or moved since the caller observed it.
        var cur model.Status
        err := ex.QueryRowContext(ctx,
            `SELECT status FROM provisioning_queue WHERE id = ?`, id).Scan(&cur)
        if errors.Is(err, sql.ErrNoRows) {
            return ErrQueueEntryNotFound
        }
        if err != nil {
            return err
        }
        return ErrConflict
    }
    return nil
}

// Claim assigns a pending entry to an admin.  The claim must be
// exclusive: when two admins race for the same entry exactly one
// conditional UPDATE matches and the loser receives ErrConflict.  The
// winning claim and the admin's active_provisions increment commit in
// the same transaction so the load counter never drifts.
func (r *QueueRepo) Claim(ctx context.Context, entryID, adminID uint64) (*model.QueueEntry, error) {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return nil, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    res, err := tx.ExecContext(ctx,
        `UPDATE provisioning_queue
            SET status = ?, assigned_admin_id = ?, started_at = UTC_TIMESTAMP(), last_status_update = UTC_TIMESTAMP()
          WHERE id = ? AND status = ?`,
        model.StatusInProgress, adminID, entryID, model.StatusPending)
    if err != nil {
        return nil, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return nil, err
    }
    if n == 0 {
        // Distinguish a missing entry from a lost race.
        var cur model.Status
        err := tx.QueryRowContext(ctx,
            `SELECT status FROM provisioning_queue WHERE id = ?`, entryID).Scan(&cur)
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrQueueEntryNotFound
        }
        if err != nil {
            return nil, err
        }
        return nil, ErrConflict
    }

    res, err = tx.ExecContext(ctx,
        `UPDATE admin_users
            SET active_provisions = active_provisions + 1, updated_at = UTC_TIMESTAMP()
          WHERE id = ? AND is_active = 1`,
        adminID)
    if err != nil {
        return nil, err
    }
    n, err = res.RowsAffected()
    if err != nil {
        return nil, err
    }
    if n == 0 {
        return nil, ErrAdminNotFound
    }

    if err := tx.Commit(); err != nil {
        return nil, err
    }
    committed = true
    return r.GetByID(ctx, entryID)
}

// Complete moves a migrating entry to completed and settles the assigned
// admin's counters (active down, total up) in the same transaction.
func (r *QueueRepo) Complete(ctx context.Context, entryID uint64) (*model.QueueEntry, error) {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return nil, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    var adminID sql.NullInt64
    err = tx.QueryRowContext(ctx,
        `SELECT assigned_admin_id FROM provisioning_queue WHERE id = ?`, entryID).Scan(&adminID)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrQueueEntryNotFound
    }
    if err != nil {
        return nil, err
    }

    res, err := tx.ExecContext(ctx,
        `UPDATE provisioning_queue
            SET status = ?, completed_at = UTC_TIMESTAMP(), last_status_update = UTC_TIMESTAMP()
          WHERE id = ? AND status = ?`,
        model.StatusCompleted, entryID, model.StatusMigrating)
    if err != nil {
        return nil, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return nil, err
    }
    if n == 0 {
        var cur model.Status
        if err := tx.QueryRowContext(ctx,
            `SELECT status FROM provisioning_queue WHERE id = ?`, entryID).Scan(&cur); err != nil {
            return nil, err
        }
        if !cur.CanTransitionTo(model.StatusCompleted) {
            return nil, ErrInvalidTransition
        }
        return nil, ErrConflict
    }

    if adminID.Valid {
        if _, err := tx.ExecContext(ctx,
            `UPDATE admin_users
                SET active_provisions = GREATEST(active_provisions - 1, 0),
                    total_provisions = total_provisions + 1,
                    updated_at = UTC_TIMESTAMP()
              WHERE id = ?`,
            adminID.Int64); err != nil {
            return nil, err
        }
    }

    if err := tx.Commit(); err != nil {
        return nil, err
    }
    committed = true
    return r.GetByID(ctx, entryID)
}

// Terminate moves a non-terminal entry to failed or cancelled.  The
// reason, when given, is appended to admin_notes; failed entries also
// record completed_at so daily failure stats can bucket them.  If an
// admin was assigned, their active count is released in the same
// transaction.  Already-terminal entries fail with ErrInvalidTransition.
func (r *QueueRepo) Terminate(ctx context.Context, entryID uint64, next model.Status, reason string) (*model.QueueEntry, error) {
    if next != model.StatusFailed && next != model.StatusCancelled {
        return nil, ErrInvalidTransition
    }

    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return nil, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    var adminID sql.NullInt64
    err = tx.QueryRowContext(ctx,
        `SELECT assigned_admin_id FROM provisioning_queue WHERE id = ?`, entryID).Scan(&adminID)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrQueueEntryNotFound
    }
    if err != nil {
        return nil, err
    }

    query := `UPDATE provisioning_queue SET status = ?, last_status_update = UTC_TIMESTAMP()`
    args := []interface{}{next}
    if next == model.StatusFailed {
        query += `, completed_at = UTC_TIMESTAMP()`
    }
    if reason != "" {
        // COALESCE: CONCAT(NULL, x) is NULL, which would swallow the reason.
        query += `, admin_notes = CONCAT(COALESCE(admin_notes, ''), ?)`
        args = append(args, reason)
    }
    query += ` WHERE id = ? AND status IN (?, ?, ?, ?)`
    args = append(args, entryID,
        model.StatusPending, model.StatusInProgress, model.StatusCredentialsReceived, model.StatusMigrating)

    res, err := tx.ExecContext(ctx, query, args...)
    if err != nil {
        return nil, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return nil, err
    }
    if n == 0 {
        // Present but terminal: the state machine forbids leaving it.
        return nil, ErrInvalidTransition
    }

    if adminID.Valid {
        if _, err := tx.ExecContext(ctx,
            `UPDATE admin_users
                SET active_provisions = GREATEST(active_provisions - 1, 0), updated_at = UTC_TIMESTAMP()
              WHERE id = ?`,
            adminID.Int64); err != nil {
            return nil, err
        }
    }

    if err := tx.Commit(); err != nil {
        return nil, err
    }
    committed = true
    return r.GetByID(ctx, entryID)
}
