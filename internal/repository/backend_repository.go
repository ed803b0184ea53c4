package repository

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/iliyamo/saas-provisioning/internal/model"
)

// BackendRepo provides data access to the customer_backends table and
// its embedded migration log.  A backend row is created when an admin
// submits provisioned credentials; migration steps are appended in order
// as the migration runs.
type BackendRepo struct {
    db *sql.DB
}

// NewBackendRepo returns a new BackendRepo bound to the given database.
func NewBackendRepo(db *sql.DB) *BackendRepo { return &BackendRepo{db: db} }

const backendColumns = `id, queue_id, customer_id, project_url, anon_key, service_key, health, created_at, updated_at`

func scanBackend(s scanner) (*model.CustomerBackend, error) {
    var b model.CustomerBackend
    err := s.Scan(&b.ID, &b.QueueID, &b.CustomerID, &b.ProjectURL, &b.AnonKey,
        &b.ServiceKey, &b.Health, &b.CreatedAt, &b.UpdatedAt)
    if err != nil {
        return nil, err
    }
    return &b, nil
}

// CreateTx inserts a backend record within an existing transaction and
// populates the generated ID.  The caller commits or rolls back.
func (r *BackendRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.CustomerBackend) error {
    res, err := tx.ExecContext(ctx,
        `INSERT INTO customer_backends (queue_id, customer_id, project_url, anon_key, service_key, health)
         VALUES (?,?,?,?,?,?)`,
        b.QueueID, b.CustomerID, b.ProjectURL, b.AnonKey, b.ServiceKey, model.BackendHealthy)
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    b.ID = uint64(id)
    b.Health = model.BackendHealthy
    return nil
}

// GetByQueueID fetches the backend provisioned for a queue entry.
// Returns ErrBackendNotFound when none exists yet.
func (r *BackendRepo) GetByQueueID(ctx context.Context, queueID uint64) (*model.CustomerBackend, error) {
    b, err := scanBackend(r.db.QueryRowContext(ctx,
        `SELECT `+backendColumns+` FROM customer_backends WHERE queue_id = ? LIMIT 1`, queueID))
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrBackendNotFound
    }
    return b, err
}

// AppendStep adds one migration step to the backend's ordered log.  The
// step order is assigned as max(existing)+1 inside a transaction so
// concurrent appends cannot produce duplicate positions.
func (r *BackendRepo) AppendStep(ctx context.Context, backendID uint64, name string, status model.MigrationStepStatus, detail *string) (*model.MigrationStep, error) {
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

    st, err := r.appendStep(ctx, tx, backendID, name, status, detail)
    if err != nil {
        return nil, err
    }
    if err := tx.Commit(); err != nil {
        return nil, err
    }
    committed = true
    return st, nil
}

// AppendStepTx is AppendStep scoped to an existing transaction, for
// appends that must commit together with other writes (e.g. the opening
// step of a migration alongside the status transition).  The caller
// commits or rolls back.
func (r *BackendRepo) AppendStepTx(ctx context.Context, tx *sql.Tx, backendID uint64, name string, status model.MigrationStepStatus, detail *string) (*model.MigrationStep, error) {
    return r.appendStep(ctx, tx, backendID, name, status, detail)
}

func (r *BackendRepo) appendStep(ctx context.Context, ex execer, backendID uint64, name string, status model.MigrationStepStatus, detail *string) (*model.MigrationStep, error) {
    var next int
    if err := ex.QueryRowContext(ctx,
        `SELECT COALESCE(MAX(step_order), 0) + 1 FROM migration_steps WHERE backend_id = ?`,
        backendID).Scan(&next); err != nil {
        return nil, err
    }

    executedAt := time.Now().UTC()
    res, err := ex.ExecContext(ctx,
        `INSERT INTO migration_steps (backend_id, step_order, name, status, detail, executed_at)
         VALUES (?,?,?,?,?,?)`,
        backendID, next, name, status, detail, executedAt.Format("2006-01-02 15:04:05"))
    if err != nil {
        return nil, err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return nil, err
    }

    return &model.MigrationStep{
        ID:         uint64(id),
        BackendID:  backendID,
        StepOrder:  next,
        Name:       name,
        Status:     status,
        Detail:     detail,
        ExecutedAt: &executedAt,
    }, nil
}

// ListSteps returns the backend's migration log in execution order.
func (r *BackendRepo) ListSteps(ctx context.Context, backendID uint64) ([]model.MigrationStep, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT id, backend_id, step_order, name, status, detail, executed_at
           FROM migration_steps WHERE backend_id = ? ORDER BY step_order ASC`, backendID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    steps := make([]model.MigrationStep, 0)
    for rows.Next() {
        var st model.MigrationStep
        var detail sql.NullString
        var executedAt sql.NullTime
        if err := rows.Scan(&st.ID, &st.BackendID, &st.StepOrder, &st.Name, &st.Status, &detail, &executedAt); err != nil {
            return nil, err
        }
        if detail.Valid {
            d := detail.String
            st.Detail = &d
        }
        if executedAt.Valid {
            t := executedAt.Time
            st.ExecutedAt = &t
        }
        steps = append(steps, st)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return steps, nil
}

// UpdateHealth records the last observed health state of a backend.
func (r *BackendRepo) UpdateHealth(ctx context.Context, backendID uint64, health model.BackendHealth) error {
    res, err := r.db.ExecContext(ctx,
        `UPDATE customer_backends SET health = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`,
        health, backendID)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrBackendNotFound
    }
    return nil
}
