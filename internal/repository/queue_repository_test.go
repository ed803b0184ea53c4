package repository

import (
    "context"
    "database/sql"
    "testing"
    "time"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/saas-provisioning/internal/model"
)

var testOffsets = EstimateOffsets{NormalHours: 48, HighHours: 24, UrgentHours: 12}

func setupQueueRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *QueueRepo) {
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    return db, mock, NewQueueRepo(db, testOffsets)
}

var queueCols = []string{
    "id", "customer_id", "status", "priority", "requested_features", "assigned_admin_id",
    "admin_notes", "created_at", "started_at", "completed_at", "estimated_completion", "last_status_update",
}

func pendingRow(id, customerID uint64, at time.Time) *sqlmock.Rows {
    return sqlmock.NewRows(queueCols).
        AddRow(id, customerID, "pending", 0, []byte(`["auth","storage"]`), nil,
            nil, at, nil, nil, at.Add(48*time.Hour), at)
}

func TestEnqueue_Success(t *testing.T) {
    db, mock, repo := setupQueueRepo(t)
    defer db.Close()

    now := time.Now().UTC()

    mock.ExpectQuery(`SELECT 1 FROM customers`).
        WithArgs(uint64(7)).
        WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
    // no active entry in flight
    mock.ExpectQuery(`WHERE customer_id`).
        WillReturnRows(sqlmock.NewRows(queueCols))
    mock.ExpectExec(`INSERT INTO provisioning_queue`).
        WillReturnResult(sqlmock.NewResult(42, 1))
    mock.ExpectQuery(`WHERE id`).
        WithArgs(uint64(42)).
        WillReturnRows(pendingRow(42, 7, now))

    entry, err := repo.Enqueue(context.Background(), 7, []string{"auth", "storage"}, model.PriorityNormal)

    require.NoError(t, err)
    assert.Equal(t, uint64(42), entry.ID)
    assert.Equal(t, model.StatusPending, entry.Status)
    assert.Equal(t, []string{"auth", "storage"}, entry.RequestedFeatures)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueue_CustomerNotFound(t *testing.T) {
    db, mock, repo := setupQueueRepo(t)
    defer db.Close()

    mock.ExpectQuery(`SELECT 1 FROM customers`).
        WithArgs(uint64(99)).
        WillReturnError(sql.ErrNoRows)

    _, err := repo.Enqueue(context.Background(), 99, []string{"auth"}, model.PriorityNormal)

    assert.ErrorIs(t, err, ErrCustomerNotFound)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueue_ActiveEntryConflict(t *testing.T) {
    db, mock, repo := setupQueueRepo(t)
    defer db.Close()

    now := time.Now().UTC()

    mock.ExpectQuery(`SELECT 1 FROM customers`).
        WithArgs(uint64(7)).
        WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
    mock.ExpectQuery(`WHERE customer_id`).
        WillReturnRows(pendingRow(41, 7, now))

    _, err := repo.Enqueue(context.Background(), 7, []string{"auth"}, model.PriorityHigh)

    assert.ErrorIs(t, err, ErrConflict)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaim_Winner(t *testing.T) {
    db, mock, repo := setupQueueRepo(t)
    defer db.Close()

    now := time.Now().UTC()

    mock.ExpectBegin()
    mock.ExpectExec(`UPDATE provisioning_queue`).
        WithArgs(model.StatusInProgress, uint64(5), uint64(42), model.StatusPending).
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec(`UPDATE admin_users`).
        WithArgs(uint64(5)).
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectCommit()
    mock.ExpectQuery(`WHERE id`).
        WithArgs(uint64(42)).
        WillReturnRows(sqlmock.NewRows(queueCols).
            AddRow(42, 7, "in_progress", 0, []byte(`["auth"]`), 5,
                nil, now, now, nil, now.Add(48*time.Hour), now))

    entry, err := repo.Claim(context.Background(), 42, 5)

    require.NoError(t, err)
    assert.Equal(t, model.StatusInProgress, entry.Status)
    require.NotNil(t, entry.AssignedAdminID)
    assert.Equal(t, uint64(5), *entry.AssignedAdminID)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaim_LostRace(t *testing.T) {
    db, mock, repo := setupQueueRepo(t)
    defer db.Close()

    // Another admin won: the conditional update matches no rows and the
    // probe shows the entry already in progress.
    mock.ExpectBegin()
    mock.ExpectExec(`UPDATE provisioning_queue`).
        WillReturnResult(sqlmock.NewResult(0, 0))
    mock.ExpectQuery(`SELECT status FROM provisioning_queue`).
        WithArgs(uint64(42)).
        WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("in_progress"))
    mock.ExpectRollback()

    _, err := repo.Claim(context.Background(), 42, 6)

    assert.ErrorIs(t, err, ErrConflict)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaim_EntryNotFound(t *testing.T) {
    db, mock, repo := setupQueueRepo(t)
    defer db.Close()

    mock.ExpectBegin()
    mock.ExpectExec(`UPDATE provisioning_queue`).
        WillReturnResult(sqlmock.NewResult(0, 0))
    mock.ExpectQuery(`SELECT status FROM provisioning_queue`).
        WithArgs(uint64(404)).
        WillReturnError(sql.ErrNoRows)
    mock.ExpectRollback()

    _, err := repo.Claim(context.Background(), 404, 5)

    assert.ErrorIs(t, err, ErrQueueEntryNotFound)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaim_InactiveAdmin(t *testing.T) {
    db, mock, repo := setupQueueRepo(t)
    defer db.Close()

    mock.ExpectBegin()
    mock.ExpectExec(`UPDATE provisioning_queue`).
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec(`UPDATE admin_users`).
        WillReturnResult(sqlmock.NewResult(0, 0))
    mock.ExpectRollback()

    _, err := repo.Claim(context.Background(), 42, 5)

    assert.ErrorIs(t, err, ErrAdminNotFound)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_RejectsInvalidTransitionWithoutQuery(t *testing.T) {
    db, mock, repo := setupQueueRepo(t)
    defer db.Close()

    // pending cannot jump straight to completed; no SQL may run.
    _, err := repo.UpdateStatus(context.Background(), 42, model.StatusPending, model.StatusCompleted, UpdateFields{})

    assert.ErrorIs(t, err, ErrInvalidTransition)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_LostRace(t *testing.T) {
    db, mock, repo := setupQueueRepo(t)
    defer db.Close()

    mock.ExpectExec(`UPDATE provisioning_queue`).
        WillReturnResult(sqlmock.NewResult(0, 0))
    mock.ExpectQuery(`SELECT status FROM provisioning_queue`).
        WithArgs(uint64(42)).
        WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("migrating"))

    _, err := repo.UpdateStatus(context.Background(), 42, model.StatusInProgress, model.StatusCredentialsReceived, UpdateFields{})

    assert.ErrorIs(t, err, ErrConflict)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_NotFound(t *testing.T) {
    db, mock, repo := setupQueueRepo(t)
    defer db.Close()

    mock.ExpectExec(`UPDATE provisioning_queue`).
        WillReturnResult(sqlmock.NewResult(0, 0))
    mock.ExpectQuery(`SELECT status FROM provisioning_queue`).
        WithArgs(uint64(404)).
        WillReturnError(sql.ErrNoRows)

    _, err := repo.UpdateStatus(context.Background(), 404, model.StatusInProgress, model.StatusCredentialsReceived, UpdateFields{})

    assert.ErrorIs(t, err, ErrQueueEntryNotFound)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_Success(t *testing.T) {
    db, mock, repo := setupQueueRepo(t)
    defer db.Close()

    now := time.Now().UTC()

    mock.ExpectExec(`UPDATE provisioning_queue`).
        WithArgs(model.StatusMigrating, uint64(42), model.StatusCredentialsReceived).
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectQuery(`WHERE id`).
        WithArgs(uint64(42)).
        WillReturnRows(sqlmock.NewRows(queueCols).
            AddRow(42, 7, "migrating", 1, []byte(`["auth"]`), 5,
                "", now, now, nil, now.Add(24*time.Hour), now))

    entry, err := repo.UpdateStatus(context.Background(), 42, model.StatusCredentialsReceived, model.StatusMigrating, UpdateFields{})

    require.NoError(t, err)
    assert.Equal(t, model.StatusMigrating, entry.Status)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_AppendNoteSurvivesNullColumn(t *testing.T) {
    db, mock, repo := setupQueueRepo(t)
    defer db.Close()

    now := time.Now().UTC()
    note := "\n[failed] dns check failed"

    // Freshly enqueued entries have NULL admin_notes; a bare
    // CONCAT(admin_notes, ?) would write NULL and drop the note.
    mock.ExpectExec(`CONCAT\(COALESCE\(admin_notes, ''\), \?\)`).
        WithArgs(model.StatusFailed, note, uint64(42), model.StatusInProgress).
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectQuery(`WHERE id`).
        WithArgs(uint64(42)).
        WillReturnRows(sqlmock.NewRows(queueCols).
            AddRow(42, 7, "failed", 0, []byte(`["auth"]`), 5,
                note, now, now, nil, now.Add(48*time.Hour), now))

    entry, err := repo.UpdateStatus(context.Background(), 42, model.StatusInProgress, model.StatusFailed,
        UpdateFields{AppendNote: &note})

    require.NoError(t, err)
    assert.Contains(t, entry.AdminNotes, "dns check failed")
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAll_CanonicalOrder(t *testing.T) {
    db, mock, repo := setupQueueRepo(t)
    defer db.Close()

    now := time.Now().UTC()

    mock.ExpectQuery(`ORDER BY priority DESC, created_at ASC`).
        WillReturnRows(sqlmock.NewRows(queueCols).
            AddRow(2, 8, "pending", 2, []byte(`["auth"]`), nil, nil, now, nil, nil, now.Add(12*time.Hour), now).
            AddRow(1, 7, "pending", 0, []byte(`["auth"]`), nil, nil, now.Add(-time.Hour), nil, nil, now.Add(48*time.Hour), now))

    entries, err := repo.GetAll(context.Background())

    require.NoError(t, err)
    require.Len(t, entries, 2)
    assert.Equal(t, model.PriorityUrgent, entries[0].Priority)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActiveForCustomer_NoneInFlight(t *testing.T) {
    db, mock, repo := setupQueueRepo(t)
    defer db.Close()

    mock.ExpectQuery(`WHERE customer_id`).
        WillReturnError(sql.ErrNoRows)

    entry, err := repo.GetActiveForCustomer(context.Background(), 7)

    require.NoError(t, err)
    assert.Nil(t, entry)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestComplete_Success(t *testing.T) {
    db, mock, repo := setupQueueRepo(t)
    defer db.Close()

    now := time.Now().UTC()

    mock.ExpectBegin()
    mock.ExpectQuery(`SELECT assigned_admin_id`).
        WithArgs(uint64(42)).
        WillReturnRows(sqlmock.NewRows([]string{"assigned_admin_id"}).AddRow(5))
    mock.ExpectExec(`UPDATE provisioning_queue`).
        WithArgs(model.StatusCompleted, uint64(42), model.StatusMigrating).
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec(`UPDATE admin_users`).
        WithArgs(int64(5)).
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectCommit()
    mock.ExpectQuery(`WHERE id`).
        WithArgs(uint64(42)).
        WillReturnRows(sqlmock.NewRows(queueCols).
            AddRow(42, 7, "completed", 0, []byte(`["auth"]`), 5,
                "", now.Add(-48*time.Hour), now.Add(-24*time.Hour), now, now, now))

    entry, err := repo.Complete(context.Background(), 42)

    require.NoError(t, err)
    assert.Equal(t, model.StatusCompleted, entry.Status)
    require.NotNil(t, entry.CompletedAt)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestComplete_NotMigrating(t *testing.T) {
    db, mock, repo := setupQueueRepo(t)
    defer db.Close()

    mock.ExpectBegin()
    mock.ExpectQuery(`SELECT assigned_admin_id`).
        WithArgs(uint64(42)).
        WillReturnRows(sqlmock.NewRows([]string{"assigned_admin_id"}).AddRow(5))
    mock.ExpectExec(`UPDATE provisioning_queue`).
        WillReturnResult(sqlmock.NewResult(0, 0))
    mock.ExpectQuery(`SELECT status FROM provisioning_queue`).
        WithArgs(uint64(42)).
        WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("in_progress"))
    mock.ExpectRollback()

    _, err := repo.Complete(context.Background(), 42)

    assert.ErrorIs(t, err, ErrInvalidTransition)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTerminate_RejectsNonTerminalTarget(t *testing.T) {
    db, mock, repo := setupQueueRepo(t)
    defer db.Close()

    _, err := repo.Terminate(context.Background(), 42, model.StatusCompleted, "nope")

    assert.ErrorIs(t, err, ErrInvalidTransition)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTerminate_AlreadyTerminal(t *testing.T) {
    db, mock, repo := setupQueueRepo(t)
    defer db.Close()

    mock.ExpectBegin()
    mock.ExpectQuery(`SELECT assigned_admin_id`).
        WithArgs(uint64(42)).
        WillReturnRows(sqlmock.NewRows([]string{"assigned_admin_id"}).AddRow(nil))
    mock.ExpectExec(`UPDATE provisioning_queue`).
        WillReturnResult(sqlmock.NewResult(0, 0))
    mock.ExpectRollback()

    _, err := repo.Terminate(context.Background(), 42, model.StatusCancelled, "")

    assert.ErrorIs(t, err, ErrInvalidTransition)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTerminate_FailReleasesAdmin(t *testing.T) {
    db, mock, repo := setupQueueRepo(t)
    defer db.Close()

    now := time.Now().UTC()

    mock.ExpectBegin()
    mock.ExpectQuery(`SELECT assigned_admin_id`).
        WithArgs(uint64(42)).
        WillReturnRows(sqlmock.NewRows([]string{"assigned_admin_id"}).AddRow(5))
    // The note append must survive a NULL admin_notes column:
    // CONCAT(NULL, reason) is NULL in MySQL, so the write has to go
    // through COALESCE.
    mock.ExpectExec(`CONCAT\(COALESCE\(admin_notes, ''\), \?\)`).
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec(`UPDATE admin_users`).
        WithArgs(int64(5)).
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectCommit()
    mock.ExpectQuery(`WHERE id`).
        WithArgs(uint64(42)).
        WillReturnRows(sqlmock.NewRows(queueCols).
            AddRow(42, 7, "failed", 0, []byte(`["auth"]`), 5,
                "\n[failed] backend quota exceeded", now.Add(-2*time.Hour), now.Add(-time.Hour), now, now, now))

    entry, err := repo.Terminate(context.Background(), 42, model.StatusFailed, "\n[failed] backend quota exceeded")

    require.NoError(t, err)
    assert.Equal(t, model.StatusFailed, entry.Status)
    assert.Contains(t, entry.AdminNotes, "backend quota exceeded")
    assert.NoError(t, mock.ExpectationsWereMet())
}
