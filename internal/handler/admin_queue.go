package handler

import (
    "errors"
    "log"
    "net/http"
    "strconv"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/saas-provisioning/internal/model"
    "github.com/iliyamo/saas-provisioning/internal/queue"
    "github.com/iliyamo/saas-provisioning/internal/repository"
    "github.com/iliyamo/saas-provisioning/internal/service"
)

// AdminQueueHandler serves the back-office endpoints: listing the queue,
// claiming pending entries, and advancing claimed entries through the
// provisioning lifecycle.  All methods assume JWT authentication and
// role validation has already run; the acting admin is taken from the
// token, never from the request body.
type AdminQueueHandler struct {
    Queue     *repository.QueueRepo
    Admins    *repository.AdminRepo
    Backends  *repository.BackendRepo
    Customers *repository.CustomerRepo
}

// NewAdminQueueHandler constructs an AdminQueueHandler with the provided
// repositories.  All dependencies must be non-nil.
func NewAdminQueueHandler(queueRepo *repository.QueueRepo, admins *repository.AdminRepo, backends *repository.BackendRepo, customers *repository.CustomerRepo) *AdminQueueHandler {
    if queueRepo == nil || admins == nil || backends == nil || customers == nil {
        panic("nil repository passed to NewAdminQueueHandler")
    }
    return &AdminQueueHandler{Queue: queueRepo, Admins: admins, Backends: backends, Customers: customers}
}

// adminID extracts the authenticated admin's id from the echo context
// where the JWT middleware stored it.
func adminID(c echo.Context) (uint64, error) {
    v := c.Get("user_id")
    switch t := v.(type) {
    case uint64:
        return t, nil
    case int:
        return uint64(t), nil
    case int64:
        return uint64(t), nil
    case float64:
        return uint64(t), nil
    case string:
        if n, err := strconv.ParseUint(t, 10, 64); err == nil {
            return n, nil
        }
    }
    return 0, errors.New("invalid user_id in context")
}

// entryID parses the :id path parameter.
func entryID(c echo.Context) (uint64, error) {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || id == 0 {
        return 0, errors.New("invalid queue entry id")
    }
    return id, nil
}

// ListQueue handles GET /v1/provisioning-queue?status=...  The status
// filter accepts any lifecycle state or "all" (the default).  Entries
// come back in canonical queue order: priority descending, oldest first
// within the same priority.
func (h *AdminQueueHandler) ListQueue(c echo.Context) error {
    raw := strings.TrimSpace(c.QueryParam("status"))
    ctx := c.Request().Context()

    var entries []model.QueueEntry
    var err error
    if raw == "" || raw == "all" {
        entries, err = h.Queue.GetAll(ctx)
    } else {
        status, ok := model.ParseStatus(raw)
        if !ok {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status filter"})
        }
        entries, err = h.Queue.GetByStatus(ctx, status)
    }
    if err != nil {
        status, msg := statusForError(err)
        log.Printf("queue list failed (filter=%q): %v", raw, err)
        return c.JSON(status, echo.Map{"error": msg})
    }
    return c.JSON(http.StatusOK, echo.Map{"items": entries, "count": len(entries)})
}

type claimReq struct {
    QueueID uint64 `json:"queue_id"`
}

// ClaimTask handles POST /v1/claim-task.  The claim is exclusive: when
// two admins race for the same pending entry, exactly one conditional
// update wins and the loser receives 409 with the current state left
// untouched.  Losers should re-read the queue and pick another entry.
func (h *AdminQueueHandler) ClaimTask(c echo.Context) error {
    aid, err := adminID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var req claimReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if req.QueueID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "queue_id is required"})
    }

    ctx := c.Request().Context()
    entry, err := h.Queue.Claim(ctx, req.QueueID, aid)
    if err != nil {
        status, msg := statusForError(err)
        if status == http.StatusConflict {
            msg = "entry is no longer pending"
        }
        if status >= http.StatusInternalServerError {
            log.Printf("claim failed for entry %d by admin %d: %v", req.QueueID, aid, err)
        }
        return c.JSON(status, echo.Map{"error": msg})
    }

    _ = service.PublishProvisioningEvent(ctx, queue.NewEvent(queue.EventClaimed, entry, &aid))

    return c.JSON(http.StatusOK, echo.Map{"entry": entry})
}

type credentialsReq struct {
    ProjectURL string `json:"project_url"`
    AnonKey    string `json:"anon_key"`
    ServiceKey string `json:"service_key"`
}

// SubmitCredentials handles POST /v1/provisioning/:id/credentials.  It
// records the provisioned backend's connection credentials and moves the
// entry from in_progress to credentials_received.  Both writes commit in
// one transaction: an entry never reaches credentials_received without a
// backend row and vice versa.
func (h *AdminQueueHandler) SubmitCredentials(c echo.Context) error {
    if _, err := adminID(c); err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    id, err := entryID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    var req credentialsReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if strings.TrimSpace(req.ProjectURL) == "" || strings.TrimSpace(req.AnonKey) == "" || strings.TrimSpace(req.ServiceKey) == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "project_url, anon_key and service_key are required"})
    }

    ctx := c.Request().Context()
    entry, err := h.Queue.GetByID(ctx, id)
    if err != nil {
        status, msg := statusForError(err)
        return c.JSON(status, echo.Map{"error": msg})
    }

    tx, err := h.Queue.DB().BeginTx(ctx, nil)
    if err != nil {
        log.Printf("begin tx failed for entry %d: %v", id, err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start transaction"})
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    backend := &model.CustomerBackend{
        QueueID:    id,
        CustomerID: entry.CustomerID,
        ProjectURL: strings.TrimSpace(req.ProjectURL),
        AnonKey:    strings.TrimSpace(req.AnonKey),
        ServiceKey: strings.TrimSpace(req.ServiceKey),
    }
    if err := h.Backends.CreateTx(ctx, tx, backend); err != nil {
        log.Printf("backend insert failed for entry %d: %v", id, err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to record backend"})
    }
    if err := h.Queue.UpdateStatusTx(ctx, tx, id, model.StatusInProgress, model.StatusCredentialsReceived, repository.UpdateFields{}); err != nil {
        status, msg := statusForError(err)
        if status >= http.StatusInternalServerError {
            log.Printf("transition in_progress->credentials_received failed for entry %d: %v", id, err)
        }
        return c.JSON(status, echo.Map{"error": msg})
    }
    if err := tx.Commit(); err != nil {
        log.Printf("commit failed for entry %d: %v", id, err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to commit transaction"})
    }
    committed = true

    updated, err := h.Queue.GetByID(ctx, id)
    if err != nil {
        status, msg := statusForError(err)
        return c.JSON(status, echo.Map{"error": msg})
    }
    return c.JSON(http.StatusOK, echo.Map{"entry": updated, "backend": backend})
}

type migrateReq struct {
    Step string `json:"step"`
}

// StartMigration handles POST /v1/provisioning/:id/migrate.  It moves
// the entry from credentials_received to migrating and appends the
// opening entry of the backend's migration log.  Both writes commit in
// one transaction: an entry never sits in migrating with an empty log.
func (h *AdminQueueHandler) StartMigration(c echo.Context) error {
    if _, err := adminID(c); err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    id, err := entryID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    var req migrateReq
    _ = c.Bind(&req)
    stepName := strings.TrimSpace(req.Step)
    if stepName == "" {
        stepName = "schema"
    }

    ctx := c.Request().Context()
    backend, err := h.Backends.GetByQueueID(ctx, id)
    if err != nil {
        status, msg := statusForError(err)
        return c.JSON(status, echo.Map{"error": msg})
    }

    tx, err := h.Queue.DB().BeginTx(ctx, nil)
    if err != nil {
        log.Printf("begin tx failed for entry %d: %v", id, err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start transaction"})
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    if err := h.Queue.UpdateStatusTx(ctx, tx, id, model.StatusCredentialsReceived, model.StatusMigrating, repository.UpdateFields{}); err != nil {
        status, msg := statusForError(err)
        if status >= http.StatusInternalServerError {
            log.Printf("transition credentials_received->migrating failed for entry %d: %v", id, err)
        }
        return c.JSON(status, echo.Map{"error": msg})
    }
    step, err := h.Backends.AppendStepTx(ctx, tx, backend.ID, stepName, model.StepPending, nil)
    if err != nil {
        log.Printf("migration step append failed for entry %d: %v", id, err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to record migration step"})
    }
    if err := tx.Commit(); err != nil {
        log.Printf("commit failed for entry %d: %v", id, err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to commit transaction"})
    }
    committed = true

    entry, err := h.Queue.GetByID(ctx, id)
    if err != nil {
        status, msg := statusForError(err)
        return c.JSON(status, echo.Map{"error": msg})
    }
    return c.JSON(http.StatusOK, echo.Map{"entry": entry, "step": step})
}

// Complete handles POST /v1/provisioning/:id/complete.  It moves a
// migrating entry to completed, settles the assigned admin's counters
// and closes the migration log with a success step.
func (h *AdminQueueHandler) Complete(c echo.Context) error {
    aid, err := adminID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    id, err := entryID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }

    ctx := c.Request().Context()
    entry, err := h.Queue.Complete(ctx, id)
    if err != nil {
        status, msg := statusForError(err)
        if status >= http.StatusInternalServerError {
            log.Printf("transition migrating->completed failed for entry %d: %v", id, err)
        }
        return c.JSON(status, echo.Map{"error": msg})
    }

    if backend, err := h.Backends.GetByQueueID(ctx, id); err == nil {
        if _, err := h.Backends.AppendStep(ctx, backend.ID, "finalize", model.StepSuccess, nil); err != nil {
            log.Printf("closing migration step failed for entry %d: %v", id, err)
        }
    }

    // The first completed provisioning converts the trial.
    if err := h.Customers.UpdateStatus(ctx, entry.CustomerID, model.CustomerActive); err != nil {
        log.Printf("customer activation failed for customer %d: %v", entry.CustomerID, err)
    }

    _ = service.PublishProvisioningEvent(ctx, queue.NewEvent(queue.EventCompleted, entry, &aid))

    return c.JSON(http.StatusOK, echo.Map{"entry": entry})
}

type terminateReq struct {
    Reason string `json:"reason"`
}

// Fail handles POST /v1/provisioning/:id/fail.  Any non-terminal entry
// can be failed; the reason is appended to the entry's admin notes and,
// when a backend exists, to its migration log.
func (h *AdminQueueHandler) Fail(c echo.Context) error {
    aid, err := adminID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    id, err := entryID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    var req terminateReq
    _ = c.Bind(&req)
    reason := strings.TrimSpace(req.Reason)
    if reason == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "reason is required"})
    }

    ctx := c.Request().Context()
    note := "\n[failed] " + reason
    entry, err := h.Queue.Terminate(ctx, id, model.StatusFailed, note)
    if err != nil {
        status, msg := statusForError(err)
        if status >= http.StatusInternalServerError {
            log.Printf("transition to failed rejected for entry %d: %v", id, err)
        }
        return c.JSON(status, echo.Map{"error": msg})
    }

    if backend, err := h.Backends.GetByQueueID(ctx, id); err == nil {
        detail := reason
        if _, err := h.Backends.AppendStep(ctx, backend.ID, "abort", model.StepFailed, &detail); err != nil {
            log.Printf("failure migration step failed for entry %d: %v", id, err)
        }
    }

    _ = service.PublishProvisioningEvent(ctx, queue.NewEvent(queue.EventFailed, entry, &aid))

    return c.JSON(http.StatusOK, echo.Map{"entry": entry})
}

// Cancel handles POST /v1/provisioning/:id/cancel.  Any non-terminal
// entry can be cancelled by staff; beyond the status and timestamp no
// further side effects apply.
func (h *AdminQueueHandler) Cancel(c echo.Context) error {
    if _, err := adminID(c); err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    id, err := entryID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    var req terminateReq
    _ = c.Bind(&req)
    note := ""
    if reason := strings.TrimSpace(req.Reason); reason != "" {
        note = "\n[cancelled] " + reason
    }

    ctx := c.Request().Context()
    entry, err := h.Queue.Terminate(ctx, id, model.StatusCancelled, note)
    if err != nil {
        status, msg := statusForError(err)
        if status >= http.StatusInternalServerError {
            log.Printf("transition to cancelled rejected for entry %d: %v", id, err)
        }
        return c.JSON(status, echo.Map{"error": msg})
    }
    return c.JSON(http.StatusOK, echo.Map{"entry": entry})
}

// GetBackend handles GET /v1/provisioning/:id/backend.  It returns the
// provisioned backend with its migration log.  The privileged service
// key never leaves the server.
func (h *AdminQueueHandler) GetBackend(c echo.Context) error {
    id, err := entryID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }

    ctx := c.Request().Context()
    backend, err := h.Backends.GetByQueueID(ctx, id)
    if err != nil {
        status, msg := statusForError(err)
        return c.JSON(status, echo.Map{"error": msg})
    }
    steps, err := h.Backends.ListSteps(ctx, backend.ID)
    if err != nil {
        status, msg := statusForError(err)
        log.Printf("migration log read failed for backend %d: %v", backend.ID, err)
        return c.JSON(status, echo.Map{"error": msg})
    }
    return c.JSON(http.StatusOK, echo.Map{"backend": backend, "steps": steps})
}

type healthReq struct {
    Health string `json:"health"`
}

// ReportHealth handles POST /v1/backends/:id/health.  Admins record the
// last observed health of a provisioned backend after checking on it.
func (h *AdminQueueHandler) ReportHealth(c echo.Context) error {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || id == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid backend id"})
    }
    var req healthReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    health := model.BackendHealth(strings.ToLower(strings.TrimSpace(req.Health)))
    switch health {
    case model.BackendHealthy, model.BackendDegraded, model.BackendUnreachable:
    default:
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "health must be healthy, degraded or unreachable"})
    }

    if err := h.Backends.UpdateHealth(c.Request().Context(), id, health); err != nil {
        status, msg := statusForError(err)
        return c.JSON(status, echo.Map{"error": msg})
    }
    return c.NoContent(http.StatusNoContent)
}

// ListAdmins handles GET /v1/admins.  It returns the active staff
// ordered by current load so the least busy admin is suggested first.
func (h *AdminQueueHandler) ListAdmins(c echo.Context) error {
    admins, err := h.Admins.ListActive(c.Request().Context())
    if err != nil {
        status, msg := statusForError(err)
        log.Printf("admin list failed: %v", err)
        return c.JSON(status, echo.Map{"error": msg})
    }
    return c.JSON(http.StatusOK, echo.Map{"items": admins})
}
