package handler

import (
    "log"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/saas-provisioning/internal/config"
    "github.com/iliyamo/saas-provisioning/internal/metrics"
    "github.com/iliyamo/saas-provisioning/internal/model"
    "github.com/iliyamo/saas-provisioning/internal/queue"
    "github.com/iliyamo/saas-provisioning/internal/repository"
    "github.com/iliyamo/saas-provisioning/internal/service"
)

// ProvisioningHandler serves the customer-facing queue endpoints:
// enqueueing a provisioning request and the read-only position, stats
// and status views.  Validation happens here at the boundary; requests
// that fail it never reach the repositories or the state machine.
type ProvisioningHandler struct {
    Customers *repository.CustomerRepo
    Queue     *repository.QueueRepo
    Cfg       config.Config
}

// NewProvisioningHandler constructs a ProvisioningHandler with the
// provided repositories.  All dependencies must be non-nil.
func NewProvisioningHandler(customers *repository.CustomerRepo, queueRepo *repository.QueueRepo, cfg config.Config) *ProvisioningHandler {
    if customers == nil || queueRepo == nil {
        panic("nil repository passed to NewProvisioningHandler")
    }
    return &ProvisioningHandler{Customers: customers, Queue: queueRepo, Cfg: cfg}
}

type enqueueReq struct {
    CustomerID       uint64   `json:"customer_id"`
    PlanType         string   `json:"plan_type"`
    SelectedFeatures []string `json:"selected_features"`
    Priority         *int8    `json:"priority"`
}

// Enqueue handles POST /v1/provisioning.  It validates the request,
// creates a pending queue entry for the customer and responds 201 with
// the entry.  Missing fields yield 400, an unknown customer 404, and an
// already-active entry for the customer 409.
func (h *ProvisioningHandler) Enqueue(c echo.Context) error {
    var req enqueueReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if req.CustomerID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "customer_id is required"})
    }
    // Drop empty feature keys; an all-empty list is rejected.
    features := make([]string, 0, len(req.SelectedFeatures))
    for _, f := range req.SelectedFeatures {
        if f = strings.TrimSpace(f); f != "" {
            features = append(features, f)
        }
    }
    if len(features) == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "selected_features is required"})
    }
    if req.PlanType != "" && !model.PlanType(req.PlanType).IsValid() {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown plan_type"})
    }
    priority := model.PriorityNormal
    if req.Priority != nil {
        priority = model.Priority(*req.Priority)
        if !priority.IsValid() {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "priority must be 0, 1 or 2"})
        }
    }

    ctx := c.Request().Context()
    entry, err := h.Queue.Enqueue(ctx, req.CustomerID, features, priority)
    if err != nil {
        status, msg := statusForError(err)
        if status == http.StatusConflict {
            msg = "customer already has an active provisioning request"
        }
        if status >= http.StatusInternalServerError {
            log.Printf("enqueue failed for customer %d: %v", req.CustomerID, err)
        }
        return c.JSON(status, echo.Map{"error": msg})
    }

    // Best effort: a lost event never fails the enqueue.
    _ = service.PublishProvisioningEvent(ctx, queue.NewEvent(queue.EventEnqueued, entry, nil))

    return c.JSON(http.StatusCreated, echo.Map{"entry": entry})
}

// QueuePosition handles GET /v1/queue-position?customer_id=...  It
// returns the customer's 1-based rank among active entries, the count
// ahead of them, and an estimated wait in hours.  404 when the customer
// has nothing in flight.
func (h *ProvisioningHandler) QueuePosition(c echo.Context) error {
    customerID, err := strconv.ParseUint(c.QueryParam("customer_id"), 10, 64)
    if err != nil || customerID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "customer_id is required"})
    }

    ctx := c.Request().Context()
    entries, err := h.Queue.GetAll(ctx)
    if err != nil {
        status, msg := statusForError(err)
        log.Printf("queue snapshot failed: %v", err)
        return c.JSON(status, echo.Map{"error": msg})
    }

    pos, err := metrics.Position(entries, customerID, float64(h.Cfg.DefaultProcessingHours))
    if err != nil {
        status, msg := statusForError(err)
        return c.JSON(status, echo.Map{"error": msg})
    }
    return c.JSON(http.StatusOK, pos)
}

// QueueStats handles GET /v1/queue-stats.  It returns aggregate counts
// partitioned by status, today's completions and failures in the
// configured timezone, and the number of overdue active entries.
func (h *ProvisioningHandler) QueueStats(c echo.Context) error {
    ctx := c.Request().Context()
    entries, err := h.Queue.GetAll(ctx)
    if err != nil {
        status, msg := statusForError(err)
        log.Printf("queue snapshot failed: %v", err)
        return c.JSON(status, echo.Map{"error": msg})
    }
    st := metrics.Stats(entries, time.Now().UTC(), h.Cfg.Timezone, float64(h.Cfg.DefaultProcessingHours))
    return c.JSON(http.StatusOK, st)
}

// CustomerStatus handles GET /v1/customer-status?email=...  It resolves
// the customer by email and merges their account summary with the
// queue-position payload.  A customer without an active entry still
// gets their summary; the queue block is omitted in that case.
func (h *ProvisioningHandler) CustomerStatus(c echo.Context) error {
    email := strings.ToLower(strings.TrimSpace(c.QueryParam("email")))
    if email == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "email is required"})
    }

    ctx := c.Request().Context()
    cust, err := h.Customers.GetByEmail(ctx, email)
    if err != nil {
        status, _ := statusForError(err)
        if status == http.StatusNotFound {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "CUSTOMER_NOT_FOUND"})
        }
        log.Printf("customer lookup failed for %s: %v", email, err)
        return c.JSON(status, echo.Map{"error": "internal error"})
    }

    resp := echo.Map{
        "customer": echo.Map{
            "id":           cust.ID,
            "email":        cust.Email,
            "company_name": cust.CompanyName,
            "plan_type":    cust.PlanType,
            "status":       cust.Status,
        },
    }

    entries, err := h.Queue.GetAll(ctx)
    if err != nil {
        status, msg := statusForError(err)
        log.Printf("queue snapshot failed: %v", err)
        return c.JSON(status, echo.Map{"error": msg})
    }
    if pos, err := metrics.Position(entries, cust.ID, float64(h.Cfg.DefaultProcessingHours)); err == nil {
        resp["queue"] = pos
    }
    return c.JSON(http.StatusOK, resp)
}
