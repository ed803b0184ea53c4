package handler

import (
    "errors"
    "log"
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/saas-provisioning/internal/model"
    "github.com/iliyamo/saas-provisioning/internal/repository"
)

// CustomerHandler serves customer account endpoints.  Signup is the
// only write: accounts start on trial and move to active when their
// first provisioning completes.
type CustomerHandler struct {
    Customers *repository.CustomerRepo
}

func NewCustomerHandler(customers *repository.CustomerRepo) *CustomerHandler {
    if customers == nil {
        panic("nil repository passed to NewCustomerHandler")
    }
    return &CustomerHandler{Customers: customers}
}

type signupReq struct {
    Email       string  `json:"email"`
    CompanyName string  `json:"company_name"`
    ContactName string  `json:"contact_name"`
    Phone       *string `json:"phone"`
    PlanType    string  `json:"plan_type"`
}

// Signup handles POST /v1/customers.  It creates a trial account and
// responds 201 with the stored row.  The email is normalized before
// the uniqueness check, so re-submitting with different casing still
// yields 409.
func (h *CustomerHandler) Signup(c echo.Context) error {
    var req signupReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    req.Email = strings.ToLower(strings.TrimSpace(req.Email))
    req.CompanyName = strings.TrimSpace(req.CompanyName)
    req.ContactName = strings.TrimSpace(req.ContactName)
    if req.Email == "" || !strings.Contains(req.Email, "@") {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "a valid email is required"})
    }
    if req.CompanyName == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "company_name is required"})
    }
    plan := model.PlanType(req.PlanType)
    if plan == "" {
        plan = model.PlanStarter
    }
    if !plan.IsValid() {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown plan_type"})
    }

    cust, err := h.Customers.Create(c.Request().Context(), req.Email, req.CompanyName, req.ContactName, req.Phone, plan)
    if err != nil {
        if errors.Is(err, repository.ErrEmailExists) {
            return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
        }
        status, msg := statusForError(err)
        log.Printf("customer signup failed for %s: %v", req.Email, err)
        return c.JSON(status, echo.Map{"error": msg})
    }
    return c.JSON(http.StatusCreated, echo.Map{"customer": cust})
}
