package handler

import (
    "database/sql"
    "database/sql/driver"
    "errors"
    "net/http"

    "github.com/iliyamo/saas-provisioning/internal/metrics"
    "github.com/iliyamo/saas-provisioning/internal/repository"
)

// statusForError maps repository and metrics failures to HTTP status
// codes in one place so every handler translates them the same way:
// validation problems are caught before this point, missing resources
// become 404, stale-state writes become 409, an unreachable store
// becomes 503, and everything else is a 500 whose detail stays in the
// server log.
func statusForError(err error) (int, string) {
    switch {
    case errors.Is(err, repository.ErrCustomerNotFound):
        return http.StatusNotFound, "customer not found"
    case errors.Is(err, repository.ErrQueueEntryNotFound):
        return http.StatusNotFound, "queue entry not found"
    case errors.Is(err, repository.ErrAdminNotFound):
        return http.StatusNotFound, "admin user not found"
    case errors.Is(err, repository.ErrBackendNotFound):
        return http.StatusNotFound, "customer backend not found"
    case errors.Is(err, metrics.ErrNoActiveEntry):
        return http.StatusNotFound, "no active queue entry"
    case errors.Is(err, repository.ErrInvalidTransition):
        return http.StatusConflict, "invalid status transition"
    case errors.Is(err, repository.ErrConflict):
        return http.StatusConflict, "conflict: state changed, re-read and retry"
    case errors.Is(err, sql.ErrConnDone), errors.Is(err, driver.ErrBadConn):
        return http.StatusServiceUnavailable, "store unavailable"
    default:
        return http.StatusInternalServerError, "internal error"
    }
}
