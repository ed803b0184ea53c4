package model

import "time"

// BackendHealth describes the last observed health of a provisioned backend.
type BackendHealth string

const (
    BackendHealthy     BackendHealth = "healthy"
    BackendDegraded    BackendHealth = "degraded"
    BackendUnreachable BackendHealth = "unreachable"
)

// MigrationStepStatus tracks the outcome of one discrete migration step.
type MigrationStepStatus string

const (
    StepPending MigrationStepStatus = "pending"
    StepSuccess MigrationStepStatus = "success"
    StepFailed  MigrationStepStatus = "failed"
)

// CustomerBackend records the connection credentials and health metadata
// of the backend project provisioned for a customer.  A row is created
// when the queue entry reaches credentials_received and is referenced by
// the ordered migration log that follows.
//
// Fields:
//  ID         – primary key identifier.
//  QueueID    – queue entry this backend was provisioned for.
//  CustomerID – owning customer.
//  ProjectURL – base URL of the provisioned project.
//  AnonKey    – public API key.
//  ServiceKey – privileged API key; never serialized.
//  Health     – last observed health state.
//  CreatedAt  – timestamp of creation.
//  UpdatedAt  – timestamp of last update.
type CustomerBackend struct {
    ID         uint64        `json:"id"`
    QueueID    uint64        `json:"queue_id"`
    CustomerID uint64        `json:"customer_id"`
    ProjectURL string        `json:"project_url"`
    AnonKey    string        `json:"anon_key"`
    ServiceKey string        `json:"-"`
    Health     BackendHealth `json:"health"`
    CreatedAt  time.Time     `json:"created_at"`
    UpdatedAt  time.Time     `json:"updated_at"`
}

// MigrationStep is one entry of a backend's ordered migration log.
//
// Fields:
//  ID         – primary key identifier.
//  BackendID  – backend this step belongs to.
//  StepOrder  – position within the log (1-based).
//  Name       – short step name, e.g. "schema", "seed-data".
//  Status     – pending, success or failed.
//  Detail     – optional free-text outcome detail.
//  ExecutedAt – when the step ran (nil while pending).
type MigrationStep struct {
    ID         uint64              `json:"id"`
    BackendID  uint64              `json:"backend_id"`
    StepOrder  int                 `json:"step_order"`
    Name       string              `json:"name"`
    Status     MigrationStepStatus `json:"status"`
    Detail     *string             `json:"detail,omitempty"`
    ExecutedAt *time.Time          `json:"executed_at,omitempty"`
}
