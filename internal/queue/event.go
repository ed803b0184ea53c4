// Package queue defines message payloads exchanged over the message broker
// and the background consumer that records them.
package queue

import (
    "time"

    "github.com/iliyamo/saas-provisioning/internal/model"
)

// EventType labels a provisioning lifecycle event.
type EventType string

const (
    EventEnqueued  EventType = "provisioning.enqueued"
    EventClaimed   EventType = "provisioning.claimed"
    EventCompleted EventType = "provisioning.completed"
    EventFailed    EventType = "provisioning.failed"
)

// ProvisioningEvent is published whenever a queue entry crosses a
// lifecycle milestone.  It carries enough information for downstream
// consumers to log, notify, or trigger analytics without querying the
// primary database.
type ProvisioningEvent struct {
    Type       EventType      `json:"type"`
    QueueID    uint64         `json:"queue_id"`
    CustomerID uint64         `json:"customer_id"`
    Status     model.Status   `json:"status"`
    Priority   model.Priority `json:"priority"`
    AdminID    *uint64        `json:"admin_id,omitempty"`
    OccurredAt string         `json:"occurred_at"`
}

// NewEvent builds a ProvisioningEvent from a queue entry.  adminID may
// be nil for customer-initiated events.
func NewEvent(typ EventType, entry *model.QueueEntry, adminID *uint64) ProvisioningEvent {
    return ProvisioningEvent{
        Type:       typ,
        QueueID:    entry.ID,
        CustomerID: entry.CustomerID,
        Status:     entry.Status,
        Priority:   entry.Priority,
        AdminID:    adminID,
        OccurredAt: time.Now().UTC().Format(time.RFC3339),
    }
}
