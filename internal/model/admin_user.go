package model

import "time"

// AdminRole enumerates the staff roles eligible to operate the back office.
// Roles are carried in the JWT "role" claim and enforced by middleware.
type AdminRole string

const (
    RoleAdmin       AdminRole = "ADMIN"
    RoleProvisioner AdminRole = "PROVISIONER"
    RoleSupport     AdminRole = "SUPPORT"
)

// IsValid reports whether r is one of the defined roles.
func (r AdminRole) IsValid() bool {
    switch r {
    case RoleAdmin, RoleProvisioner, RoleSupport:
        return true
    }
    return false
}

// AdminUser mirrors the admin_users table.  Admins claim queue entries
// and carry two load counters: ActiveProvisions counts entries currently
// assigned and non-terminal, TotalProvisions counts lifetime completions.
// Both are maintained inside the same transactions that move queue
// entries, so they never drift from the queue itself.
//
// Fields:
//  ID               – primary key identifier.
//  Email            – unique login email.
//  Name             – display name.
//  PasswordHash     – bcrypt hash; never serialized.
//  Role             – ADMIN, PROVISIONER or SUPPORT.
//  ActiveProvisions – entries currently assigned and in flight.
//  TotalProvisions  – lifetime completed provisions.
//  IsActive         – whether the account may log in and claim work.
//  CreatedAt        – timestamp of creation.
//  UpdatedAt        – timestamp of last update.
type AdminUser struct {
    ID               uint64    `json:"id"`
    Email            string    `json:"email"`
    Name             string    `json:"name"`
    PasswordHash     string    `json:"-"`
    Role             AdminRole `json:"role"`
    ActiveProvisions int       `json:"active_provisions"`
    TotalProvisions  int       `json:"total_provisions"`
    IsActive         bool      `json:"is_active"`
    CreatedAt        time.Time `json:"created_at"`
    UpdatedAt        time.Time `json:"updated_at"`
}
