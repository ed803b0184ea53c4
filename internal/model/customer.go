package model

import "time"

// PlanType enumerates the subscription plans a customer can sign up for.
type PlanType string

const (
    PlanStarter    PlanType = "starter"
    PlanGrowth     PlanType = "growth"
    PlanScale      PlanType = "scale"
    PlanEnterprise PlanType = "enterprise"
)

// IsValid reports whether p is one of the defined plan types.
func (p PlanType) IsValid() bool {
    switch p {
    case PlanStarter, PlanGrowth, PlanScale, PlanEnterprise:
        return true
    }
    return false
}

// CustomerStatus tracks the billing state of a customer account.
type CustomerStatus string

const (
    CustomerTrial     CustomerStatus = "trial"
    CustomerActive    CustomerStatus = "active"
    CustomerSuspended CustomerStatus = "suspended"
    CustomerCancelled CustomerStatus = "cancelled"
)

// Customer represents a prospective tenant as stored in the `customers`
// table.  Emails are stored lower-cased and at most one row exists per
// normalized email.  Customers are created at signup, mutated by billing
// collaborators, and never deleted because queue history references them.
//
// Fields:
//  ID          – primary key identifier.
//  Email       – unique, case-normalized email address.
//  CompanyName – company the signup belongs to.
//  ContactName – primary contact person.
//  Phone       – optional contact phone.
//  PlanType    – subscription plan selected at signup.
//  Status      – trial, active, suspended or cancelled.
//  CreatedAt   – timestamp of creation.
//  UpdatedAt   – timestamp of last update.
type Customer struct {
    ID          uint64         `json:"id"`
    Email       string         `json:"email"`
    CompanyName string         `json:"company_name"`
    ContactName string         `json:"contact_name"`
    Phone       *string        `json:"phone,omitempty"`
    PlanType    PlanType       `json:"plan_type"`
    Status      CustomerStatus `json:"status"`
    CreatedAt   time.Time      `json:"created_at"`
    UpdatedAt   time.Time      `json:"updated_at"`
}
