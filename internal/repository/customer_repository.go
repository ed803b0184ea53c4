package repository

import (
    "context"
    "database/sql"
    "errors"
    "strings"

    "github.com/iliyamo/saas-provisioning/internal/model"
)

// CustomerRepo provides data access to the customers table.  Customers
// are created at signup and never deleted; queue history references
// them.  Emails are normalized to lower case before every read or write
// so that the one-row-per-email invariant holds regardless of how the
// caller spelled the address.
type CustomerRepo struct {
    db *sql.DB
}

// NewCustomerRepo returns a new CustomerRepo bound to the given database.
func NewCustomerRepo(db *sql.DB) *CustomerRepo { return &CustomerRepo{db: db} }

var ErrEmailExists = errors.New("email already exists")

const customerColumns = `id, email, company_name, contact_name, phone, plan_type, status, created_at, updated_at`

func scanCustomer(row *sql.Row) (*model.Customer, error) {
    var c model.Customer
    var phone sql.NullString
    err := row.Scan(&c.ID, &c.Email, &c.CompanyName, &c.ContactName, &phone,
        &c.PlanType, &c.Status, &c.CreatedAt, &c.UpdatedAt)
    if err != nil {
        return nil, err
    }
    if phone.Valid {
        p := phone.String
        c.Phone = &p
    }
    return &c, nil
}

// Create inserts a customer with status trial and returns the full row.
// Returns ErrEmailExists when the normalized email is already taken.
func (r *CustomerRepo) Create(ctx context.Context, email, company, contact string, phone *string, plan model.PlanType) (*model.Customer, error) {
    email = strings.ToLower(strings.TrimSpace(email))
    res, err := r.db.ExecContext(ctx,
        `INSERT INTO customers (email, company_name, contact_name, phone, plan_type, status) VALUES (?,?,?,?,?,?)`,
        email, company, contact, phone, plan, model.CustomerTrial)
    if err != nil {
        // MySQL duplicate-key error code 1062 on the unique email index.
        if strings.Contains(strings.ToLower(err.Error()), "1062") {
            return nil, ErrEmailExists
        }
        return nil, err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return nil, err
    }
    return r.GetByID(ctx, uint64(id))
}

// GetByID fetches a customer by id.  Returns ErrCustomerNotFound when no
// row exists.
func (r *CustomerRepo) GetByID(ctx context.Context, id uint64) (*model.Customer, error) {
    row := r.db.QueryRowContext(ctx,
        `SELECT `+customerColumns+` FROM customers WHERE id = ?`, id)
    c, err := scanCustomer(row)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrCustomerNotFound
    }
    return c, err
}

// GetByEmail fetches a customer by normalized email.  Returns
// ErrCustomerNotFound when no row exists.
func (r *CustomerRepo) GetByEmail(ctx context.Context, email string) (*model.Customer, error) {
    email = strings.ToLower(strings.TrimSpace(email))
    row := r.db.QueryRowContext(ctx,
        `SELECT `+customerColumns+` FROM customers WHERE email = ?`, email)
    c, err := scanCustomer(row)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrCustomerNotFound
    }
    return c, err
}

// UpdateStatus sets the billing status of a customer.  Billing
// collaborators call this when a trial converts or an account is
// suspended.  Returns ErrCustomerNotFound when no row matches.
func (r *CustomerRepo) UpdateStatus(ctx context.Context, id uint64, status model.CustomerStatus) error {
    res, err := r.db.ExecContext(ctx,
        `UPDATE customers SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`,
        status, id)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrCustomerNotFound
    }
    return nil
}
