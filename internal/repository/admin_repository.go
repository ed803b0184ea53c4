package repository

import (
    "context"
    "database/sql"
    "errors"
    "strings"

    "github.com/iliyamo/saas-provisioning/internal/model"
    "github.com/iliyamo/saas-provisioning/internal/utils"
)

// AdminRepo provides data access to the admin_users table.  Load
// counters (active/total provisions) are not mutated here: they change
// only inside the queue transactions that claim or settle entries, so
// they stay consistent with the queue itself.
type AdminRepo struct{ DB *sql.DB }

// NewAdminRepo returns a new AdminRepo bound to the given database.
func NewAdminRepo(db *sql.DB) *AdminRepo { return &AdminRepo{DB: db} }

const adminColumns = `id, email, name, password_hash, role, active_provisions, total_provisions, is_active, created_at, updated_at`

func scanAdmin(s scanner) (*model.AdminUser, error) {
    var a model.AdminUser
    err := s.Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.Role,
        &a.ActiveProvisions, &a.TotalProvisions, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
    if err != nil {
        return nil, err
    }
    return &a, nil
}

// Create inserts an admin user with a bcrypt-hashed password and returns
// its ID.  Returns ErrEmailExists when the email is already registered.
func (r *AdminRepo) Create(ctx context.Context, email, name, password string, role model.AdminRole, cost int) (uint64, error) {
    email = strings.ToLower(strings.TrimSpace(email))
    hash, err := utils.HashPassword(password, cost)
    if err != nil {
        return 0, err
    }
    res, err := r.DB.ExecContext(ctx,
        `INSERT INTO admin_users (email, name, password_hash, role) VALUES (?,?,?,?)`,
        email, name, hash, role)
    if err != nil {
        if strings.Contains(strings.ToLower(err.Error()), "1062") {
            return 0, ErrEmailExists
        }
        return 0, err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return 0, err
    }
    return uint64(id), nil
}

// GetByEmail fetches an admin by normalized email.  Returns
// ErrAdminNotFound when no row exists.
func (r *AdminRepo) GetByEmail(ctx context.Context, email string) (*model.AdminUser, error) {
    email = strings.ToLower(strings.TrimSpace(email))
    a, err := scanAdmin(r.DB.QueryRowContext(ctx,
        `SELECT `+adminColumns+` FROM admin_users WHERE email = ? LIMIT 1`, email))
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrAdminNotFound
    }
    return a, err
}

// GetByID fetches an admin by id.  Returns ErrAdminNotFound when no row
// exists.
func (r *AdminRepo) GetByID(ctx context.Context, id uint64) (*model.AdminUser, error) {
    a, err := scanAdmin(r.DB.QueryRowContext(ctx,
        `SELECT `+adminColumns+` FROM admin_users WHERE id = ? LIMIT 1`, id))
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrAdminNotFound
    }
    return a, err
}

// ListActive returns all active admins ordered by current load, the
// least loaded first, so the back office can suggest who should pick up
// the next entry.
func (r *AdminRepo) ListActive(ctx context.Context) ([]model.AdminUser, error) {
    rows, err := r.DB.QueryContext(ctx,
        `SELECT `+adminColumns+` FROM admin_users WHERE is_active = 1
          ORDER BY active_provisions ASC, total_provisions DESC`)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    admins := make([]model.AdminUser, 0)
    for rows.Next() {
        a, err := scanAdmin(rows)
        if err != nil {
            return nil, err
        }
        admins = append(admins, *a)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return admins, nil
}
