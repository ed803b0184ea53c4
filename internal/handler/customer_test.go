package handler

import (
    "errors"
    "net/http"
    "testing"
    "time"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/saas-provisioning/internal/repository"
)

func setupCustomer(t *testing.T) (sqlmock.Sqlmock, *CustomerHandler, func()) {
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    return mock, NewCustomerHandler(repository.NewCustomerRepo(db)), func() { db.Close() }
}

func TestSignup_RequiresValidEmail(t *testing.T) {
    _, h, teardown := setupCustomer(t)
    defer teardown()

    rec := doJSON(h.Signup, http.MethodPost, "/v1/customers",
        `{"email":"not-an-email","company_name":"Acme"}`)

    assert.Equal(t, http.StatusBadRequest, rec.Code)
    assert.Contains(t, rec.Body.String(), "email")
}

func TestSignup_RequiresCompanyName(t *testing.T) {
    _, h, teardown := setupCustomer(t)
    defer teardown()

    rec := doJSON(h.Signup, http.MethodPost, "/v1/customers",
        `{"email":"amy@example.com","company_name":"  "}`)

    assert.Equal(t, http.StatusBadRequest, rec.Code)
    assert.Contains(t, rec.Body.String(), "company_name")
}

func TestSignup_DuplicateEmailConflict(t *testing.T) {
    mock, h, teardown := setupCustomer(t)
    defer teardown()

    mock.ExpectExec(`INSERT INTO customers`).
        WillReturnError(errors.New("Error 1062 (23000): Duplicate entry"))

    rec := doJSON(h.Signup, http.MethodPost, "/v1/customers",
        `{"email":"amy@example.com","company_name":"Acme","contact_name":"Amy"}`)

    assert.Equal(t, http.StatusConflict, rec.Code)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSignup_CreatesTrialAccount(t *testing.T) {
    mock, h, teardown := setupCustomer(t)
    defer teardown()

    now := time.Now().UTC()
    customerCols := []string{"id", "email", "company_name", "contact_name", "phone", "plan_type", "status", "created_at", "updated_at"}
    mock.ExpectExec(`INSERT INTO customers`).
        WillReturnResult(sqlmock.NewResult(7, 1))
    mock.ExpectQuery(`FROM customers WHERE id`).
        WillReturnRows(sqlmock.NewRows(customerCols).
            AddRow(7, "amy@example.com", "Acme", "Amy", nil, "starter", "trial", now, now))

    rec := doJSON(h.Signup, http.MethodPost, "/v1/customers",
        `{"email":"Amy@Example.com","company_name":"Acme","contact_name":"Amy"}`)

    require.Equal(t, http.StatusCreated, rec.Code)
    assert.Contains(t, rec.Body.String(), `"status":"trial"`)
    assert.NoError(t, mock.ExpectationsWereMet())
}
