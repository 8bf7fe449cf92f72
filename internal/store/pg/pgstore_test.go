package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"leaveflow.org/internal/leave"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func TestGetUser(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"user_id", "role", "manager_id", "email", "name"}).
		AddRow("u-1", "employee", "m-1", "u1@example.com", "Uma")
	mock.ExpectQuery("select user_id, role, manager_id, email, name").
		WithArgs("u-1").WillReturnRows(rows)

	u, err := store.GetUser(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.ManagerID != "m-1" || u.Name != "Uma" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetUserNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select user_id, role, manager_id, email, name").
		WithArgs("ghost").WillReturnRows(sqlmock.NewRows([]string{"user_id", "role", "manager_id", "email", "name"}))

	if _, err := store.GetUser(context.Background(), "ghost"); !errors.Is(err, leave.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateRequest(t *testing.T) {
	store, mock := newMockStore(t)

	created := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("insert into leave_requests").
		WithArgs("r-1", "u-1", "m-1", "2025-08-10", "2025-08-15", "vacation", "Pending", created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.CreateRequest(context.Background(), leave.LeaveRequest{
		LeaveRequestID: "r-1",
		UserID:         "u-1",
		ApproverID:     "m-1",
		StartDate:      "2025-08-10",
		EndDate:        "2025-08-15",
		Reason:         "vacation",
		Status:         leave.StatusPending,
		CreatedAt:      created,
	})
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetRequest(t *testing.T) {
	store, mock := newMockStore(t)

	created := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"leave_request_id", "user_id", "approver_id", "start_date", "end_date", "reason", "status", "created_at"}).
		AddRow("r-1", "u-1", "m-1", "2025-08-10", "2025-08-15", "vacation", "Pending", created)
	mock.ExpectQuery("select leave_request_id, user_id, approver_id").
		WithArgs("r-1").WillReturnRows(rows)

	r, err := store.GetRequest(context.Background(), "r-1")
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if r.Status != leave.StatusPending || r.ApproverID != "m-1" {
		t.Fatalf("unexpected request: %+v", r)
	}
}

func TestUpdateStatusFromPending(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update leave_requests set status").
		WithArgs("Approved", "r-1", "Pending").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.UpdateStatus(context.Background(), "r-1", leave.StatusApproved); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateStatusAlreadyResolved(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update leave_requests set status").
		WithArgs("Rejected", "r-1", "Pending").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select status from leave_requests").
		WithArgs("r-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("Approved"))

	if err := store.UpdateStatus(context.Background(), "r-1", leave.StatusRejected); !errors.Is(err, leave.ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}
}

func TestUpdateStatusNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update leave_requests set status").
		WithArgs("Approved", "ghost", "Pending").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select status from leave_requests").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	if err := store.UpdateStatus(context.Background(), "ghost", leave.StatusApproved); !errors.Is(err, leave.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateStatusRejectsNonTerminal(t *testing.T) {
	store, _ := newMockStore(t)
	if err := store.UpdateStatus(context.Background(), "r-1", leave.StatusPending); !errors.Is(err, leave.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
