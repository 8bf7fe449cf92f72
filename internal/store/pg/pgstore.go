// Package pg implements the record store on PostgreSQL.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"leaveflow.org/internal/leave"
)

// Store persists users and leave requests in PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ leave.Store = (*Store)(nil)

// Open connects to the database and tunes the pool.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle; used by tests and cmd wiring.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) GetUser(ctx context.Context, userID string) (leave.User, error) {
	var u leave.User
	var managerID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		select user_id, role, manager_id, email, name
		from users where user_id = $1`, userID).
		Scan(&u.UserID, &u.Role, &managerID, &u.Email, &u.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return leave.User{}, leave.ErrNotFound
	}
	if err != nil {
		return leave.User{}, err
	}
	u.ManagerID = managerID.String
	return u, nil
}

func (s *Store) GetRequest(ctx context.Context, leaveRequestID string) (leave.LeaveRequest, error) {
	var r leave.LeaveRequest
	err := s.db.QueryRowContext(ctx, `
		select leave_request_id, user_id, approver_id, start_date, end_date, reason, status, created_at
		from leave_requests where leave_request_id = $1`, leaveRequestID).
		Scan(&r.LeaveRequestID, &r.UserID, &r.ApproverID, &r.StartDate, &r.EndDate, &r.Reason, &r.Status, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return leave.LeaveRequest{}, leave.ErrNotFound
	}
	if err != nil {
		return leave.LeaveRequest{}, err
	}
	return r, nil
}

func (s *Store) CreateRequest(ctx context.Context, request leave.LeaveRequest) error {
	_, err := s.db.ExecContext(ctx, `
		insert into leave_requests(leave_request_id, user_id, approver_id, start_date, end_date, reason, status, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8)`,
		request.LeaveRequestID, request.UserID, request.ApproverID,
		request.StartDate, request.EndDate, request.Reason,
		string(request.Status), request.CreatedAt)
	return err
}

// UpdateStatus writes the terminal status conditionally: the predicate on the
// current status closes the duplicate-resolution race a blind overwrite would
// permit.
func (s *Store) UpdateStatus(ctx context.Context, leaveRequestID string, status leave.Status) error {
	if !status.Terminal() {
		return leave.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		update leave_requests set status = $1
		where leave_request_id = $2 and status = $3`,
		string(status), leaveRequestID, string(leave.StatusPending))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	// Nothing matched: distinguish a missing request from one already in a
	// terminal state.
	var current string
	err = s.db.QueryRowContext(ctx, `
		select status from leave_requests where leave_request_id = $1`, leaveRequestID).
		Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return leave.ErrNotFound
	}
	if err != nil {
		return err
	}
	return leave.ErrAlreadyResolved
}
