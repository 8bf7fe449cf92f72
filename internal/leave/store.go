package leave

import "context"

// Store describes the durable record operations the core needs. The adapter
// performs no retries itself; retry policy belongs to the caller.
type Store interface {
	// GetUser fetches an identity record. Returns ErrNotFound when absent.
	GetUser(ctx context.Context, userID string) (User, error)
	// GetRequest fetches a leave request. Returns ErrNotFound when absent.
	GetRequest(ctx context.Context, leaveRequestID string) (LeaveRequest, error)
	// CreateRequest persists a new request. Duplicate ids are a caller-level
	// bug and are not guarded here.
	CreateRequest(ctx context.Context, request LeaveRequest) error
	// UpdateStatus transitions a request to a terminal status. The write is
	// conditional: it only succeeds from Pending and returns
	// ErrAlreadyResolved when the request already carries a terminal status.
	UpdateStatus(ctx context.Context, leaveRequestID string, status Status) error
}
