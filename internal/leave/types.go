package leave

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a leave request. Pending is initial;
// Approved and Rejected are terminal and a request reaches exactly one of
// them exactly once.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
)

// Terminal reports whether no further transition is valid from the status.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Decision is the action word an approver submits on the resolve path.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ParseDecision validates the raw action value from a resolve call.
func ParseDecision(raw string) (Decision, error) {
	switch Decision(strings.ToLower(strings.TrimSpace(raw))) {
	case DecisionApprove:
		return DecisionApprove, nil
	case DecisionReject:
		return DecisionReject, nil
	default:
		return "", fmt.Errorf("%w: action must be approve or reject", ErrInvalidInput)
	}
}

// Status maps a decision to the terminal request status it produces.
func (d Decision) Status() Status {
	if d == DecisionApprove {
		return StatusApproved
	}
	return StatusRejected
}

// User is an identity record. Users are provisioned out of band and are
// read-only to this core.
type User struct {
	UserID    string `json:"userId"`
	Role      string `json:"role"`
	ManagerID string `json:"managerId,omitempty"`
	Email     string `json:"email"`
	Name      string `json:"name"`
}

// LeaveRequest is the central entity. ApproverID is a snapshot of the
// submitter's manager at submission time, not a live reference.
type LeaveRequest struct {
	LeaveRequestID string    `json:"leaveRequestId"`
	UserID         string    `json:"userId"`
	ApproverID     string    `json:"approverId"`
	StartDate      string    `json:"startDate"`
	EndDate        string    `json:"endDate"`
	Reason         string    `json:"reason"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
}

var (
	// ErrInvalidInput marks client-supplied data as malformed or incomplete.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks a referenced entity as absent.
	ErrNotFound = errors.New("not found")
	// ErrApproverUnresolved means the submitter has no manager on record.
	ErrApproverUnresolved = errors.New("approver unresolved")
	// ErrAlreadyResolved rejects a terminal write over a terminal status.
	ErrAlreadyResolved = errors.New("request already resolved")
	// ErrInvalidToken rejects an unknown or already consumed task token.
	ErrInvalidToken = errors.New("invalid task token")
)
