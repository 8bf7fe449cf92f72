package workflow

import (
	"context"
	"time"

	"leaveflow.org/internal/audit"
	"leaveflow.org/internal/leave"
	"leaveflow.org/internal/stream"
)

// Notifier is the slice of the notification dispatcher the steps need.
type Notifier interface {
	SendApprovalRequest(ctx context.Context, leaveRequestID, taskToken string) (string, error)
	SendOutcome(ctx context.Context, leaveRequestID string, status leave.Status) error
}

// StepSet binds the workflow steps to their collaborators: the record store
// for the status write and the dispatcher for both notifications.
type StepSet struct {
	store    leave.Store
	notifier Notifier
	stream   *stream.Stream
}

var _ Tasks = (*StepSet)(nil)

// NewStepSet wires the task implementations. stream may be nil when no live
// feed is wanted.
func NewStepSet(store leave.Store, notifier Notifier, s *stream.Stream) *StepSet {
	return &StepSet{store: store, notifier: notifier, stream: s}
}

func (s *StepSet) SendApprovalRequest(ctx context.Context, leaveRequestID, taskToken string) (string, error) {
	return s.notifier.SendApprovalRequest(ctx, leaveRequestID, taskToken)
}

// UpdateLeaveStatus performs the terminal store write. The conditional
// update refuses to overwrite a terminal status, so a duplicate resume that
// somehow bypassed token enforcement cannot flip a decision.
func (s *StepSet) UpdateLeaveStatus(ctx context.Context, leaveRequestID string, status leave.Status) error {
	if err := s.store.UpdateStatus(ctx, leaveRequestID, status); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "leave.status.updated", map[string]any{
		"leave_request_id": leaveRequestID,
		"status":           string(status),
	})
	if s.stream != nil {
		s.stream.Publish(stream.DecisionEvent{
			LeaveRequestID: leaveRequestID,
			Status:         status,
			Timestamp:      time.Now().UTC(),
		})
	}
	return nil
}

func (s *StepSet) SendOutcome(ctx context.Context, leaveRequestID string, status leave.Status) error {
	return s.notifier.SendOutcome(ctx, leaveRequestID, status)
}
