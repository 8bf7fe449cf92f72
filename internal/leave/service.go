package leave

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"leaveflow.org/internal/auth"
	"leaveflow.org/internal/obs"
)

// dateLayout is the wire format for startDate and endDate.
const dateLayout = "2006-01-02"

// Service is the workflow correlator: it creates request records, starts the
// correlated execution, and hands resolve decisions to the engine. It holds
// no mutable state of its own; every operation is an independent unit of
// work.
type Service struct {
	store  Store
	engine Engine
}

// NewService constructs the correlator with injected collaborators.
func NewService(store Store, engine Engine) *Service {
	return &Service{store: store, engine: engine}
}

// SubmitInput carries the employee-supplied fields of a submission.
type SubmitInput struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Reason    string `json:"reason"`
}

func (in *SubmitInput) validate() error {
	in.StartDate = strings.TrimSpace(in.StartDate)
	in.EndDate = strings.TrimSpace(in.EndDate)
	in.Reason = strings.TrimSpace(in.Reason)
	if in.StartDate == "" || in.EndDate == "" || in.Reason == "" {
		return fmt.Errorf("%w: startDate, endDate and reason are required", ErrInvalidInput)
	}
	start, err := time.Parse(dateLayout, in.StartDate)
	if err != nil {
		return fmt.Errorf("%w: startDate must be YYYY-MM-DD", ErrInvalidInput)
	}
	end, err := time.Parse(dateLayout, in.EndDate)
	if err != nil {
		return fmt.Errorf("%w: endDate must be YYYY-MM-DD", ErrInvalidInput)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: endDate precedes startDate", ErrInvalidInput)
	}
	return nil
}

// Submit creates a Pending request for the authenticated employee and starts
// the correlated workflow execution. It returns the new leave request id.
//
// Ordering: nothing is written until authorization and validation pass. If
// the engine start fails after the record write, the Pending record is left
// in place (no compensating delete); the failure is surfaced to the caller.
func (s *Service) Submit(ctx context.Context, identity *auth.Identity, in SubmitInput) (string, error) {
	if err := auth.Authorize(identity, auth.ActionSubmitLeave); err != nil {
		return "", err
	}
	if err := in.validate(); err != nil {
		return "", err
	}

	submitter, err := s.store.GetUser(ctx, identity.SubjectID)
	if err != nil {
		return "", fmt.Errorf("resolve submitter %s: %w", identity.SubjectID, err)
	}
	if strings.TrimSpace(submitter.ManagerID) == "" {
		return "", fmt.Errorf("user %s: %w", identity.SubjectID, ErrApproverUnresolved)
	}

	request := LeaveRequest{
		LeaveRequestID: uuid.NewString(),
		UserID:         identity.SubjectID,
		ApproverID:     submitter.ManagerID,
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		Reason:         in.Reason,
		Status:         StatusPending,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateRequest(ctx, request); err != nil {
		return "", fmt.Errorf("persist request: %w", err)
	}

	executionID, err := s.engine.StartExecution(ctx, ExecutionInput{LeaveRequestID: request.LeaveRequestID})
	if err != nil {
		// The Pending record is orphaned here. No reconciliation sweep
		// exists yet; the record stays for manual follow-up.
		obs.LogRequest(map[string]any{
			"ts":               time.Now().UTC().Format(time.RFC3339Nano),
			"level":            "error",
			"msg":              "execution_start_failed",
			"leave_request_id": request.LeaveRequestID,
			"error":            err.Error(),
		})
		return "", fmt.Errorf("start execution: %w", err)
	}

	obs.IncLeaveSubmitted()
	obs.LogRequest(map[string]any{
		"ts":               time.Now().UTC().Format(time.RFC3339Nano),
		"level":            "info",
		"msg":              "leave_request_submitted",
		"leave_request_id": request.LeaveRequestID,
		"execution_id":     executionID,
		"approver_id":      request.ApproverID,
	})
	return request.LeaveRequestID, nil
}

// ResolveInput carries the out-of-band decision for a suspended execution.
type ResolveInput struct {
	LeaveRequestID string
	Action         string
	TaskToken      string
}

// ResolveAck acknowledges that the engine accepted the decision. The terminal
// status write happens asynchronously in the resumed execution, so the ack
// reports acceptance, not durability.
type ResolveAck struct {
	LeaveRequestID string   `json:"leaveRequestId"`
	Action         Decision `json:"action"`
}

// Resolve hands the task token and decision to the engine. The engine is the
// only authority on token validity; a consumed or unknown token fails with
// ErrInvalidToken and is never retried here, since retrying consumption of a
// one-shot token is by definition invalid.
func (s *Service) Resolve(ctx context.Context, in ResolveInput) (ResolveAck, error) {
	in.LeaveRequestID = strings.TrimSpace(in.LeaveRequestID)
	in.TaskToken = strings.TrimSpace(in.TaskToken)
	if in.LeaveRequestID == "" || strings.TrimSpace(in.Action) == "" || in.TaskToken == "" {
		return ResolveAck{}, fmt.Errorf("%w: leaveRequestId, action and taskToken are required", ErrInvalidInput)
	}
	decision, err := ParseDecision(in.Action)
	if err != nil {
		return ResolveAck{}, err
	}

	result := TaskResult{Status: decision, LeaveRequestID: in.LeaveRequestID}
	if err := s.engine.CompleteTask(ctx, in.TaskToken, result); err != nil {
		return ResolveAck{}, err
	}

	obs.IncLeaveResolved(string(decision))
	obs.LogRequest(map[string]any{
		"ts":               time.Now().UTC().Format(time.RFC3339Nano),
		"level":            "info",
		"msg":              "leave_request_resolved",
		"leave_request_id": in.LeaveRequestID,
		"action":           string(decision),
	})
	return ResolveAck{LeaveRequestID: in.LeaveRequestID, Action: decision}, nil
}

// Get returns a stored request, authorizing the read: the owning employee,
// the snapshotted approver, and anyone with the manager role may see it.
func (s *Service) Get(ctx context.Context, identity *auth.Identity, leaveRequestID string) (LeaveRequest, error) {
	if err := auth.Authorize(identity, auth.ActionReadLeave); err != nil {
		return LeaveRequest{}, err
	}
	leaveRequestID = strings.TrimSpace(leaveRequestID)
	if leaveRequestID == "" {
		return LeaveRequest{}, fmt.Errorf("%w: leaveRequestId is required", ErrInvalidInput)
	}
	request, err := s.store.GetRequest(ctx, leaveRequestID)
	if err != nil {
		return LeaveRequest{}, err
	}
	if identity.SubjectID != request.UserID &&
		identity.SubjectID != request.ApproverID &&
		identity.Role != auth.RoleManager {
		return LeaveRequest{}, auth.ErrForbidden
	}
	return request, nil
}
