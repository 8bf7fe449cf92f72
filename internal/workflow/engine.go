// Package workflow runs leave-approval orchestrations in process. An
// execution suspends after the approval notification goes out and resumes
// exactly once when a valid task token is presented.
package workflow

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"leaveflow.org/internal/ids"
	"leaveflow.org/internal/leave"
	"leaveflow.org/internal/obs"
)

// Tasks are the steps an execution invokes: the approval notification before
// suspending, then the status write and the outcome notification after
// resuming. UpdateLeaveStatus always runs before SendOutcome, and an outcome
// failure never rolls the status back.
type Tasks interface {
	SendApprovalRequest(ctx context.Context, leaveRequestID, taskToken string) (string, error)
	UpdateLeaveStatus(ctx context.Context, leaveRequestID string, status leave.Status) error
	SendOutcome(ctx context.Context, leaveRequestID string, status leave.Status) error
}

// State is the lifecycle of one execution.
type State string

const (
	StateRunning   State = "Running"
	StateSuspended State = "Suspended"
	StateCompleted State = "Completed"
	StateFailed    State = "Failed"
)

type execution struct {
	id             string
	leaveRequestID string
	state          State
}

const defaultStepTimeout = 15 * time.Second

// InProcess is the in-process engine. Token single-use is enforced under one
// mutex: of N concurrent CompleteTask calls bearing the same token, exactly
// one wins and the rest fail leave.ErrInvalidToken.
type InProcess struct {
	tasks       Tasks
	stepTimeout time.Duration

	mu     sync.Mutex
	execs  map[string]*execution
	tokens map[string]*execution

	wg sync.WaitGroup
}

var _ leave.Engine = (*InProcess)(nil)

// Option configures the engine.
type Option func(*InProcess)

// WithStepTimeout bounds each task invocation.
func WithStepTimeout(d time.Duration) Option {
	return func(e *InProcess) {
		if d > 0 {
			e.stepTimeout = d
		}
	}
}

// NewInProcess constructs the engine around the given task set.
func NewInProcess(tasks Tasks, opts ...Option) *InProcess {
	e := &InProcess{
		tasks:       tasks,
		stepTimeout: defaultStepTimeout,
		execs:       make(map[string]*execution),
		tokens:      make(map[string]*execution),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartExecution registers a new execution correlated to the leave request
// and runs it until its first suspension point. The approval notification is
// dispatched asynchronously; start acceptance does not wait for it.
func (e *InProcess) StartExecution(ctx context.Context, input leave.ExecutionInput) (string, error) {
	if input.LeaveRequestID == "" {
		return "", fmt.Errorf("%w: execution input requires leaveRequestId", leave.ErrInvalidInput)
	}

	exec := &execution{
		id:             ids.New(),
		leaveRequestID: input.LeaveRequestID,
		state:          StateRunning,
	}
	e.mu.Lock()
	e.execs[exec.id] = exec
	e.mu.Unlock()

	obs.WorkflowStarted()
	e.wg.Add(1)
	go e.runToSuspension(exec)
	return exec.id, nil
}

func (e *InProcess) runToSuspension(exec *execution) {
	defer e.wg.Done()

	token, err := mintToken()
	if err != nil {
		e.finish(exec, StateFailed)
		e.logStep(exec, "mint_token", err)
		return
	}

	e.mu.Lock()
	e.tokens[token] = exec
	exec.state = StateSuspended
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.stepTimeout)
	defer cancel()
	if _, err := e.tasks.SendApprovalRequest(ctx, exec.leaveRequestID, token); err != nil {
		// The approver never received a usable token; revoke it so the
		// execution cannot be resumed through a failed notification.
		e.mu.Lock()
		delete(e.tokens, token)
		e.mu.Unlock()
		e.finish(exec, StateFailed)
		e.logStep(exec, "send_approval_request", err)
	}
}

// CompleteTask consumes the token and resumes the suspended execution. The
// result must be scoped to the request the token was minted for. Acceptance
// is acknowledged immediately; the resumed steps run asynchronously.
func (e *InProcess) CompleteTask(ctx context.Context, taskToken string, result leave.TaskResult) error {
	e.mu.Lock()
	exec, ok := e.tokens[taskToken]
	if !ok || exec.state != StateSuspended {
		e.mu.Unlock()
		return leave.ErrInvalidToken
	}
	if result.LeaveRequestID != exec.leaveRequestID {
		e.mu.Unlock()
		return leave.ErrInvalidToken
	}
	delete(e.tokens, taskToken) // single use
	exec.state = StateRunning
	e.mu.Unlock()

	e.wg.Add(1)
	go e.resume(exec, result)
	return nil
}

func (e *InProcess) resume(exec *execution, result leave.TaskResult) {
	defer e.wg.Done()

	status := result.Status.Status()

	ctx, cancel := context.WithTimeout(context.Background(), e.stepTimeout)
	defer cancel()

	if err := e.tasks.UpdateLeaveStatus(ctx, exec.leaveRequestID, status); err != nil {
		e.finish(exec, StateFailed)
		e.logStep(exec, "update_leave_status", err)
		return
	}
	// Update then notify, in that order; a notification failure does not
	// roll back the durable status.
	if err := e.tasks.SendOutcome(ctx, exec.leaveRequestID, status); err != nil {
		e.logStep(exec, "send_outcome", err)
	}
	e.finish(exec, StateCompleted)
}

func (e *InProcess) finish(exec *execution, state State) {
	e.mu.Lock()
	exec.state = state
	e.mu.Unlock()
	obs.WorkflowFinished()
}

func (e *InProcess) logStep(exec *execution, step string, err error) {
	obs.LogRequest(map[string]any{
		"ts":               time.Now().UTC().Format(time.RFC3339Nano),
		"level":            "error",
		"msg":              "workflow_step_failed",
		"execution_id":     exec.id,
		"leave_request_id": exec.leaveRequestID,
		"step":             step,
		"error":            err.Error(),
	})
}

// ExecutionState reports the state of an execution, mostly for tests and
// introspection.
func (e *InProcess) ExecutionState(executionID string) (State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exec, ok := e.execs[executionID]
	if !ok {
		return "", false
	}
	return exec.state, true
}

// Wait blocks until all in-flight executions settle. Used by tests and by
// graceful shutdown.
func (e *InProcess) Wait() { e.wg.Wait() }

// mintToken returns 256 bits of entropy encoded for form transport.
func mintToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("mint task token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
