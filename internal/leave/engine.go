package leave

import "context"

// ExecutionInput is the correlation input passed when an execution starts.
// By convention it carries the leave request id, which ties the execution to
// exactly one request.
type ExecutionInput struct {
	LeaveRequestID string `json:"leaveRequestId"`
}

// TaskResult is the payload handed to the engine when a suspended step is
// completed.
type TaskResult struct {
	Status         Decision `json:"status"`
	LeaveRequestID string   `json:"leaveRequestId"`
}

// Engine is the workflow engine surface the correlator depends on. The
// engine is the sole authority on task-token validity: CompleteTask must
// accept a given token at most once and fail ErrInvalidToken for unknown or
// already consumed tokens.
type Engine interface {
	StartExecution(ctx context.Context, input ExecutionInput) (string, error)
	CompleteTask(ctx context.Context, taskToken string, result TaskResult) error
}
