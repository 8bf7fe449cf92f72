// Package notify composes and sends the two workflow notifications: the
// approval request to the manager and the outcome message to the employee.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"golang.org/x/sync/errgroup"

	"leaveflow.org/internal/leave"
	"leaveflow.org/internal/obs"
)

var (
	// ErrRequestNotFound fails a notification step whose request record is absent.
	ErrRequestNotFound = errors.New("notify: leave request not found")
	// ErrPartyNotFound fails a step when the employee or approver record is absent.
	ErrPartyNotFound = errors.New("notify: user or approver not found")
)

// Dispatcher builds and sends notification messages. Records are fetched
// fresh immediately before composing each message; nothing is cached.
type Dispatcher struct {
	store      leave.Store
	mailer     Mailer
	from       string
	resolveURL string
}

// NewDispatcher constructs a dispatcher. resolveURL is the public endpoint
// the approval form posts to.
func NewDispatcher(store leave.Store, mailer Mailer, from, resolveURL string) *Dispatcher {
	return &Dispatcher{store: store, mailer: mailer, from: from, resolveURL: resolveURL}
}

// SendApprovalRequest mails the approver a form carrying the request id and
// the task token as hidden fields. It returns the provider message id.
func (d *Dispatcher) SendApprovalRequest(ctx context.Context, leaveRequestID, taskToken string) (string, error) {
	request, err := d.store.GetRequest(ctx, leaveRequestID)
	if err != nil {
		if errors.Is(err, leave.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrRequestNotFound, leaveRequestID)
		}
		return "", fmt.Errorf("fetch request %s: %w", leaveRequestID, err)
	}

	// Employee and approver lookups are independent; fetch them together and
	// require both before composing.
	var employee, approver leave.User
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		employee, err = d.store.GetUser(gctx, request.UserID)
		return err
	})
	g.Go(func() error {
		var err error
		approver, err = d.store.GetUser(gctx, request.ApproverID)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, leave.ErrNotFound) {
			return "", fmt.Errorf("%w: request %s", ErrPartyNotFound, leaveRequestID)
		}
		return "", fmt.Errorf("fetch parties for %s: %w", leaveRequestID, err)
	}

	text := fmt.Sprintf(`Approve or reject leave %s by POST %s with:
{
  "leaveRequestId": %q,
  "action": "approve"|"reject",
  "taskToken": %q
}`, leaveRequestID, d.resolveURL, leaveRequestID, taskToken)

	htmlBody := fmt.Sprintf(`<p>
%s has requested leave from %s to %s.
Please approve or reject the leave request %s.
</p>
<form method="POST" action=%q>
<input type="hidden" name="leaveRequestId" value=%q>
<input type="hidden" name="taskToken" value=%q>
<button type="submit" name="action" value="approve" style="background-color: green; color: white;">Approve</button>
<button type="submit" name="action" value="reject" style="background-color: red; color: white;">Reject</button>
</form>`,
		html.EscapeString(employee.Name), request.StartDate, request.EndDate,
		leaveRequestID, d.resolveURL, leaveRequestID, taskToken)

	messageID, err := d.mailer.Send(ctx, Message{
		From:    d.from,
		To:      []string{approver.Email},
		Subject: "Leave Request Approval",
		Text:    text,
		HTML:    htmlBody,
	})
	if err != nil {
		return "", fmt.Errorf("send approval request for %s: %w", leaveRequestID, err)
	}
	obs.IncNotificationSent("approval_request")
	return messageID, nil
}

// SendOutcome mails the employee the terminal decision. The status write is
// already durable when the workflow invokes this step.
func (d *Dispatcher) SendOutcome(ctx context.Context, leaveRequestID string, status leave.Status) error {
	request, err := d.store.GetRequest(ctx, leaveRequestID)
	if err != nil {
		if errors.Is(err, leave.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrRequestNotFound, leaveRequestID)
		}
		return fmt.Errorf("fetch request %s: %w", leaveRequestID, err)
	}
	employee, err := d.store.GetUser(ctx, request.UserID)
	if err != nil {
		if errors.Is(err, leave.ErrNotFound) {
			return fmt.Errorf("%w: employee %s", ErrPartyNotFound, request.UserID)
		}
		return fmt.Errorf("fetch employee %s: %w", request.UserID, err)
	}

	text := fmt.Sprintf("Your leave request from %s to %s (ID: %s) has been %s.",
		request.StartDate, request.EndDate, leaveRequestID, strings.ToLower(string(status)))

	if _, err := d.mailer.Send(ctx, Message{
		From:    d.from,
		To:      []string{employee.Email},
		Subject: "Leave Request Update",
		Text:    text,
	}); err != nil {
		return fmt.Errorf("send outcome for %s: %w", leaveRequestID, err)
	}
	obs.IncNotificationSent("outcome")
	return nil
}
