package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"leaveflow.org/internal/audit"
	"leaveflow.org/internal/auth"
	"leaveflow.org/internal/leave"
)

type submitResponse struct {
	LeaveRequestID string `json:"leaveRequestId"`
}

type resolveResponse struct {
	Message string           `json:"message"`
	Data    leave.ResolveAck `json:"data"`
}

func (a *API) handleLeaveCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.submitLeave(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost)
	}
}

func (a *API) handleLeaveResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/leave-requests/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getLeave(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet)
	}
}

func (a *API) submitLeave(w http.ResponseWriter, r *http.Request) {
	var in leave.SubmitInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	identity, _ := auth.IdentityFromContext(r.Context())
	id, err := a.leave.Submit(r.Context(), identity, in)
	if err != nil {
		handleLeaveError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "leave.request.submitted", map[string]any{
		"leave_request_id": id,
		"start_date":       in.StartDate,
		"end_date":         in.EndDate,
	})

	writeJSON(w, http.StatusOK, submitResponse{LeaveRequestID: id})
}

// resolveLeave accepts the form post from the approval email. The task token
// in the body is the credential; no bearer token is required here.
func (a *API) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed form body")
		return
	}

	in := leave.ResolveInput{
		LeaveRequestID: r.PostFormValue("leaveRequestId"),
		Action:         r.PostFormValue("action"),
		TaskToken:      r.PostFormValue("taskToken"),
	}
	ack, err := a.leave.Resolve(r.Context(), in)
	if err != nil {
		handleLeaveError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "leave.request.resolved", map[string]any{
		"leave_request_id": ack.LeaveRequestID,
		"action":           string(ack.Action),
	})

	writeJSON(w, http.StatusOK, resolveResponse{
		Message: "Action submitted",
		Data:    ack,
	})
}

func (a *API) getLeave(w http.ResponseWriter, r *http.Request, id string) {
	identity, _ := auth.IdentityFromContext(r.Context())
	request, err := a.leave.Get(r.Context(), identity, id)
	if err != nil {
		handleLeaveError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func handleLeaveError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, leave.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, leave.ErrApproverUnresolved):
		writeError(w, r, http.StatusBadRequest, "manager not found")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, leave.ErrInvalidToken):
		// No detail: consumed and forged tokens must be indistinguishable.
		writeError(w, r, http.StatusForbidden, "invalid token")
	case errors.Is(err, leave.ErrNotFound):
		statusForNotFound(w, r)
	case errors.Is(err, leave.ErrAlreadyResolved):
		writeError(w, r, http.StatusConflict, "request already resolved")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// statusForNotFound keeps submit-time lookups a 4xx while resource reads get
// a plain 404.
func statusForNotFound(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		writeError(w, r, http.StatusBadRequest, "manager not found")
		return
	}
	writeError(w, r, http.StatusNotFound, "leave request not found")
}
