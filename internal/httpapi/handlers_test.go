package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"

	"leaveflow.org/internal/auth"
	"leaveflow.org/internal/leave"
	"leaveflow.org/internal/notify"
	"leaveflow.org/internal/store/memory"
	"leaveflow.org/internal/stream"
	"leaveflow.org/internal/workflow"
)

type recordMailer struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (m *recordMailer) Send(ctx context.Context, msg notify.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return "msg-1", nil
}

func (m *recordMailer) messages() []notify.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]notify.Message, len(m.sent))
	copy(out, m.sent)
	return out
}

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T

	store  *memory.Store
	mailer *recordMailer
	engine *workflow.InProcess
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	t.Setenv("LEAVEFLOW_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()

	store := memory.New()
	store.PutUser(leave.User{
		UserID:    "u-1",
		Role:      "employee",
		ManagerID: "m-1",
		Email:     "employee@leaveflow.example",
		Name:      "Employee One",
	})
	store.PutUser(leave.User{
		UserID: "m-1",
		Role:   "manager",
		Email:  "manager@leaveflow.example",
		Name:   "Manager One",
	})
	store.PutUser(leave.User{
		UserID:    "u-2",
		Role:      "employee",
		ManagerID: "m-1",
		Email:     "other@leaveflow.example",
		Name:      "Employee Two",
	})

	mailer := &recordMailer{}
	events := stream.New()
	dispatcher := notify.NewDispatcher(store, mailer,
		"noreply@leaveflow.example", "https://leaveflow.example/v1/leave-requests/resolve")
	engine := workflow.NewInProcess(workflow.NewStepSet(store, dispatcher, events))
	svc := leave.NewService(store, engine)

	api := New(ReadyProbe{}, "test", svc, events)
	api.rateBurst = 100
	api.ratePerSec = 100

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
		store:   store,
		mailer:  mailer,
		engine:  engine,
	}
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) postForm(path string, form url.Values) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do form request: %v", err)
	}
	return resp
}

func (c *apiClient) get(path string, headers map[string]string) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func (c *apiClient) obtainToken(user, role string) string {
	c.t.Helper()
	resp := c.post("/v1/auth/token", map[string]any{
		"user": user,
		"role": role,
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected token status: %d", resp.StatusCode)
	}
	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.t.Fatalf("decode token response: %v", err)
	}
	if payload.Token == "" {
		c.t.Fatalf("empty token issued")
	}
	return payload.Token
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

var taskTokenRe = regexp.MustCompile(`name="taskToken" value="([^"]+)"`)

// submitAndFetchToken drives a submission through the API and pulls the task
// token out of the approval email, the way a manager's mail client would.
func (c *apiClient) submitAndFetchToken(authHeader map[string]string) (string, string) {
	c.t.Helper()

	resp := c.post("/v1/leave-requests", map[string]any{
		"startDate": "2025-08-10",
		"endDate":   "2025-08-15",
		"reason":    "family event",
	}, authHeader)
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected submit status: %d", resp.StatusCode)
	}
	submitted := decode[submitResponse](c.t, resp)
	if submitted.LeaveRequestID == "" {
		c.t.Fatalf("empty leaveRequestId in submit response")
	}

	c.engine.Wait()

	msgs := c.mailer.messages()
	if len(msgs) != 1 {
		c.t.Fatalf("expected one approval email, got %d", len(msgs))
	}
	if len(msgs[0].To) != 1 || msgs[0].To[0] != "manager@leaveflow.example" {
		c.t.Fatalf("approval email sent to %v", msgs[0].To)
	}
	m := taskTokenRe.FindStringSubmatch(msgs[0].HTML)
	if m == nil {
		c.t.Fatalf("approval email carries no task token:\n%s", msgs[0].HTML)
	}
	return submitted.LeaveRequestID, m[1]
}

func TestAPISubmitApproveFlow(t *testing.T) {
	api := newTestAPI(t)
	token := api.obtainToken("u-1", "employee")
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	id, taskToken := api.submitAndFetchToken(authHeader)

	resp := api.postForm("/v1/leave-requests/resolve", url.Values{
		"leaveRequestId": {id},
		"action":         {"approve"},
		"taskToken":      {taskToken},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected resolve status: %d", resp.StatusCode)
	}
	ack := decode[resolveResponse](t, resp)
	if ack.Message != "Action submitted" {
		t.Fatalf("unexpected resolve message: %q", ack.Message)
	}
	if ack.Data.LeaveRequestID != id || ack.Data.Action != leave.DecisionApprove {
		t.Fatalf("unexpected resolve ack: %+v", ack.Data)
	}

	api.engine.Wait()

	req, err := api.store.GetRequest(context.Background(), id)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if req.Status != leave.StatusApproved {
		t.Fatalf("status = %q, want Approved", req.Status)
	}

	msgs := api.mailer.messages()
	if len(msgs) != 2 {
		t.Fatalf("expected outcome email, got %d messages", len(msgs))
	}
	outcome := msgs[1]
	if len(outcome.To) != 1 || outcome.To[0] != "employee@leaveflow.example" {
		t.Fatalf("outcome email sent to %v", outcome.To)
	}
	if !strings.Contains(outcome.Text, "2025-08-10 to 2025-08-15") {
		t.Fatalf("outcome email missing date range: %q", outcome.Text)
	}
	if !strings.Contains(outcome.Text, "approved") {
		t.Fatalf("outcome email missing decision: %q", outcome.Text)
	}
}

func TestAPIRejectFlow(t *testing.T) {
	api := newTestAPI(t)
	token := api.obtainToken("u-1", "employee")
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	id, taskToken := api.submitAndFetchToken(authHeader)

	resp := api.postForm("/v1/leave-requests/resolve", url.Values{
		"leaveRequestId": {id},
		"action":         {"reject"},
		"taskToken":      {taskToken},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected resolve status: %d", resp.StatusCode)
	}
	api.engine.Wait()

	req, err := api.store.GetRequest(context.Background(), id)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if req.Status != leave.StatusRejected {
		t.Fatalf("status = %q, want Rejected", req.Status)
	}
	msgs := api.mailer.messages()
	if len(msgs) != 2 || !strings.Contains(msgs[1].Text, "rejected") {
		t.Fatalf("expected rejection outcome email, got %+v", msgs)
	}
}

func TestAPITokenSingleUse(t *testing.T) {
	api := newTestAPI(t)
	token := api.obtainToken("u-1", "employee")
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	id, taskToken := api.submitAndFetchToken(authHeader)

	form := url.Values{
		"leaveRequestId": {id},
		"action":         {"approve"},
		"taskToken":      {taskToken},
	}
	resp := api.postForm("/v1/leave-requests/resolve", form)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first resolve status: %d", resp.StatusCode)
	}
	api.engine.Wait()

	resp = api.postForm("/v1/leave-requests/resolve", form)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("token reuse status = %d, want 403", resp.StatusCode)
	}
	errBody := decode[map[string]any](t, resp)
	if errBody["error"] != "invalid token" {
		t.Fatalf("unexpected reuse error: %v", errBody["error"])
	}
}

func TestAPIResolveRejectsBadInput(t *testing.T) {
	api := newTestAPI(t)

	cases := []struct {
		name string
		form url.Values
		want int
	}{
		{"missing token", url.Values{"leaveRequestId": {"r-1"}, "action": {"approve"}}, http.StatusBadRequest},
		{"missing id", url.Values{"action": {"approve"}, "taskToken": {"tok"}}, http.StatusBadRequest},
		{"bad action", url.Values{"leaveRequestId": {"r-1"}, "action": {"maybe"}, "taskToken": {"tok"}}, http.StatusBadRequest},
		{"forged token", url.Values{"leaveRequestId": {"r-1"}, "action": {"approve"}, "taskToken": {"forged"}}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := api.postForm("/v1/leave-requests/resolve", tc.form)
			resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestAPISubmitRejectsManagers(t *testing.T) {
	api := newTestAPI(t)
	token := api.obtainToken("m-1", "manager")

	resp := api.post("/v1/leave-requests", map[string]any{
		"startDate": "2025-08-10",
		"endDate":   "2025-08-15",
		"reason":    "vacation",
	}, map[string]string{"Authorization": "Bearer " + token})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	if len(api.mailer.messages()) != 0 {
		t.Fatalf("forbidden submit must not notify anyone")
	}
}

func TestAPISubmitValidation(t *testing.T) {
	api := newTestAPI(t)
	token := api.obtainToken("u-1", "employee")
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing fields", map[string]any{"startDate": "2025-08-10"}},
		{"bad date", map[string]any{"startDate": "08/10/2025", "endDate": "2025-08-15", "reason": "x"}},
		{"inverted range", map[string]any{"startDate": "2025-08-15", "endDate": "2025-08-10", "reason": "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := api.post("/v1/leave-requests", tc.body, authHeader)
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestAPIGetLeaveRequest(t *testing.T) {
	api := newTestAPI(t)
	owner := map[string]string{"Authorization": "Bearer " + api.obtainToken("u-1", "employee")}
	id, _ := api.submitAndFetchToken(owner)

	resp := api.get("/v1/leave-requests/"+id, owner)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("owner get status: %d", resp.StatusCode)
	}
	got := decode[leave.LeaveRequest](t, resp)
	if got.LeaveRequestID != id || got.Status != leave.StatusPending {
		t.Fatalf("unexpected request payload: %+v", got)
	}

	manager := map[string]string{"Authorization": "Bearer " + api.obtainToken("m-1", "manager")}
	resp = api.get("/v1/leave-requests/"+id, manager)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("manager get status: %d", resp.StatusCode)
	}

	stranger := map[string]string{"Authorization": "Bearer " + api.obtainToken("u-2", "employee")}
	resp = api.get("/v1/leave-requests/"+id, stranger)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("stranger get status = %d, want 403", resp.StatusCode)
	}

	resp = api.get("/v1/leave-requests/missing", manager)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing get status = %d, want 404", resp.StatusCode)
	}
}

func TestAPIEnforcesAuth(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/leave-requests", map[string]any{
		"startDate": "2025-08-10",
		"endDate":   "2025-08-15",
		"reason":    "vacation",
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatalf("expected WWW-Authenticate challenge")
	}
	var errBody map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&errBody); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errBody["error"] == "" {
		t.Fatalf("expected error message")
	}
}

func TestAPIRejectsGarbageBearer(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/leave-requests", map[string]any{
		"startDate": "2025-08-10",
		"endDate":   "2025-08-15",
		"reason":    "vacation",
	}, map[string]string{"Authorization": "Bearer not.a.jwt"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestTokenEndpointValidation(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/auth/token", map[string]any{"user": ""}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	resp = api.post("/v1/auth/token", map[string]any{"user": "u-1", "role": "root"}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown role, got %d", resp.StatusCode)
	}
}

func TestHealthAndInfo(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/healthz", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status: %d", resp.StatusCode)
	}

	resp = api.get("/v1/info", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("info status: %d", resp.StatusCode)
	}
	info := decode[map[string]any](t, resp)
	if info["name"] != serviceName {
		t.Fatalf("unexpected service name: %v", info["name"])
	}
}
