package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jobtrackhq/jobtrack/internal/app"
	"github.com/jobtrackhq/jobtrack/internal/app/domain/user"
)

func newTestHandler(t *testing.T) (*app.Application, http.Handler) {
	t.Helper()
	application, err := app.New(app.Stores{}, app.Config{TokenSecret: "test-secret", TokenTTL: time.Hour}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("start application: %v", err)
	}
	t.Cleanup(func() { _ = application.Stop(context.Background()) })

	return application, NewHandler(application, Options{}, nil)
}

func marshal(t *testing.T, payload any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return bytes.NewReader(b)
}

func do(handler http.Handler, method, path, token string, body *bytes.Reader) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, body)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func registerUser(t *testing.T, handler http.Handler, name, email string) string {
	t.Helper()
	resp := do(handler, http.MethodPost, "/api/auth/register", "", marshal(t, map[string]string{
		"name":     name,
		"email":    email,
		"password": "password123",
	}))
	if resp.Code != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d: %s", email, resp.Code, resp.Body.String())
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal register response: %v", err)
	}
	if out.Token == "" {
		t.Fatal("expected token in register response")
	}
	return out.Token
}

func TestJobLifecycle(t *testing.T) {
	_, handler := newTestHandler(t)
	token := registerUser(t, handler, "Alice", "alice@example.com")

	resp := do(handler, http.MethodPost, "/api/jobs", token, marshal(t, map[string]string{
		"company":  "Initech",
		"role":     "Engineer",
		"location": "Remote",
	}))
	if resp.Code != http.StatusCreated {
		t.Fatalf("create job: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var created map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal created job: %v", err)
	}
	if created["status"] != "Applied" {
		t.Fatalf("expected default status Applied, got %v", created["status"])
	}
	id := created["id"].(string)

	resp = do(handler, http.MethodGet, "/api/jobs/"+id, token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("get job: expected 200, got %d", resp.Code)
	}

	resp = do(handler, http.MethodPut, "/api/jobs/"+id, token, marshal(t, map[string]string{
		"status": "Interview",
		"notes":  "phone screen scheduled",
	}))
	if resp.Code != http.StatusOK {
		t.Fatalf("update job: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var updated map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &updated); err != nil {
		t.Fatalf("unmarshal updated job: %v", err)
	}
	if updated["status"] != "Interview" {
		t.Fatalf("expected Interview after update, got %v", updated["status"])
	}

	resp = do(handler, http.MethodGet, "/api/jobs", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("list jobs: expected 200, got %d", resp.Code)
	}
	var list []map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal job list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 job, got %d", len(list))
	}

	resp = do(handler, http.MethodDelete, "/api/jobs/"+id, token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("delete job: expected 200, got %d", resp.Code)
	}

	resp = do(handler, http.MethodGet, "/api/jobs/"+id, token, nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("get deleted job: expected 404, got %d", resp.Code)
	}
}

func TestUpdateRejectsUnknownFields(t *testing.T) {
	_, handler := newTestHandler(t)
	token := registerUser(t, handler, "Alice", "alice@example.com")

	resp := do(handler, http.MethodPost, "/api/jobs", token, marshal(t, map[string]string{
		"company": "Initech", "role": "Engineer",
	}))
	if resp.Code != http.StatusCreated {
		t.Fatalf("create job: expected 201, got %d", resp.Code)
	}
	var created map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal created job: %v", err)
	}
	id := created["id"].(string)

	resp = do(handler, http.MethodPut, "/api/jobs/"+id, token, marshal(t, map[string]any{
		"status": "Interview",
		"userId": "someone-else",
	}))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", resp.Code)
	}
	var body struct {
		Fields []string `json:"fields"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal error body: %v", err)
	}
	if len(body.Fields) != 1 || body.Fields[0] != "userId" {
		t.Fatalf("expected offending field userId, got %v", body.Fields)
	}

	// No partial application of the valid field.
	resp = do(handler, http.MethodGet, "/api/jobs/"+id, token, nil)
	var after map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &after); err != nil {
		t.Fatalf("unmarshal job: %v", err)
	}
	if after["status"] != "Applied" {
		t.Fatalf("expected status unchanged, got %v", after["status"])
	}
}

func TestOwnershipIsolation(t *testing.T) {
	_, handler := newTestHandler(t)
	aliceToken := registerUser(t, handler, "Alice", "alice@example.com")
	bobToken := registerUser(t, handler, "Bob", "bob@example.com")

	resp := do(handler, http.MethodPost, "/api/jobs", aliceToken, marshal(t, map[string]string{
		"company": "Initech", "role": "Engineer",
	}))
	var created map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal created job: %v", err)
	}
	id := created["id"].(string)

	// Bob cannot see, update, or delete Alice's record; absence and
	// denial are indistinguishable.
	if resp := do(handler, http.MethodGet, "/api/jobs/"+id, bobToken, nil); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign get, got %d", resp.Code)
	}
	if resp := do(handler, http.MethodPut, "/api/jobs/"+id, bobToken, marshal(t, map[string]string{"notes": "mine now"})); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign update, got %d", resp.Code)
	}
	if resp := do(handler, http.MethodDelete, "/api/jobs/"+id, bobToken, nil); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign delete, got %d", resp.Code)
	}

	if resp := do(handler, http.MethodGet, "/api/jobs", bobToken, nil); resp.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", resp.Code)
	} else {
		var list []map[string]any
		if err := json.Unmarshal(resp.Body.Bytes(), &list); err != nil {
			t.Fatalf("unmarshal list: %v", err)
		}
		if len(list) != 0 {
			t.Fatalf("expected empty list for bob, got %d", len(list))
		}
	}
}

func TestAdminEndpoints(t *testing.T) {
	application, handler := newTestHandler(t)
	userToken := registerUser(t, handler, "Alice", "alice@example.com")

	admin, err := application.Users.Register(context.Background(), "Root", "root@example.com", "password123", user.RoleAdmin)
	if err != nil {
		t.Fatalf("register admin: %v", err)
	}
	adminToken, err := application.Issuer.Issue(admin)
	if err != nil {
		t.Fatalf("issue admin token: %v", err)
	}

	do(handler, http.MethodPost, "/api/jobs", userToken, marshal(t, map[string]string{
		"company": "Initech", "role": "Engineer",
	}))

	if resp := do(handler, http.MethodGet, "/api/jobs/admin/all", userToken, nil); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for applicant, got %d", resp.Code)
	}

	resp := do(handler, http.MethodGet, "/api/jobs/admin/all", adminToken, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("admin list: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var list []map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal admin list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 job across all users, got %d", len(list))
	}

	if resp := do(handler, http.MethodGet, "/api/admin/users", adminToken, nil); resp.Code != http.StatusOK {
		t.Fatalf("admin users: expected 200, got %d", resp.Code)
	}
	if resp := do(handler, http.MethodGet, "/api/admin/audit", adminToken, nil); resp.Code != http.StatusOK {
		t.Fatalf("admin audit: expected 200, got %d", resp.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	_, handler := newTestHandler(t)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/auth/me"},
		{http.MethodGet, "/api/jobs"},
		{http.MethodPost, "/api/jobs"},
		{http.MethodGet, "/api/jobs/some-id"},
	} {
		if resp := do(handler, tc.method, tc.path, "", nil); resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401 without token, got %d", tc.method, tc.path, resp.Code)
		}
	}

	if resp := do(handler, http.MethodGet, "/api/jobs", "not-a-jwt", nil); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for malformed token, got %d", resp.Code)
	}
}

func TestLoginAndMe(t *testing.T) {
	_, handler := newTestHandler(t)
	registerUser(t, handler, "Alice", "alice@example.com")

	resp := do(handler, http.MethodPost, "/api/auth/login", "", marshal(t, map[string]string{
		"email":    "alice@example.com",
		"password": "password123",
	}))
	if resp.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var out struct {
		Token string `json:"token"`
		User  struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal login response: %v", err)
	}
	if out.User.Email != "alice@example.com" {
		t.Fatalf("expected user email echoed, got %q", out.User.Email)
	}

	me := do(handler, http.MethodGet, "/api/auth/me", out.Token, nil)
	if me.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", me.Code)
	}

	bad := do(handler, http.MethodPost, "/api/auth/login", "", marshal(t, map[string]string{
		"email":    "alice@example.com",
		"password": "wrong",
	}))
	if bad.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad credentials, got %d", bad.Code)
	}
}

func TestRealtimeDeliveryThroughRouter(t *testing.T) {
	application, handler := newTestHandler(t)
	token := registerUser(t, handler, "Alice", "alice@example.com")

	srv := httptest.NewServer(handler)
	defer srv.Close()

	// The websocket upgrade must succeed behind the full middleware stack,
	// not just against a bare realtime handler.
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial /ws through router: %v", err)
	}
	defer ws.Close()

	if err := ws.WriteJSON(map[string]string{"token": token}); err != nil {
		t.Fatalf("send handshake: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for application.Registry.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection was not admitted in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp := do(handler, http.MethodPost, "/api/jobs", token, marshal(t, map[string]string{
		"company": "Initech", "role": "Engineer",
	}))
	if resp.Code != http.StatusCreated {
		t.Fatalf("create job: expected 201, got %d", resp.Code)
	}

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var note struct {
		Title     string    `json:"title"`
		Message   string    `json:"message"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := ws.ReadJSON(&note); err != nil {
		t.Fatalf("read notification: %v", err)
	}
	if note.Title != "New Job Application Added" {
		t.Fatalf("unexpected title %q", note.Title)
	}
	if note.Timestamp.IsZero() {
		t.Fatal("expected delivery timestamp")
	}
}

func TestOperationalEndpoints(t *testing.T) {
	_, handler := newTestHandler(t)

	resp := do(handler, http.MethodGet, "/healthz", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", resp.Code)
	}

	resp = do(handler, http.MethodGet, "/metrics", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", resp.Code)
	}
	if resp.Body.Len() == 0 {
		t.Fatal("expected metrics output to be non-empty")
	}
}
