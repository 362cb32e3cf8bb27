package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	authdomain "foratask-backend/internal/auth/domain"
	"foratask-backend/internal/testutil"
	"foratask-backend/pkg/clock"
	"foratask-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

type testServer struct {
	app    *App
	engine *gin.Engine
	clock  *clock.Manual
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		JWTSecret:       "test-secret",
		JWTAccessExpiry: time.Hour,
		ScanInterval:    time.Minute,
		NotificationTTL: 48 * time.Hour,
		PushBatchSize:   100,
		TaskLockTTL:     10 * time.Second,
	}
	clk := clock.NewManual(time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC))

	app, err := NewApp(context.Background(), cfg, testutil.NewDB(t), clk)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(app.Close)

	return &testServer{app: app, engine: app.Router().Engine(), clock: clk}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := s.app.Auth.IssueToken(authdomain.Actor{ID: userID, CompanyID: "c1"}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (s *testServer) do(t *testing.T, method, path, userID string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(t, userID))
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	out := map[string]interface{}{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w.Code, out
}

func (s *testServer) createTask(t *testing.T) string {
	t.Helper()
	code, body := s.do(t, http.MethodPost, "/api/tasks", "boss", map[string]interface{}{
		"title":       "Prepare invoice",
		"assignees":   []string{"a1"},
		"observers":   []string{"obs"},
		"dueDateTime": "2024-03-06T09:00:00Z",
	})
	if code != http.StatusCreated {
		t.Fatalf("create task: %d %v", code, body)
	}
	id, _ := body["taskId"].(string)
	if id == "" {
		t.Fatalf("create task returned no id: %v", body)
	}
	return id
}

func findApproval(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	list, _ := body["notifications"].([]interface{})
	for _, item := range list {
		n, _ := item.(map[string]interface{})
		if n["type"] == "taskApproval" {
			id, _ := n["id"].(string)
			return id
		}
	}
	t.Fatalf("no approval request in %v", body)
	return ""
}

func TestHealthAndAuth(t *testing.T) {
	s := newTestServer(t)

	if code, _ := s.do(t, http.MethodGet, "/api/health", "", nil); code != http.StatusOK {
		t.Errorf("health: expected 200, got %d", code)
	}
	if code, _ := s.do(t, http.MethodGet, "/api/tasks", "", nil); code != http.StatusUnauthorized {
		t.Errorf("tasks without token: expected 401, got %d", code)
	}

	code, body := s.do(t, http.MethodGet, "/api/auth/me", "a1", nil)
	if code != http.StatusOK || body["id"] != "a1" || body["companyId"] != "c1" {
		t.Errorf("me: %d %v", code, body)
	}
}

func TestCreateTask_ValidationIsBadRequest(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodPost, "/api/tasks", "boss", map[string]interface{}{
		"title":       "   ",
		"assignees":   []string{"a1"},
		"dueDateTime": "2024-03-06T09:00:00Z",
	})
	if code != http.StatusBadRequest || body["error"] == nil {
		t.Errorf("expected 400 with an error, got %d %v", code, body)
	}

	code, body = s.do(t, http.MethodPost, "/api/tasks", "boss", map[string]interface{}{
		"title":       "Prepare invoice",
		"assignees":   []string{"a1"},
		"dueDateTime": "2024-03-06T09:00:00Z",
	})
	if code != http.StatusBadRequest || body["error"] != "Task must have at least 1 observer" {
		t.Errorf("task without observers: expected 400, got %d %v", code, body)
	}
}

func TestApprovalFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	id := s.createTask(t)

	code, body := s.do(t, http.MethodPost, "/api/tasks/complete", "a1", map[string]interface{}{"taskIds": []string{id}})
	if code != http.StatusOK {
		t.Fatalf("complete: %d %v", code, body)
	}
	if body["updated"] != float64(1) || body["failed"] != float64(0) {
		t.Errorf("complete counts: %v", body)
	}
	results, _ := body["results"].([]interface{})
	if len(results) != 1 || results[0].(map[string]interface{})["status"] != "Completed" {
		t.Errorf("assignee should see the submitted task as Completed, got %v", results)
	}

	code, body = s.do(t, http.MethodGet, "/api/tasks/"+id, "obs", nil)
	if code != http.StatusOK || body["status"] != "For Approval" {
		t.Errorf("observer view: %d %v", code, body)
	}

	code, body = s.do(t, http.MethodGet, "/api/notifications/unread-count", "obs", nil)
	if code != http.StatusOK || body["count"] != float64(2) {
		t.Errorf("unread count: %d %v", code, body)
	}

	code, body = s.do(t, http.MethodGet, "/api/notifications", "obs", nil)
	if code != http.StatusOK {
		t.Fatalf("list notifications: %d %v", code, body)
	}
	approvalID := findApproval(t, body)

	if _, body = s.do(t, http.MethodGet, "/api/notifications/unread-count", "obs", nil); body["count"] != float64(0) {
		t.Errorf("listing should mark notifications read, got %v", body)
	}

	code, body = s.do(t, http.MethodPost, "/api/notifications/"+approvalID+"/approval", "obs", map[string]string{"decision": "maybe"})
	if code != http.StatusBadRequest {
		t.Errorf("unknown decision: expected 400, got %d %v", code, body)
	}

	code, body = s.do(t, http.MethodPost, "/api/notifications/"+approvalID+"/approval", "obs", map[string]string{"decision": "approve"})
	if code != http.StatusOK || body["message"] != "Task approved" {
		t.Fatalf("approve: %d %v", code, body)
	}
	task, _ := body["task"].(map[string]interface{})
	if task["status"] != "Completed" {
		t.Errorf("approved task status: %v", task)
	}

	code, _ = s.do(t, http.MethodPost, "/api/notifications/"+approvalID+"/approval", "obs", map[string]string{"decision": "reject"})
	if code != http.StatusConflict {
		t.Errorf("second decision: expected 409, got %d", code)
	}

	code, body = s.do(t, http.MethodGet, "/api/tasks/"+id+"/history", "boss", nil)
	if code != http.StatusOK {
		t.Fatalf("history: %d %v", code, body)
	}
	stats, _ := body["stats"].(map[string]interface{})
	if stats["totalCompletions"] != float64(1) {
		t.Errorf("history stats: %v", body)
	}
}

func TestMarkAsCompleted_ErrorsMapToStatus(t *testing.T) {
	s := newTestServer(t)
	id := s.createTask(t)

	if code, _ := s.do(t, http.MethodPost, "/api/tasks/complete", "a1", map[string]interface{}{"taskIds": []string{}}); code != http.StatusBadRequest {
		t.Errorf("empty ids: expected 400, got %d", code)
	}
	if code, _ := s.do(t, http.MethodPost, "/api/tasks/complete", "stranger", map[string]interface{}{"taskIds": []string{id}}); code != http.StatusConflict {
		t.Errorf("inaccessible task: expected 409, got %d", code)
	}
	if code, _ := s.do(t, http.MethodPost, "/api/tasks/complete", "boss", map[string]interface{}{"taskIds": []string{id}}); code != http.StatusForbidden {
		t.Errorf("creator who is not a participant: expected 403, got %d", code)
	}
	if code, _ := s.do(t, http.MethodGet, "/api/tasks/missing", "boss", nil); code != http.StatusNotFound {
		t.Errorf("missing task: expected 404, got %d", code)
	}
}

func TestUpdateAndDeleteTask(t *testing.T) {
	s := newTestServer(t)
	id := s.createTask(t)

	code, body := s.do(t, http.MethodPut, "/api/tasks/"+id, "boss", map[string]interface{}{"title": "Send invoice"})
	if code != http.StatusOK || body["success"] != true {
		t.Fatalf("update: %d %v", code, body)
	}
	if data, _ := body["data"].(map[string]interface{}); data["title"] != "Send invoice" {
		t.Errorf("updated title: %v", body)
	}

	code, body = s.do(t, http.MethodGet, "/api/tasks", "a1", nil)
	if code != http.StatusOK || body["total"] != float64(1) {
		t.Errorf("list for assignee: %d %v", code, body)
	}

	if code, _ := s.do(t, http.MethodDelete, "/api/tasks/"+id, "a1", nil); code != http.StatusForbidden {
		t.Errorf("assignee delete: expected 403, got %d", code)
	}
	if code, _ := s.do(t, http.MethodDelete, "/api/tasks/"+id, "boss", nil); code != http.StatusOK {
		t.Errorf("creator delete: expected 200, got %d", code)
	}
	if code, _ := s.do(t, http.MethodGet, "/api/tasks/"+id, "boss", nil); code != http.StatusNotFound {
		t.Errorf("deleted task: expected 404, got %d", code)
	}
}

func TestJobsRunOnDemand(t *testing.T) {
	s := newTestServer(t)
	s.createTask(t)

	sched := s.app.NewScheduler()
	want := []string{JobOverdue, JobReminders, JobPush, JobRecurrence, JobRetention}
	got := sched.Jobs()
	if len(got) != len(want) {
		t.Fatalf("jobs = %v, want %v", got, want)
	}

	s.clock.Advance(24 * time.Hour)
	if err := sched.RunJob(context.Background(), JobOverdue); err != nil {
		t.Fatalf("overdue scan: %v", err)
	}
	code, body := s.do(t, http.MethodGet, "/api/notifications/unread-count", "a1", nil)
	if code != http.StatusOK || body["count"] != float64(1) {
		t.Errorf("before the due date the assignee only has the assignment notice, got %d %v", code, body)
	}

	s.clock.Advance(24*time.Hour + time.Minute)
	for _, name := range want {
		if err := sched.RunJob(context.Background(), name); err != nil {
			t.Errorf("job %s: %v", name, err)
		}
	}

	code, body = s.do(t, http.MethodGet, "/api/notifications", "a1", nil)
	if code != http.StatusOK {
		t.Fatalf("list notifications: %d %v", code, body)
	}
	list, _ := body["notifications"].([]interface{})
	overdue := 0
	for _, item := range list {
		if n, _ := item.(map[string]interface{}); n["type"] == "overdue" {
			overdue++
		}
	}
	if overdue != 1 {
		t.Errorf("expected one overdue notice for the assignee, got %v", list)
	}
}
