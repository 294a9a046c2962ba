package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/rs/zerolog"

	"habitbuilder/internal/config"
	"habitbuilder/internal/db"
	"habitbuilder/internal/engine"
	"habitbuilder/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	handler, err := New(Config{Engine: e, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createTask(t *testing.T, srv *testServer, name, category string, status int, createdAt string) TaskResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/tasks", map[string]any{
		"name":       name,
		"category":   category,
		"status":     status,
		"created_at": createdAt,
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}
	var created TaskResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	return created
}

func TestTaskLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	created := createTask(t, srv, "run", "health", 30, "2024-06-10")
	if created.ID == 0 {
		t.Fatalf("expected assigned id: %+v", created)
	}
	if created.CreatedAt != "2024-06-10" {
		t.Fatalf("created_at: %s", created.CreatedAt)
	}

	res, data := doJSON(t, client, http.MethodPut, fmt.Sprintf("%s/tasks/%d", srv.URL, created.ID), map[string]any{
		"name": "run", "category": "health", "status": 90,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update status %d: %s", res.StatusCode, string(data))
	}
	var msg MessageResponse
	if err := json.Unmarshal(data, &msg); err != nil || msg.Message != "Task updated successfully" {
		t.Fatalf("update message: %s (%v)", string(data), err)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/tasks-by-week?start=2024-06-09&end=2024-06-14", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var tasks []TaskResponse
	if err := json.Unmarshal(data, &tasks); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Status != 90 {
		t.Fatalf("list after update: %+v", tasks)
	}

	res, data = doJSON(t, client, http.MethodDelete, fmt.Sprintf("%s/tasks/%d", srv.URL, created.ID), nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("delete status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.Message != "Task deleted successfully" {
		t.Fatalf("delete message: %s (%v)", string(data), err)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/tasks-by-week?start=2024-06-09&end=2024-06-14", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d", res.StatusCode)
	}
	if err := json.Unmarshal(data, &tasks); err != nil || len(tasks) != 0 {
		t.Fatalf("list after delete: %s (%v)", string(data), err)
	}
}

func TestUpdateAndDeleteUnknownTask(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/tasks/999", map[string]any{
		"name": "x", "category": "y", "status": 0,
	})
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("update unknown: status %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "not_found" || envelope.Error.Message != "Task not found" {
		t.Fatalf("envelope: %+v", envelope.Error)
	}

	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/tasks/999", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("delete unknown: status %d", res.StatusCode)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/tasks", map[string]any{
		"category": "health",
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing name: status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/tasks", map[string]any{
		"name": "run", "category": "health", "created_at": "June 10",
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad date: status %d: %s", res.StatusCode, string(data))
	}
}

func TestAverageStatus(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	createTask(t, srv, "a1", "A", 50, "2024-06-10")
	createTask(t, srv, "a2", "A", 100, "2024-06-11")
	createTask(t, srv, "b1", "B", 0, "2024-06-12")
	createTask(t, srv, "out", "C", 100, "2024-06-20")

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/average-status?start=2024-06-09&end=2024-06-14", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("aggregate status %d: %s", res.StatusCode, string(data))
	}
	var averages []AverageResponse
	if err := json.Unmarshal(data, &averages); err != nil {
		t.Fatalf("unmarshal averages: %v", err)
	}
	byCat := map[string]float64{}
	for _, a := range averages {
		byCat[a.Category] = a.AverageStatus
	}
	if len(byCat) != 2 || byCat["A"] != 75 || byCat["B"] != 0 {
		t.Fatalf("averages: %+v", averages)
	}
}

func TestAverageStatusRequiresDates(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	for _, url := range []string{
		srv.URL + "/average-status",
		srv.URL + "/average-status?start=2024-06-09",
		srv.URL + "/average-status?end=2024-06-14",
	} {
		res, data := doJSON(t, srv.Client(), http.MethodGet, url, nil)
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: status %d: %s", url, res.StatusCode, string(data))
		}
		var envelope struct {
			Error apiErrorBody `json:"error"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		if envelope.Error.Message != "Start and end dates are required" {
			t.Fatalf("message: %q", envelope.Error.Message)
		}
	}
}

func TestTasksByWeekRequiresDates(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/tasks-by-week", nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", res.StatusCode)
	}
}

func TestHealthAndOpenAPI(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/health", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
	var health map[string]string
	if err := json.Unmarshal(data, &health); err != nil || health["status"] != "ok" {
		t.Fatalf("health body: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/openapi.json", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil || doc["openapi"] == nil {
		t.Fatalf("openapi body: %v", err)
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/health", nil)
	if res.Header.Get("X-Request-Id") == "" {
		t.Fatalf("expected X-Request-Id header")
	}
}
