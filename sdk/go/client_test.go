package habitbuildersdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"habitbuilder/internal/calendar"
)

func TestAddRoutinePostsSequentially(t *testing.T) {
	var dates []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/tasks" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
			return
		}
		var body struct {
			Name      string `json:"name"`
			Status    int    `json:"status"`
			CreatedAt string `json:"created_at"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body.Status != 0 {
			t.Errorf("routine instance status must be 0, got %d", body.Status)
		}
		dates = append(dates, body.CreatedAt)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Task{ID: int64(len(dates)), Name: body.Name, CreatedAt: body.CreatedAt})
	}))
	defer srv.Close()

	c := New(srv.URL)
	end := calendar.MustParse("2024-06-24")
	n, err := c.AddRoutine(context.Background(), "gym", "health", 70, calendar.MustParse("2024-06-09"), true, &end)
	if err != nil {
		t.Fatalf("add routine: %v", err)
	}
	if n != 3 {
		t.Fatalf("want 3 created, got %d", n)
	}
	want := []string{"2024-06-09", "2024-06-16", "2024-06-23"}
	if len(dates) != len(want) {
		t.Fatalf("requests: %v", dates)
	}
	for i := range want {
		if dates[i] != want[i] {
			t.Fatalf("request %d: want %s, got %s", i, want[i], dates[i])
		}
	}
}

func TestAddRoutineStopsAtFirstFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 3 {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": "internal_error", "message": "internal error"}})
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Task{ID: int64(calls)})
	}))
	defer srv.Close()

	c := New(srv.URL)
	end := calendar.MustParse("2024-07-14")
	n, err := c.AddRoutine(context.Background(), "gym", "health", 0, calendar.MustParse("2024-06-09"), true, &end)
	if err == nil {
		t.Fatalf("expected failure")
	}
	if n != 2 {
		t.Fatalf("two creates succeed before the failure, got %d", n)
	}
	if calls != 3 {
		t.Fatalf("no request after the failure: %d calls", calls)
	}
}

func TestAddRoutineMissingEndDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	defer srv.Close()

	c := New(srv.URL)
	n, err := c.AddRoutine(context.Background(), "gym", "health", 0, calendar.MustParse("2024-06-09"), true, nil)
	if err == nil || n != 0 {
		t.Fatalf("want validation error before any request, got n=%d err=%v", n, err)
	}
}

func TestAPIErrorSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": "not_found", "message": "Task not found"}})
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.DeleteTask(context.Background(), 42)
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("want APIError, got %T (%v)", err, err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("status: %d", apiErr.StatusCode)
	}
}
