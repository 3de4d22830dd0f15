package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/clibridge/internal/auth"
	"github.com/mattjoyce/clibridge/internal/history"
	"github.com/mattjoyce/clibridge/internal/invoke"
	"github.com/mattjoyce/clibridge/internal/log"
	"github.com/mattjoyce/clibridge/internal/process"
	"github.com/mattjoyce/clibridge/internal/response"
	"github.com/mattjoyce/clibridge/internal/spec"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

// mockHistory implements HistoryReader for testing
type mockHistory struct {
	entries map[string]*history.Entry
	err     error
}

func (m *mockHistory) Get(_ context.Context, id string) (*history.Entry, error) {
	if m.err != nil {
		return nil, m.err
	}
	e, ok := m.entries[id]
	if !ok {
		return nil, history.ErrNotFound
	}
	return e, nil
}

func (m *mockHistory) Recent(_ context.Context, limit int) ([]*history.Entry, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*history.Entry
	for _, e := range m.entries {
		out = append(out, e)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newTestServer(t *testing.T, fake *process.Fake, hist HistoryReader) *Server {
	t.Helper()
	s, err := spec.Load("../spec/testdata/taskctl.json")
	if err != nil {
		t.Fatalf("failed to load spec: %v", err)
	}
	inv := invoke.New("taskctl", invoke.NewTable(s), fake)
	config := Config{
		Listen: "localhost:8080",
		Title:  "taskctl",
		APIKey: "test-key-123",
		Tokens: []auth.TokenConfig{
			{Token: "invoker", Scopes: []string{auth.ScopeInvoke}},
			{Token: "auditor", Scopes: []string{auth.ScopeHistory}},
		},
	}
	return New(config, inv, hist, slog.Default())
}

func do(t *testing.T, s *Server, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestHandleHealthz_NoAuth(t *testing.T) {
	server := newTestServer(t, &process.Fake{}, nil)

	rr := do(t, server, http.MethodGet, "/healthz", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp HealthzResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" || resp.Program != "taskctl" || resp.Operations != 6 {
		t.Errorf("unexpected healthz response: %+v", resp)
	}
}

func TestAuthRequired(t *testing.T) {
	server := newTestServer(t, &process.Fake{}, &mockHistory{})

	tests := []struct {
		method, path, token string
		want                int
	}{
		{http.MethodGet, "/operations", "", http.StatusUnauthorized},
		{http.MethodGet, "/operations", "wrong", http.StatusUnauthorized},
		{http.MethodGet, "/operations", "auditor", http.StatusForbidden},
		{http.MethodGet, "/operations", "invoker", http.StatusOK},
		{http.MethodPost, "/invoke/stats", "auditor", http.StatusForbidden},
		{http.MethodPost, "/call/stats", "auditor", http.StatusForbidden},
		{http.MethodGet, "/invocations", "invoker", http.StatusForbidden},
		{http.MethodGet, "/invocations", "auditor", http.StatusOK},
		{http.MethodGet, "/openapi.json", "test-key-123", http.StatusOK},
	}
	for _, tt := range tests {
		rr := do(t, server, tt.method, tt.path, tt.token, "")
		if rr.Code != tt.want {
			t.Errorf("%s %s as %q: status %d, want %d", tt.method, tt.path, tt.token, rr.Code, tt.want)
		}
	}
}

func TestHandleListOperations(t *testing.T) {
	server := newTestServer(t, &process.Fake{}, nil)

	rr := do(t, server, http.MethodGet, "/operations", "invoker", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp OperationListResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Operations) != 6 {
		t.Fatalf("expected 6 operations, got %d", len(resp.Operations))
	}
	add := resp.Operations[1]
	if add.Name != "task add" || add.Description != "Add a task" {
		t.Fatalf("unexpected operation: %+v", add)
	}
	if len(add.Parameters) != 4 || add.Parameters[0].Name != "title" || !add.Parameters[0].Required {
		t.Errorf("unexpected parameters: %+v", add.Parameters)
	}
	if stats := resp.Operations[3]; stats.Parameters == nil {
		t.Error("parameters should encode as an empty list, not null")
	}
}

func TestHandleInvoke_Success(t *testing.T) {
	fake := &process.Fake{Stdout: "added 7\n"}
	server := newTestServer(t, fake, nil)

	rr := do(t, server, http.MethodPost, "/invoke/task/add", "invoker",
		`{"params": {"title": "Buy milk", "priority": "high", "urgent": true}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	resp, err := response.Decode(rr.Body)
	if err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success || resp.Output != "added 7" || resp.ExitCode != 0 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if id := rr.Header().Get("X-Invocation-Id"); id == "" || id != resp.Metadata[invoke.MetaInvocationID] {
		t.Errorf("X-Invocation-Id = %q, metadata = %v", id, resp.Metadata)
	}

	reqs := fake.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 process, got %d", len(reqs))
	}
	want := []string{"task", "add", "Buy milk", "--priority", "high", "--urgent"}
	if strings.Join(reqs[0].Args, "|") != strings.Join(want, "|") {
		t.Errorf("argv = %q, want %q", reqs[0].Args, want)
	}
}

func TestHandleInvoke_QueryAndEscapedName(t *testing.T) {
	fake := &process.Fake{}
	server := newTestServer(t, fake, nil)

	rr := do(t, server, http.MethodPost, "/invoke/task%20list?status=open&all=true", "invoker", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	got := strings.Join(fake.Requests()[0].Args, " ")
	if got != "task list --status open --all" {
		t.Errorf("argv = %q", got)
	}
}

func TestHandleInvoke_TimeoutOverride(t *testing.T) {
	fake := &process.Fake{}
	server := newTestServer(t, fake, nil)

	rr := do(t, server, http.MethodPost, "/invoke/stats", "invoker", `{"timeout": "250ms"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if got := fake.Requests()[0].Timeout; got != 250*time.Millisecond {
		t.Errorf("timeout = %v", got)
	}
}

func TestHandleInvoke_FailedProcessIsStill200(t *testing.T) {
	server := newTestServer(t, &process.Fake{ExitCode: 2, Stderr: "bad priority\n"}, nil)

	rr := do(t, server, http.MethodPost, "/invoke/stats", "invoker", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	resp, err := response.Decode(rr.Body)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Success || resp.ExitCode != 2 || resp.Error != "bad priority" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestHandleInvoke_InputErrors(t *testing.T) {
	fake := &process.Fake{}
	server := newTestServer(t, fake, nil)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"unknown operation", "/invoke/task/remove", "", http.StatusNotFound},
		{"empty name", "/invoke/", "", http.StatusNotFound},
		{"missing argument", "/invoke/task/add", `{"params": {"priority": "high"}}`, http.StatusBadRequest},
		{"unknown option", "/invoke/task/add", `{"params": {"title": "x", "colour": "red"}}`, http.StatusBadRequest},
		{"bad flag value", "/invoke/task/add", `{"params": {"title": "x", "urgent": 3}}`, http.StatusBadRequest},
		{"bad json", "/invoke/stats", `{"params":`, http.StatusBadRequest},
		{"unknown body field", "/invoke/stats", `{"payload": {}}`, http.StatusBadRequest},
		{"bad timeout", "/invoke/stats", `{"timeout": "soon"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, server, http.MethodPost, tt.path, "invoker", tt.body)
			if rr.Code != tt.want {
				t.Fatalf("status %d, want %d: %s", rr.Code, tt.want, rr.Body.String())
			}
			var resp ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil || resp.Error == "" {
				t.Errorf("expected JSON error body, got err=%v body=%+v", err, resp)
			}
		})
	}

	if n := len(fake.Requests()); n != 0 {
		t.Errorf("input errors started %d processes", n)
	}
}

func TestHandleCall(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		server := newTestServer(t, &process.Fake{Stdout: "3 open\n"}, nil)
		rr := do(t, server, http.MethodPost, "/call/stats", "invoker", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
			t.Errorf("Content-Type = %q", ct)
		}
		if rr.Body.String() != "3 open" {
			t.Errorf("body = %q", rr.Body.String())
		}
	})

	t.Run("process failure", func(t *testing.T) {
		server := newTestServer(t, &process.Fake{ExitCode: 4, Stderr: "no database"}, nil)
		rr := do(t, server, http.MethodPost, "/call/stats", "invoker", "")
		if rr.Code != http.StatusBadGateway {
			t.Fatalf("expected status 502, got %d", rr.Code)
		}
		if rr.Body.String() != "stats: no database" {
			t.Errorf("body = %q", rr.Body.String())
		}
		if rr.Header().Get("X-Exit-Code") != "4" {
			t.Errorf("X-Exit-Code = %q", rr.Header().Get("X-Exit-Code"))
		}
	})

	t.Run("input error", func(t *testing.T) {
		server := newTestServer(t, &process.Fake{}, nil)
		rr := do(t, server, http.MethodPost, "/call/task/add", "invoker", "")
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestHandleInvocations(t *testing.T) {
	entry := &history.Entry{
		ID:        "inv-1",
		Operation: "stats",
		Argv:      []string{"stats"},
		Outcome:   "exited",
		Response:  response.NewSuccess("ok"),
	}
	hist := &mockHistory{entries: map[string]*history.Entry{"inv-1": entry}}
	server := newTestServer(t, &process.Fake{}, hist)

	rr := do(t, server, http.MethodGet, "/invocations/inv-1", "auditor", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var got history.Entry
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.ID != "inv-1" || got.Operation != "stats" || got.Response.Output != "ok" {
		t.Errorf("unexpected entry: %+v", got)
	}

	if rr := do(t, server, http.MethodGet, "/invocations/nope", "auditor", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown id: status %d, want 404", rr.Code)
	}

	rr = do(t, server, http.MethodGet, "/invocations?limit=5", "auditor", "")
	var list InvocationListResponse
	if err := json.NewDecoder(rr.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list.Invocations) != 1 {
		t.Errorf("expected 1 invocation, got %d", len(list.Invocations))
	}

	if rr := do(t, server, http.MethodGet, "/invocations?limit=x", "auditor", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status %d, want 400", rr.Code)
	}

	hist.err = errors.New("database is locked")
	if rr := do(t, server, http.MethodGet, "/invocations/inv-1", "auditor", ""); rr.Code != http.StatusInternalServerError {
		t.Errorf("store failure: status %d, want 500", rr.Code)
	}
}

func TestHandleInvocations_HistoryDisabled(t *testing.T) {
	server := newTestServer(t, &process.Fake{}, nil)

	for _, path := range []string{"/invocations", "/invocations/inv-1"} {
		if rr := do(t, server, http.MethodGet, path, "auditor", ""); rr.Code != http.StatusNotFound {
			t.Errorf("%s: status %d, want 404", path, rr.Code)
		}
	}
}
