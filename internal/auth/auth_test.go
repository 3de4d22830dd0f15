package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header  string
		want    string
		wantErr error
	}{
		{"Bearer test-key", "test-key", nil},
		{"Bearer   padded  ", "padded", nil},
		{"", "", ErrNoCredentials},
		{"Basic abc", "", ErrBadScheme},
		{"Bearer   ", "", ErrNoCredentials},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "http://example.test", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		got, err := BearerToken(req)
		if !errors.Is(err, tt.wantErr) {
			t.Fatalf("BearerToken(%q) error = %v, wantErr %v", tt.header, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("BearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	tokens := []TokenConfig{
		{Token: "invoker", Scopes: []string{" invoke:rw ", ""}},
		{Token: "auditor", Scopes: []string{"history:ro"}},
	}

	p, ok := Authenticate("admin", "admin", tokens)
	if !ok || !p.Has("anything") {
		t.Fatalf("api key should authenticate with full access, got %+v", p)
	}

	p, ok = Authenticate("invoker", "admin", tokens)
	if !ok {
		t.Fatal("invoker token rejected")
	}
	if !p.Has(ScopeInvoke) || !p.Has(ScopeOpsRead) {
		t.Fatal("invoke:rw should imply ops:ro")
	}
	if p.Has(ScopeHistory) {
		t.Fatal("invoker should not read history")
	}

	p, ok = Authenticate("auditor", "", tokens)
	if !ok || !p.Has(ScopeHistory, ScopeInvoke) || p.Has(ScopeInvoke) {
		t.Fatalf("auditor scopes = %v", p.Scopes)
	}

	if _, ok := Authenticate("nope", "admin", tokens); ok {
		t.Fatal("unknown token accepted")
	}
	if _, ok := Authenticate("", "", nil); ok {
		t.Fatal("empty token accepted against empty key")
	}
}

func TestPrincipalHas(t *testing.T) {
	t.Parallel()

	var nobody Principal
	if !nobody.Has() {
		t.Fatal("empty requirement should always be satisfied")
	}
	if nobody.Has(ScopeOpsRead) {
		t.Fatal("principal without scopes satisfied ops:ro")
	}
}

func TestAuthenticatorMiddleware(t *testing.T) {
	t.Parallel()

	a := &Authenticator{APIKey: "admin", Tokens: []TokenConfig{{Token: "auditor", Scopes: []string{ScopeHistory}}}}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, found := FromContext(r.Context()); !found {
			t.Error("principal missing from context")
		}
		w.WriteHeader(http.StatusNoContent)
	})
	h := a.Middleware(a.Require(ScopeInvoke)(ok))

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"bad token", "wrong", http.StatusUnauthorized},
		{"insufficient scope", "auditor", http.StatusForbidden},
		{"admin", "admin", http.StatusNoContent},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/invoke/stats", nil)
		if tt.token != "" {
			req.Header.Set("Authorization", "Bearer "+tt.token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.name, rec.Code, tt.want)
		}
	}
}
