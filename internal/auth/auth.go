package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// Scopes understood by the HTTP boundary.
const (
	ScopeAll     = "*"
	ScopeInvoke  = "invoke:rw"
	ScopeOpsRead = "ops:ro"
	ScopeHistory = "history:ro"
)

// implied lists the scopes granted alongside a configured one. Running an
// operation requires being able to see the operation table.
var implied = map[string][]string{
	ScopeInvoke: {ScopeOpsRead},
}

var (
	ErrNoCredentials = errors.New("missing bearer token")
	ErrBadScheme     = errors.New("authorization scheme must be Bearer")
)

// TokenConfig is a bearer token with a set of scopes.
type TokenConfig struct {
	Token  string
	Scopes []string
}

// Principal is an authenticated caller.
type Principal struct {
	Token  string
	Scopes map[string]struct{}
}

// Has reports whether p holds any of scopes. ScopeAll holds everything, and
// an empty list is always satisfied.
func (p Principal) Has(scopes ...string) bool {
	if len(scopes) == 0 {
		return true
	}
	if _, all := p.Scopes[ScopeAll]; all {
		return true
	}
	for _, s := range scopes {
		if _, ok := p.Scopes[s]; ok {
			return true
		}
	}
	return false
}

type ctxKey struct{}

func NewContext(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

// BearerToken returns the token from the Authorization header of r.
func BearerToken(r *http.Request) (string, error) {
	value := r.Header.Get("Authorization")
	if value == "" {
		return "", ErrNoCredentials
	}
	rest, ok := strings.CutPrefix(value, "Bearer ")
	if !ok {
		return "", ErrBadScheme
	}
	if token := strings.TrimSpace(rest); token != "" {
		return token, nil
	}
	return "", ErrNoCredentials
}

// sameToken compares in constant time. An empty side never matches, so an
// unset api key cannot be satisfied by an empty header.
func sameToken(presented, configured string) bool {
	if presented == "" || configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}

// Authenticate resolves presented to a Principal. The api key carries
// ScopeAll; scoped tokens carry their configured scopes plus implied ones.
func Authenticate(presented string, apiKey string, tokens []TokenConfig) (Principal, bool) {
	if sameToken(presented, apiKey) {
		return Principal{Token: presented, Scopes: scopeSet([]string{ScopeAll})}, true
	}
	for _, t := range tokens {
		if sameToken(presented, t.Token) {
			return Principal{Token: presented, Scopes: scopeSet(t.Scopes)}, true
		}
	}
	return Principal{}, false
}

func scopeSet(scopes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(scopes))
	for _, raw := range scopes {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		set[s] = struct{}{}
		for _, extra := range implied[s] {
			set[extra] = struct{}{}
		}
	}
	return set
}

// Authenticator is HTTP middleware for the api key and scoped tokens.
type Authenticator struct {
	APIKey string
	Tokens []TokenConfig

	// OnError writes a rejection. Defaults to http.Error.
	OnError func(w http.ResponseWriter, status int, msg string)
}

func (a *Authenticator) reject(w http.ResponseWriter, status int, msg string) {
	if a.OnError == nil {
		http.Error(w, msg, status)
		return
	}
	a.OnError(w, status, msg)
}

// Middleware answers 401 unless the request carries a known token, and
// otherwise attaches the caller's Principal to the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := BearerToken(r)
		if err != nil {
			a.reject(w, http.StatusUnauthorized, err.Error())
			return
		}
		p, ok := Authenticate(token, a.APIKey, a.Tokens)
		if !ok {
			a.reject(w, http.StatusUnauthorized, "unknown bearer token")
			return
		}
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), p)))
	})
}

// Require answers 403 when the caller holds none of scopes. It expects
// Middleware to have run first.
func (a *Authenticator) Require(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			switch {
			case !ok:
				a.reject(w, http.StatusUnauthorized, "unauthenticated")
			case !p.Has(scopes...):
				a.reject(w, http.StatusForbidden, "insufficient scope")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
