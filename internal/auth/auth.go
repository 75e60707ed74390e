// Package auth resolves bearer tokens to scoped principals.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/mattjoyce/tessera/internal/config"
)

// Scopes understood by the run-control API.
const (
	ScopeAll     = "*"
	ScopeRunRead = "run:ro"
	// ScopeRunWrite starts, cancels and continues runs. It implies ScopeRunRead.
	ScopeRunWrite = "run:rw"
)

type Principal struct {
	Token  string
	Scopes map[string]struct{}
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func ExtractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing Authorization header")
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", errors.New("invalid Authorization header format")
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", errors.New("missing API key")
	}
	return token, nil
}

func constantTimeEqual(a, b string) bool {
	if a == "" || b == "" || len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Authenticate matches a presented bearer token against the configured key
// and scoped tokens. The API key authenticates with scope "*".
func Authenticate(presented, apiKey string, tokens []config.APIToken) (Principal, bool) {
	if constantTimeEqual(presented, apiKey) {
		return Principal{Token: presented, Scopes: map[string]struct{}{ScopeAll: {}}}, true
	}
	for _, t := range tokens {
		if constantTimeEqual(presented, t.Token) {
			return Principal{Token: presented, Scopes: normalizeScopes(t.Scopes)}, true
		}
	}
	return Principal{}, false
}

func normalizeScopes(scopes []string) map[string]struct{} {
	out := make(map[string]struct{}, len(scopes)+1)
	for _, s := range scopes {
		if s = strings.TrimSpace(s); s != "" {
			out[s] = struct{}{}
		}
	}
	if _, ok := out[ScopeRunWrite]; ok {
		out[ScopeRunRead] = struct{}{}
	}
	return out
}

func HasAnyScope(p Principal, required ...string) bool {
	if len(required) == 0 {
		return true
	}
	if _, ok := p.Scopes[ScopeAll]; ok {
		return true
	}
	for _, s := range required {
		if _, ok := p.Scopes[s]; ok {
			return true
		}
	}
	return false
}
