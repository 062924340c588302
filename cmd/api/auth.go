package main

import (
	"context"
	"net/http"
	"strings"

	"github.com/chunkforge/chunkforge/engine/domain"
)

type ctxKey int

const ownerKey ctxKey = 0

// ownerID returns the authenticated owner for the request, empty when
// unauthenticated.
func ownerID(r *http.Request) string {
	v, _ := r.Context().Value(ownerKey).(string)
	return v
}

// authenticator resolves bearer tokens to owner identities. Tokens come
// from the API_TOKENS environment variable as "token:owner" pairs,
// comma-separated.
type authenticator struct {
	owners map[string]string
}

func newAuthenticator(spec string) *authenticator {
	owners := make(map[string]string)
	for _, pair := range strings.Split(spec, ",") {
		token, owner, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || token == "" || owner == "" {
			continue
		}
		owners[token] = owner
	}
	return &authenticator{owners: owners}
}

// authenticate resolves the request's bearer token to an owner,
// returning domain.ErrNotAuthenticated for missing or unknown tokens.
func (a *authenticator) authenticate(r *http.Request) (string, error) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return "", domain.ErrNotAuthenticated
	}
	owner, found := a.owners[strings.TrimSpace(token)]
	if !found {
		return "", domain.ErrNotAuthenticated
	}
	return owner, nil
}

// wrap rejects requests without a known bearer token and stores the
// resolved owner in the request context.
func (a *authenticator) wrap(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, err := a.authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey, owner)))
	})
}
