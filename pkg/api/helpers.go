package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"trust-pool/pkg/auth"
	"trust-pool/pkg/scheduler"
	"trust-pool/pkg/store"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

// httpError maps the scheduler/store error taxonomy onto HTTP statuses.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduler.ErrInvalid):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, scheduler.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
	}
}

// authFunc accepts the bootstrap token (X-Auth-Token or Bearer) or a valid
// JWT. An empty token disables auth, for dev setups.
func authFunc(token string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if token == "" {
			return true
		}
		h := r.Header.Get("X-Auth-Token")
		if h == "" {
			authz := r.Header.Get("Authorization")
			if strings.HasPrefix(authz, "Bearer ") {
				h = strings.TrimPrefix(authz, "Bearer ")
			}
		}
		if h == token {
			return true
		}
		_, err := auth.Parse(h)
		return err == nil
	}
}
