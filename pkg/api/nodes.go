package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"trust-pool/pkg/model"
	"trust-pool/pkg/scheduler"
	"trust-pool/pkg/store"
)

// RegisterNodeRoutes exposes the compute-node roster. Registration seeds the
// trust cache so a new node enters the pool as unknown until its first run.
func RegisterNodeRoutes(mux *http.ServeMux, sched *scheduler.Scheduler, st store.Store, token string) {
	auth := authFunc(token)

	mux.HandleFunc("/api/v1/nodes", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		nodes, err := st.NodeGetAll()
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"nodes": nodes})
	})

	mux.HandleFunc("/api/v1/nodes/register", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req NodeRegistrationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if req.Host == "" {
			http.Error(w, "host is required", http.StatusBadRequest)
			return
		}
		saved, err := sched.RegisterNode(model.Node{Host: req.Host, Addr: req.Addr, Desc: req.Desc})
		if err != nil {
			httpError(w, err)
			return
		}
		_ = st.AppendAudit(model.AuditEntry{
			Actor: saved.Host, Action: "node_register", Target: saved.Host, Timestamp: time.Now(),
		})
		log.Printf("registered node %s addr=%s", saved.Host, saved.Addr)
		writeJSON(w, http.StatusOK, NodeRegistrationResponse{
			Node:  saved,
			Trust: sched.Cache().Get(saved.Host),
		})
	})
}
