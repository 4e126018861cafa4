package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"trust-pool/pkg/model"
	"trust-pool/pkg/scheduler"
	"trust-pool/pkg/store"
)

// RegisterRoutes wires the control-plane HTTP handlers on the provided mux.
func RegisterRoutes(mux *http.ServeMux, sched *scheduler.Scheduler, st store.Store, token string) {
	auth := authFunc(token)

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("trust-pool scheduler"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/checks", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch r.Method {
		case http.MethodGet:
			if name := r.URL.Query().Get("name"); name != "" {
				check, err := sched.Catalog().Get(name)
				if err != nil {
					httpError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, check)
				return
			}
			checks, err := sched.Catalog().List()
			if err != nil {
				httpError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{"checks": checks})
		case http.MethodPost:
			var req model.Check
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid payload", http.StatusBadRequest)
				return
			}
			saved, err := sched.Catalog().Create(req)
			if err != nil {
				httpError(w, err)
				return
			}
			_ = st.AppendAudit(model.AuditEntry{
				Actor: "admin", Action: "check_create", Target: saved.Name, Timestamp: time.Now(),
			})
			writeJSON(w, http.StatusCreated, saved)
		case http.MethodPut:
			name := r.URL.Query().Get("name")
			if name == "" {
				http.Error(w, "name is required", http.StatusBadRequest)
				return
			}
			var patch model.CheckPatch
			if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
				http.Error(w, "invalid payload", http.StatusBadRequest)
				return
			}
			saved, err := sched.Catalog().Update(name, patch)
			if err != nil {
				httpError(w, err)
				return
			}
			_ = st.AppendAudit(model.AuditEntry{
				Actor: "admin", Action: "check_update", Target: name, Timestamp: time.Now(),
			})
			writeJSON(w, http.StatusOK, saved)
		case http.MethodDelete:
			name := r.URL.Query().Get("name")
			if name == "" {
				http.Error(w, "name is required", http.StatusBadRequest)
				return
			}
			if err := sched.Catalog().Delete(name); err != nil {
				httpError(w, err)
				return
			}
			_ = st.AppendAudit(model.AuditEntry{
				Actor: "admin", Action: "check_delete", Target: name, Timestamp: time.Now(),
			})
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/checks/run", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req RunChecksRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Targets) == 0 {
			http.Error(w, "targets required", http.StatusBadRequest)
			return
		}
		if err := sched.RunChecksOnNodes(r.Context(), req.Targets); err != nil {
			httpError(w, err)
			return
		}
		_ = st.AppendAudit(model.AuditEntry{
			Actor: "admin", Action: "manual_run", Target: strconv.Itoa(len(req.Targets)) + " nodes", Timestamp: time.Now(),
		})
		writeJSON(w, http.StatusOK, map[string]interface{}{"pool": sched.TrustedPool()})
	})

	mux.HandleFunc("/api/v1/check_options", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, sched.Options())
		case http.MethodPut:
			var req CheckOptionRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid payload", http.StatusBadRequest)
				return
			}
			switch req.Name {
			case "periodic_checks_enabled":
				sched.SetPeriodicEnabled(req.Value)
			case "trusted_pool_saved":
				sched.SetTrustedPoolSaved(req.Value)
			default:
				http.Error(w, "unknown option", http.StatusBadRequest)
				return
			}
			_ = st.AppendAudit(model.AuditEntry{
				Actor: "admin", Action: "set_option", Target: req.Name,
				Detail: strconv.FormatBool(req.Value), Timestamp: time.Now(),
			})
			writeJSON(w, http.StatusOK, sched.Options())
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/results", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		results, err := st.ResultsGet(limit)
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
	})

	mux.HandleFunc("/api/v1/trusted_pool", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"pool": sched.TrustedPool()})
	})

	mux.HandleFunc("/api/v1/audit", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		entries, err := st.ListAudit(50)
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
	})
}
