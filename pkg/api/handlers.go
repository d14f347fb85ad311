package api

import (
	"encoding/json"
	"net/http"

	"github.com/cuemby/wsomgr/pkg/repository"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type handlers struct {
	store    repository.Store
	domains  DomainLookup
	trigger  Trigger
	selfName string
	logger   zerolog.Logger
}

// statusResponse reports this manager's name plus the stored Plan's
// version and every manager state in it (primary, active, and the
// managers each one is dead for), read from the store on each request.
// It is a debugging aid, not an API other managers depend on.
type statusResponse struct {
	SelfName      string               `json:"self_name"`
	PlanVersion   int                  `json:"plan_version"`
	ManagerStates []managerStatusEntry `json:"manager_states"`
}

type managerStatusEntry struct {
	Name      string   `json:"name"`
	IsPrimary bool     `json:"is_primary"`
	IsActive  bool     `json:"is_active"`
	DeadFor   []string `json:"dead_for,omitempty"`
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	plan, err := h.store.GetPlan(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := statusResponse{SelfName: h.selfName, PlanVersion: plan.Version}
	for _, st := range plan.ManagerStates {
		entry := managerStatusEntry{Name: st.Name, IsPrimary: st.IsPrimary, IsActive: st.IsActive}
		for dead := range st.IsDeadFor {
			entry.DeadFor = append(entry.DeadFor, dead)
		}
		resp.ManagerStates = append(resp.ManagerStates, entry)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error().Err(err).Msg("encode status response")
	}
}

// createTime forces an out-of-cycle local reconciliation instead of
// waiting for the next correction tick. It does not itself define any
// domain; it only asks the local reconciler to re-diff immediately.
func (h *handlers) createTime(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if h.trigger == nil {
		http.Error(w, "reconciliation trigger not wired", http.StatusNotImplemented)
		return
	}
	if err := h.trigger.ReconcileNow(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"triggered_for": name})
}

func (h *handlers) ip(w http.ResponseWriter, r *http.Request) {
	domainName := chi.URLParam(r, "domain_name")
	if h.domains == nil {
		http.Error(w, "domain lookup not wired", http.StatusNotImplemented)
		return
	}
	addr, err := h.domains.LookupIP(r.Context(), domainName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"domain": domainName, "address": addr})
}

// delete is an operator shortcut for destroying a domain directly. If
// the Plan still lists it, the local VM reconciler recreates it the
// next time it runs (on the next observed Plan change or a
// "/create_time" call); the correction tick alone does not.
func (h *handlers) delete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if h.domains == nil {
		http.Error(w, "domain lookup not wired", http.StatusNotImplemented)
		return
	}
	if err := h.domains.Delete(r.Context(), name); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
