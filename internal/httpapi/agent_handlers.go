package httpapi

import (
	"net/http"
	"strings"

	"agentgrid.io/internal/access"
	"agentgrid.io/internal/audit"
	"agentgrid.io/internal/catalog"
	"agentgrid.io/internal/obs"
)

type createAgentRequest struct {
	Name     string `json:"name"`
	Tier     string `json:"tier"`
	Category string `json:"category"`
	Provider string `json:"provider"`
}

type updateAgentStatusRequest struct {
	Status string `json:"status"`
}

func (a *API) handleAgentsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listAgents(w, r)
	case http.MethodPost:
		a.createAgent(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAgentResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/agents/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if strings.HasSuffix(path, "/status") {
		id := strings.TrimSuffix(strings.TrimSuffix(path, "/status"), "/")
		if id == "" {
			writeError(w, r, http.StatusNotFound, "agent not found")
			return
		}
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		a.updateAgentStatus(w, r, id)
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getAgent(w, r, path)
	case http.MethodDelete:
		a.deleteAgent(w, r, path)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) listAgents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := catalog.Filter{
		Tier:     catalog.Tier(strings.TrimSpace(q.Get("tier"))),
		Category: strings.TrimSpace(q.Get("category")),
		Status:   strings.TrimSpace(q.Get("status")),
	}
	if filter.Tier != "" && !filter.Tier.Valid() {
		writeError(w, r, http.StatusBadRequest, "unknown tier")
		return
	}
	agents, err := a.catalog.ListAgents(r.Context(), filter)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": agents})
}

func (a *API) createAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	if id.Level != access.LevelSuperAdmin {
		writeError(w, r, http.StatusForbidden, "catalog management requires super admin")
		return
	}

	var req createAgentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	agent, err := a.catalog.CreateAgent(r.Context(), catalog.Agent{
		Name:     req.Name,
		Tier:     catalog.Tier(strings.TrimSpace(req.Tier)),
		Category: strings.TrimSpace(req.Category),
		Provider: strings.TrimSpace(req.Provider),
	})
	if err != nil {
		obs.ObserveOperation("agent.create", "error")
		handleCatalogError(w, r, err)
		return
	}
	obs.ObserveOperation("agent.create", "ok")
	_ = audit.LogEvent(r.Context(), "agent.create", map[string]any{
		"agent_id": agent.ID,
		"tier":     string(agent.Tier),
	})

	w.Header().Set("Location", "/v1/agents/"+agent.ID)
	writeJSON(w, http.StatusCreated, agent)
}

func (a *API) getAgent(w http.ResponseWriter, r *http.Request, id string) {
	agent, err := a.catalog.GetAgent(r.Context(), id)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (a *API) updateAgentStatus(w http.ResponseWriter, r *http.Request, agentID string) {
	id, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	if id.Level != access.LevelSuperAdmin {
		writeError(w, r, http.StatusForbidden, "catalog management requires super admin")
		return
	}

	var req updateAgentStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	agent, err := a.catalog.UpdateAgentStatus(r.Context(), agentID, req.Status)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "agent.status.update", map[string]any{
		"agent_id": agent.ID,
		"status":   agent.Status,
	})
	writeJSON(w, http.StatusOK, agent)
}

func (a *API) deleteAgent(w http.ResponseWriter, r *http.Request, agentID string) {
	id, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	if id.Level != access.LevelSuperAdmin {
		writeError(w, r, http.StatusForbidden, "catalog management requires super admin")
		return
	}

	if err := a.catalog.DeleteAgent(r.Context(), agentID); err != nil {
		handleCatalogError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "agent.delete", map[string]any{"agent_id": agentID})
	w.WriteHeader(http.StatusNoContent)
}
