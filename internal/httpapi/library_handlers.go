package httpapi

import (
	"net/http"
	"strings"

	"agentgrid.io/internal/access"
	"agentgrid.io/internal/audit"
	"agentgrid.io/internal/obs"
)

type assignRequest struct {
	UserID  string `json:"user_id"`
	AgentID string `json:"agent_id"`
	Reason  string `json:"reason"`
}

type bulkAssignRequest struct {
	UserIDs []string `json:"user_ids"`
	AgentID string   `json:"agent_id"`
	Reason  string   `json:"reason"`
}

type removeRequest struct {
	UserID  string `json:"user_id"`
	AgentID string `json:"agent_id"`
	Reason  string `json:"reason"`
}

func (a *API) handleAssignmentsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	a.assign(w, r)
}

func (a *API) handleAssignmentAction(w http.ResponseWriter, r *http.Request) {
	switch strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/assignments/"), "/") {
	case "bulk":
		a.bulkAssign(w, r)
	case "remove":
		a.removeAssignment(w, r)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) assign(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var req assignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = id.UserID
	}
	// Plain users may only manage their own library.
	if userID != id.UserID && !id.Level.IsAdmin() {
		writeError(w, r, http.StatusForbidden, "assigning to other users requires admin level")
		return
	}

	outcome, err := a.library.Assign(r.Context(), userID, req.AgentID, id, req.Reason)
	if err != nil {
		obs.ObserveOperation("assignment.create", "error")
		handleAccessError(w, r, err)
		return
	}
	obs.ObserveOperation("assignment.create", "ok")

	if outcome.Request != nil {
		_ = audit.LogEvent(r.Context(), "assignment.request", map[string]any{
			"request_id": outcome.Request.ID,
			"agent_id":   outcome.Request.AgentID,
			"user_id":    userID,
		})
		writeJSON(w, http.StatusAccepted, outcome)
		return
	}
	_ = audit.LogEvent(r.Context(), "assignment.create", map[string]any{
		"assignment_id": outcome.Assignment.ID,
		"agent_id":      outcome.Assignment.AgentID,
		"user_id":       userID,
	})
	writeJSON(w, http.StatusCreated, outcome)
}

func (a *API) bulkAssign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	id, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	var req bulkAssignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.UserIDs) == 0 {
		writeError(w, r, http.StatusBadRequest, "user_ids are required")
		return
	}

	result, err := a.library.BulkAssign(r.Context(), req.UserIDs, req.AgentID, id, req.Reason)
	if err != nil {
		obs.ObserveOperation("assignment.bulk", "error")
		handleAccessError(w, r, err)
		return
	}
	obs.ObserveOperation("assignment.bulk", "ok")
	_ = audit.LogEvent(r.Context(), "assignment.bulk", map[string]any{
		"agent_id": req.AgentID,
		"assigned": len(result.Assignments),
		"queued":   len(result.Requests),
		"failed":   len(result.Errors),
	})
	writeJSON(w, http.StatusOK, result)
}

func (a *API) removeAssignment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var req removeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = id.UserID
	}
	if userID != id.UserID && !id.Level.IsAdmin() {
		writeError(w, r, http.StatusForbidden, "removing for other users requires admin level")
		return
	}

	removed, err := a.library.Remove(r.Context(), userID, req.AgentID, id.UserID, req.Reason)
	if err != nil {
		obs.ObserveOperation("assignment.remove", "error")
		handleAccessError(w, r, err)
		return
	}
	obs.ObserveOperation("assignment.remove", "ok")
	_ = audit.LogEvent(r.Context(), "assignment.remove", map[string]any{
		"assignment_id": removed.ID,
		"agent_id":      removed.AgentID,
		"user_id":       userID,
	})
	writeJSON(w, http.StatusOK, removed)
}

// handleUserResource serves /v1/users/{id}/assignments.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "assignments" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id, ok := caller(w, r)
	if !ok {
		return
	}
	userID := parts[0]
	if userID != id.UserID && !id.Level.IsAdmin() {
		writeError(w, r, http.StatusForbidden, "listing other users requires admin level")
		return
	}

	status := access.AssignmentStatus(strings.TrimSpace(r.URL.Query().Get("status")))
	items, err := a.library.Assignments(r.Context(), userID, status)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// handleLibraryResource serves /v1/library/{scope} and
// /v1/library/{scope}/agents/{agent_id} for the authenticated user.
func (a *API) handleLibraryResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id, ok := caller(w, r)
	if !ok {
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/library/"), "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		scope := access.LibraryType(parts[0])
		items, err := a.resolver.LibraryAgents(r.Context(), id, scope)
		if err != nil {
			handleAccessError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"scope": scope, "items": items})

	case len(parts) == 3 && parts[1] == "agents":
		scope := access.LibraryType(parts[0])
		agentCtx, err := a.resolver.AgentContext(r.Context(), parts[2], id, scope)
		if err != nil {
			handleAccessError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, agentCtx)

	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}
