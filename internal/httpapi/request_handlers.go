package httpapi

import (
	"net/http"
	"strings"

	"agentgrid.io/internal/access"
	"agentgrid.io/internal/audit"
	"agentgrid.io/internal/obs"
)

type submitRequest struct {
	AgentID  string `json:"agent_id"`
	Priority string `json:"priority"`
	Reason   string `json:"reason"`
}

type denyRequest struct {
	Reason string `json:"reason"`
}

type escalateRequest struct {
	EscalateTo string `json:"escalate_to"`
}

type bulkReviewRequest struct {
	RequestIDs []string `json:"request_ids"`
	Reason     string   `json:"reason"`
}

func (a *API) handleRequestsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	a.submitRequest(w, r)
}

func (a *API) handleRequestResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/requests/"), "/")
	parts := strings.Split(path, "/")

	switch {
	case path == "pending":
		a.pendingRequests(w, r)
	case path == "bulk/approve":
		a.bulkReview(w, r, true)
	case path == "bulk/deny":
		a.bulkReview(w, r, false)
	case len(parts) == 1 && parts[0] != "":
		a.getRequest(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "approve":
		a.approveRequest(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "deny":
		a.denyRequest(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "escalate":
		a.escalateRequest(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) submitRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	created, err := a.requests.Submit(r.Context(), access.SubmitInput{
		UserID:         id.UserID,
		AgentID:        req.AgentID,
		OrganizationID: id.OrganizationID,
		NetworkID:      id.NetworkID,
		Priority:       strings.TrimSpace(req.Priority),
		Reason:         req.Reason,
	})
	if err != nil {
		obs.ObserveOperation("request.submit", "error")
		handleAccessError(w, r, err)
		return
	}
	obs.ObserveOperation("request.submit", "ok")
	_ = audit.LogEvent(r.Context(), "request.submit", map[string]any{
		"request_id":     created.ID,
		"agent_id":       created.AgentID,
		"approval_level": string(created.ApprovalLevel),
	})

	w.Header().Set("Location", "/v1/requests/"+created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) pendingRequests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id, ok := requireAdmin(w, r)
	if !ok {
		return
	}

	org := strings.TrimSpace(r.URL.Query().Get("organization_id"))
	if org == "" {
		org = id.OrganizationID
	}
	if !companyScoped(w, r, id, org) {
		return
	}
	level := access.AdminLevel(strings.TrimSpace(r.URL.Query().Get("level")))
	if level != "" && !level.Valid() {
		writeError(w, r, http.StatusBadRequest, "unknown level")
		return
	}

	items, err := a.requests.Pending(r.Context(), org, level)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) getRequest(w http.ResponseWriter, r *http.Request, requestID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id, ok := caller(w, r)
	if !ok {
		return
	}
	req, err := a.requests.Get(r.Context(), requestID)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	// Requesters see their own requests; everything else needs admin level.
	if req.UserID != id.UserID && !id.Level.IsAdmin() {
		writeError(w, r, http.StatusForbidden, "not your request")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (a *API) approveRequest(w http.ResponseWriter, r *http.Request, requestID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	id, ok := requireAdmin(w, r)
	if !ok {
		return
	}

	req, assignment, err := a.requests.Approve(r.Context(), requestID, id)
	if err != nil {
		obs.ObserveOperation("request.approve", "error")
		handleAccessError(w, r, err)
		return
	}
	obs.ObserveOperation("request.approve", "ok")
	_ = audit.LogEvent(r.Context(), "request.approve", map[string]any{
		"request_id":    req.ID,
		"assignment_id": assignment.ID,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"request":    req,
		"assignment": assignment,
	})
}

func (a *API) denyRequest(w http.ResponseWriter, r *http.Request, requestID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	id, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	var body denyRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	req, err := a.requests.Deny(r.Context(), requestID, id, body.Reason)
	if err != nil {
		obs.ObserveOperation("request.deny", "error")
		handleAccessError(w, r, err)
		return
	}
	obs.ObserveOperation("request.deny", "ok")
	_ = audit.LogEvent(r.Context(), "request.deny", map[string]any{"request_id": req.ID})
	writeJSON(w, http.StatusOK, req)
}

func (a *API) escalateRequest(w http.ResponseWriter, r *http.Request, requestID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	id, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	var body escalateRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	req, err := a.requests.Escalate(r.Context(), requestID, id, access.AdminLevel(strings.TrimSpace(body.EscalateTo)))
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "request.escalate", map[string]any{
		"request_id":     req.ID,
		"approval_level": string(req.ApprovalLevel),
	})
	writeJSON(w, http.StatusOK, req)
}

func (a *API) bulkReview(w http.ResponseWriter, r *http.Request, approve bool) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	id, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	var body bulkReviewRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(body.RequestIDs) == 0 {
		writeError(w, r, http.StatusBadRequest, "request_ids are required")
		return
	}

	var result access.BulkReviewResult
	event := "request.bulk_deny"
	if approve {
		result = a.requests.BulkApprove(r.Context(), body.RequestIDs, id)
		event = "request.bulk_approve"
	} else {
		result = a.requests.BulkDeny(r.Context(), body.RequestIDs, id, body.Reason)
	}
	_ = audit.LogEvent(r.Context(), event, map[string]any{
		"reviewed": len(result.Reviewed),
		"failed":   len(result.Errors),
	})
	writeJSON(w, http.StatusOK, result)
}
