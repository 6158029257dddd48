package httpapi

import (
	"net/http"
	"strings"

	"agentgrid.io/internal/audit"
	"agentgrid.io/internal/obs"
)

type grantRequest struct {
	// Agents maps agent id to granted flag. The document is replaced whole:
	// agents absent from the map are dropped from the scope.
	Agents map[string]bool `json:"agents"`
}

// handleCompanyResource routes /v1/companies/{id}/grants[...] and
// /v1/companies/{id}/networks/{network_id}/grants[...].
func (a *API) handleCompanyResource(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/companies/"), "/"), "/")
	if len(parts) < 2 || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	companyID := parts[0]

	switch {
	case len(parts) == 2 && parts[1] == "grants":
		a.companyGrants(w, r, companyID)
	case len(parts) == 3 && parts[1] == "grants" && parts[2] == "stats":
		a.companyGrantStats(w, r, companyID)
	case len(parts) == 4 && parts[1] == "networks" && parts[3] == "grants":
		a.networkGrants(w, r, companyID, parts[2])
	case len(parts) == 5 && parts[1] == "networks" && parts[3] == "grants" && parts[4] == "stats":
		a.networkGrantStats(w, r, companyID, parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) companyGrants(w http.ResponseWriter, r *http.Request, companyID string) {
	switch r.Method {
	case http.MethodPut:
		id, ok := requireAdmin(w, r)
		if !ok || !companyScoped(w, r, id, companyID) {
			return
		}
		var req grantRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		doc, err := a.grants.GrantToCompany(r.Context(), companyID, req.Agents, id.UserID)
		if err != nil {
			obs.ObserveOperation("grants.company", "error")
			handleAccessError(w, r, err)
			return
		}
		obs.ObserveOperation("grants.company", "ok")
		_ = audit.LogEvent(r.Context(), "grants.company.update", map[string]any{
			"company_id": companyID,
			"agents":     len(doc.Agents),
		})
		writeJSON(w, http.StatusOK, doc)

	case http.MethodGet:
		if _, ok := caller(w, r); !ok {
			return
		}
		agents, err := a.grants.CompanyAvailable(r.Context(), companyID)
		if err != nil {
			handleAccessError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": agents})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) companyGrantStats(w http.ResponseWriter, r *http.Request, companyID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	stats, err := a.grants.CompanyStats(r.Context(), companyID)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) networkGrants(w http.ResponseWriter, r *http.Request, companyID, networkID string) {
	switch r.Method {
	case http.MethodPut:
		id, ok := requireAdmin(w, r)
		if !ok || !companyScoped(w, r, id, companyID) {
			return
		}
		var req grantRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		doc, err := a.grants.GrantToNetwork(r.Context(), companyID, networkID, req.Agents, id.UserID)
		if err != nil {
			obs.ObserveOperation("grants.network", "error")
			handleAccessError(w, r, err)
			return
		}
		obs.ObserveOperation("grants.network", "ok")
		_ = audit.LogEvent(r.Context(), "grants.network.update", map[string]any{
			"company_id": companyID,
			"network_id": networkID,
			"agents":     len(doc.Agents),
		})
		writeJSON(w, http.StatusOK, doc)

	case http.MethodGet:
		if _, ok := caller(w, r); !ok {
			return
		}
		agents, err := a.grants.NetworkAvailable(r.Context(), companyID, networkID)
		if err != nil {
			handleAccessError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": agents})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) networkGrantStats(w http.ResponseWriter, r *http.Request, companyID, networkID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	stats, err := a.grants.NetworkStats(r.Context(), companyID, networkID)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
