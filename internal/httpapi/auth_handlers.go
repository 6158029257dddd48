package httpapi

import (
	"net/http"
	"strings"
	"time"

	"agentgrid.io/internal/access"
	"agentgrid.io/internal/audit"
	"agentgrid.io/internal/auth"
)

type tokenRequest struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	NetworkID      string `json:"network_id"`
	Level          string `json:"level"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

const tokenTTL = 15 * time.Minute

func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		writeError(w, r, http.StatusBadRequest, "user_id is required")
		return
	}
	level := access.AdminLevel(strings.TrimSpace(req.Level))
	if level == "" {
		level = access.LevelUser
	}
	if !level.Valid() {
		writeError(w, r, http.StatusBadRequest, "unknown level")
		return
	}

	id := access.Identity{
		UserID:         userID,
		OrganizationID: strings.TrimSpace(req.OrganizationID),
		NetworkID:      strings.TrimSpace(req.NetworkID),
		Level:          level,
	}
	token, err := auth.GenerateToken(id, tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	expiresAt := time.Now().UTC().Add(tokenTTL)
	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"user_id":    userID,
		"level":      string(level),
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}
