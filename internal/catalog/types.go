package catalog

import (
	"errors"
	"time"
)

// Tier classifies an agent and drives the approval requirements applied when
// the agent is granted or assigned. It is intrinsic to the agent; changing it
// is a catalog-management action, not a permission action.
type Tier string

const (
	TierFree       Tier = "free"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// Valid reports whether the tier is a known value.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPremium, TierEnterprise:
		return true
	default:
		return false
	}
}

const (
	AgentStatusActive  = "active"
	AgentStatusRetired = "retired"
)

// Agent is a cataloged AI integration.
type Agent struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Tier      Tier      `json:"tier"`
	Category  string    `json:"category,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Filter narrows ListAgents results. Zero values match everything.
type Filter struct {
	Tier     Tier
	Category string
	Status   string
}

var (
	ErrNotFound     = errors.New("catalog: not found")
	ErrInvalidInput = errors.New("catalog: invalid input")
	ErrConflict     = errors.New("catalog: already exists")
)
