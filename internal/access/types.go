package access

import (
	"time"

	"agentgrid.io/internal/catalog"
)

// Identity is the caller context every operation receives. The core never
// authenticates; it only authorizes against this resolved position in the
// organization hierarchy.
type Identity struct {
	UserID         string     `json:"user_id"`
	OrganizationID string     `json:"organization_id,omitempty"`
	NetworkID      string     `json:"network_id,omitempty"`
	Level          AdminLevel `json:"level"`
}

// LibraryType names the four nested views over the granted-and-assigned
// agent set. They are derived at read time, never stored.
type LibraryType string

const (
	LibraryGlobal   LibraryType = "global"
	LibraryCompany  LibraryType = "company"
	LibraryNetwork  LibraryType = "network"
	LibraryPersonal LibraryType = "personal"
)

// Valid reports whether the library type is a known value.
func (l LibraryType) Valid() bool {
	switch l {
	case LibraryGlobal, LibraryCompany, LibraryNetwork, LibraryPersonal:
		return true
	default:
		return false
	}
}

// AgentPermission is one scope-level grant entry. Entries with Granted=false
// are kept for audit but excluded from every derived availability list.
type AgentPermission struct {
	AgentID   string         `json:"agent_id"`
	AgentName string         `json:"agent_name"`
	Granted   bool           `json:"granted"`
	Type      AssignmentType `json:"assignment_type"`
	Tier      catalog.Tier   `json:"tier"`
	GrantedBy string         `json:"granted_by"`
	GrantedAt time.Time      `json:"granted_at"`
}

// CompanyGrants is the per-company permission document. It is written as a
// whole (last writer wins per document).
type CompanyGrants struct {
	CompanyID string                     `json:"company_id"`
	Agents    map[string]AgentPermission `json:"agents"`
	UpdatedAt time.Time                  `json:"updated_at"`
	UpdatedBy string                     `json:"updated_by"`
}

// NetworkGrants is the per-network permission document. Its granted set is
// always a subset of the owning company's granted set at write time.
type NetworkGrants struct {
	CompanyID string                     `json:"company_id"`
	NetworkID string                     `json:"network_id"`
	Agents    map[string]AgentPermission `json:"agents"`
	UpdatedAt time.Time                  `json:"updated_at"`
	UpdatedBy string                     `json:"updated_by"`
}

// GrantStats summarizes one permission document.
type GrantStats struct {
	TotalAvailable int                  `json:"total_available"`
	TotalGranted   int                  `json:"total_granted"`
	ByTier         map[catalog.Tier]int `json:"by_tier"`
}

// RequestStatus is the lifecycle state of an access request. Escalation
// keeps the request pending under a higher approval level; approved and
// denied are terminal.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestDenied   RequestStatus = "denied"
)

// Request is a user's pending ask for an assignment that requires approval.
type Request struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	AgentID        string        `json:"agent_id"`
	Status         RequestStatus `json:"status"`
	ApprovalLevel  AdminLevel    `json:"approval_level"`
	Priority       string        `json:"priority,omitempty"`
	OrganizationID string        `json:"organization_id,omitempty"`
	NetworkID      string        `json:"network_id,omitempty"`
	Reason         string        `json:"reason,omitempty"`
	RequestedAt    time.Time     `json:"requested_at"`
	ReviewedAt     *time.Time    `json:"reviewed_at,omitempty"`
	ReviewedBy     string        `json:"reviewed_by,omitempty"`
	EscalatedAt    *time.Time    `json:"escalated_at,omitempty"`
	EscalatedBy    string        `json:"escalated_by,omitempty"`
}

// Terminal reports whether the request can no longer be reviewed.
func (r Request) Terminal() bool {
	return r.Status == RequestApproved || r.Status == RequestDenied
}

// AssignmentStatus is the state of a user-level assignment.
type AssignmentStatus string

const (
	AssignmentActive   AssignmentStatus = "active"
	AssignmentInactive AssignmentStatus = "inactive"
	AssignmentRemoved  AssignmentStatus = "removed"
)

// Assignment is a user-level record that a specific user has access to a
// specific agent. At most one active assignment exists per (user, agent).
type Assignment struct {
	ID         string           `json:"id"`
	UserID     string           `json:"user_id"`
	AgentID    string           `json:"agent_id"`
	Type       AssignmentType   `json:"assignment_type"`
	Status     AssignmentStatus `json:"status"`
	AssignedBy string           `json:"assigned_by"`
	Reason     string           `json:"reason,omitempty"`
	AssignedAt time.Time        `json:"assigned_at"`
	RemovedAt  *time.Time       `json:"removed_at,omitempty"`
	RemovedBy  string           `json:"removed_by,omitempty"`
}
