package access

import "context"

// GrantStore persists scope-level permission documents. Each document is
// read and written whole; the backend guarantees per-document atomicity
// only.
type GrantStore interface {
	SaveCompanyGrants(ctx context.Context, doc CompanyGrants) error
	FindCompanyGrants(ctx context.Context, companyID string) (CompanyGrants, error)
	SaveNetworkGrants(ctx context.Context, doc NetworkGrants) error
	FindNetworkGrants(ctx context.Context, companyID, networkID string) (NetworkGrants, error)
}

// RequestFilter narrows ListRequests. Zero values match everything.
type RequestFilter struct {
	OrganizationID string
	UserID         string
	AgentID        string
	Status         RequestStatus
	ApprovalLevel  AdminLevel
}

// RequestStore persists access requests.
type RequestStore interface {
	CreateRequest(ctx context.Context, req Request) error
	FindRequest(ctx context.Context, id string) (Request, error)
	UpdateRequest(ctx context.Context, req Request) error
	ListRequests(ctx context.Context, filter RequestFilter) ([]Request, error)
}

// AssignmentFilter narrows ListAssignments. Zero values match everything.
type AssignmentFilter struct {
	UserID  string
	AgentID string
	Status  AssignmentStatus
}

// AssignmentStore persists user-level assignments.
type AssignmentStore interface {
	CreateAssignment(ctx context.Context, a Assignment) error
	FindAssignment(ctx context.Context, id string) (Assignment, error)
	UpdateAssignment(ctx context.Context, a Assignment) error
	ListAssignments(ctx context.Context, filter AssignmentFilter) ([]Assignment, error)
	// FindActiveAssignment returns the single active assignment for the pair,
	// or ErrNotFound.
	FindActiveAssignment(ctx context.Context, userID, agentID string) (Assignment, error)
}

// Store combines every persistence concern of the access core.
type Store interface {
	GrantStore
	RequestStore
	AssignmentStore
}
