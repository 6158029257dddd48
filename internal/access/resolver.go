package access

import (
	"context"
	"errors"
	"fmt"

	"agentgrid.io/internal/catalog"
)

// AccessLevel is the resolved actionability of one agent for one user:
// direct (self-add or already held), request (must go through approval) or
// restricted (neither).
type AccessLevel string

const (
	AccessDirect     AccessLevel = "direct"
	AccessRequest    AccessLevel = "request"
	AccessRestricted AccessLevel = "restricted"
)

// AgentContext is the per-agent access decision shown in a library view.
type AgentContext struct {
	AgentID     string        `json:"agent_id"`
	AgentName   string        `json:"agent_name"`
	Tier        catalog.Tier  `json:"tier"`
	AvailableIn []LibraryType `json:"available_in"`
	AccessLevel AccessLevel   `json:"access_level"`
	CanAdd      bool          `json:"can_add"`
	CanRequest  bool          `json:"can_request"`
	InLibrary   bool          `json:"in_library"`
	GrantedBy   string        `json:"granted_by,omitempty"`
}

// Resolver computes library views by combining the grant documents, the
// user's ledger and the permission matrix.
type Resolver struct {
	grants      GrantStore
	assignments AssignmentStore
	catalog     catalog.Service
}

// NewResolver constructs the resolver.
func NewResolver(grants GrantStore, assignments AssignmentStore, cat catalog.Service) (*Resolver, error) {
	if grants == nil {
		return nil, errors.New("access: grant store is required")
	}
	if assignments == nil {
		return nil, errors.New("access: assignment store is required")
	}
	if cat == nil {
		return nil, errors.New("access: agent catalog is required")
	}
	return &Resolver{grants: grants, assignments: assignments, catalog: cat}, nil
}

// grantView is the user's resolved grant surroundings, loaded once per call.
type grantView struct {
	company map[string]AgentPermission
	network map[string]AgentPermission
	library map[string]Assignment
}

func (r *Resolver) loadView(ctx context.Context, user Identity) (grantView, error) {
	view := grantView{library: map[string]Assignment{}}

	if user.OrganizationID != "" {
		doc, err := r.grants.FindCompanyGrants(ctx, user.OrganizationID)
		switch {
		case err == nil:
			view.company = doc.Agents
		case errors.Is(err, ErrNotFound):
		default:
			return grantView{}, err
		}
	}
	if user.OrganizationID != "" && user.NetworkID != "" {
		doc, err := r.grants.FindNetworkGrants(ctx, user.OrganizationID, user.NetworkID)
		switch {
		case err == nil:
			view.network = doc.Agents
		case errors.Is(err, ErrNotFound):
		default:
			return grantView{}, err
		}
	}

	active, err := r.assignments.ListAssignments(ctx, AssignmentFilter{UserID: user.UserID, Status: AssignmentActive})
	if err != nil {
		return grantView{}, err
	}
	for _, a := range active {
		view.library[a.AgentID] = a
	}
	return view, nil
}

// AgentContext resolves one agent for one user in one scope.
func (r *Resolver) AgentContext(ctx context.Context, agentID string, user Identity, scope LibraryType) (AgentContext, error) {
	if !scope.Valid() {
		return AgentContext{}, fmt.Errorf("%w: unknown library %q", ErrInvalidInput, scope)
	}
	agent, err := r.catalog.GetAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return AgentContext{}, fmt.Errorf("%w: agent %s", ErrNotFound, agentID)
		}
		return AgentContext{}, err
	}
	view, err := r.loadView(ctx, user)
	if err != nil {
		return AgentContext{}, err
	}
	return r.resolve(agent, user, scope, view), nil
}

func granted(perms map[string]AgentPermission, agentID string) (AgentPermission, bool) {
	perm, ok := perms[agentID]
	if !ok || !perm.Granted {
		return AgentPermission{}, false
	}
	return perm, true
}

func (r *Resolver) resolve(agent catalog.Agent, user Identity, scope LibraryType, view grantView) AgentContext {
	out := AgentContext{
		AgentID:     agent.ID,
		AgentName:   agent.Name,
		Tier:        agent.Tier,
		AvailableIn: []LibraryType{LibraryGlobal},
	}

	companyPerm, inCompany := granted(view.company, agent.ID)
	if inCompany {
		out.AvailableIn = append(out.AvailableIn, LibraryCompany)
		out.GrantedBy = companyPerm.GrantedBy
	}
	if networkPerm, ok := granted(view.network, agent.ID); ok {
		out.AvailableIn = append(out.AvailableIn, LibraryNetwork)
		if out.GrantedBy == "" {
			out.GrantedBy = networkPerm.GrantedBy
		}
	}
	if _, ok := view.library[agent.ID]; ok {
		out.AvailableIn = append(out.AvailableIn, LibraryPersonal)
		out.InLibrary = true
	}

	perms := PermissionsFor(agent.Tier, user.Level)
	switch {
	case out.InLibrary:
		out.AccessLevel = AccessDirect
	case perms.CanAssign:
		out.AccessLevel = AccessDirect
		out.CanAdd = true
	case perms.RequiresApproval && perms.CanRequest:
		out.AccessLevel = AccessRequest
		out.CanRequest = true
	default:
		out.AccessLevel = AccessRestricted
	}

	// Holding the agent already makes add and request both no-ops regardless
	// of tier.
	if out.InLibrary {
		out.CanAdd = false
		out.CanRequest = false
	}
	// The personal view never offers an add action. Held items already
	// resolved to direct access above; anything else keeps its tier-derived
	// level.
	if scope == LibraryPersonal {
		out.CanAdd = false
	}
	return out
}

// LibraryAgents lists the agents visible in one scope for user, each with
// its resolved access context.
func (r *Resolver) LibraryAgents(ctx context.Context, user Identity, scope LibraryType) ([]AgentContext, error) {
	if !scope.Valid() {
		return nil, fmt.Errorf("%w: unknown library %q", ErrInvalidInput, scope)
	}
	view, err := r.loadView(ctx, user)
	if err != nil {
		return nil, err
	}

	var agents []catalog.Agent
	switch scope {
	case LibraryGlobal:
		agents, err = r.catalog.ListAgents(ctx, catalog.Filter{Status: catalog.AgentStatusActive})
		if err != nil {
			return nil, err
		}
	case LibraryCompany:
		agents, err = r.resolveAgents(ctx, view.company)
		if err != nil {
			return nil, err
		}
	case LibraryNetwork:
		agents, err = r.resolveAgents(ctx, view.network)
		if err != nil {
			return nil, err
		}
	case LibraryPersonal:
		for agentID := range view.library {
			agent, err := r.catalog.GetAgent(ctx, agentID)
			if err != nil {
				if errors.Is(err, catalog.ErrNotFound) {
					continue
				}
				return nil, err
			}
			agents = append(agents, agent)
		}
	}

	result := make([]AgentContext, 0, len(agents))
	for _, agent := range agents {
		result = append(result, r.resolve(agent, user, scope, view))
	}
	return result, nil
}

func (r *Resolver) resolveAgents(ctx context.Context, perms map[string]AgentPermission) ([]catalog.Agent, error) {
	var agents []catalog.Agent
	for agentID, perm := range perms {
		if !perm.Granted {
			continue
		}
		agent, err := r.catalog.GetAgent(ctx, agentID)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				continue
			}
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, nil
}
