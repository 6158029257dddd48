package access

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agentgrid.io/internal/catalog"
	"agentgrid.io/internal/obs"
)

// Grants manages the hierarchical grant documents: which agents a company
// has, and which subset of those each of its networks has.
type Grants struct {
	store   GrantStore
	catalog catalog.Service
	now     func() time.Time
}

// NewGrants constructs the grant service.
func NewGrants(store GrantStore, cat catalog.Service) (*Grants, error) {
	if store == nil {
		return nil, errors.New("access: grant store is required")
	}
	if cat == nil {
		return nil, errors.New("access: agent catalog is required")
	}
	return &Grants{store: store, catalog: cat, now: func() time.Time { return time.Now().UTC() }}, nil
}

// GrantToCompany overwrites the company's full permission document. The tier
// of every agent is fetched from the catalog at grant time, never cached;
// agents missing from the catalog are skipped with a warning.
func (g *Grants) GrantToCompany(ctx context.Context, companyID string, granted map[string]bool, adminID string) (CompanyGrants, error) {
	companyID = strings.TrimSpace(companyID)
	if companyID == "" {
		return CompanyGrants{}, fmt.Errorf("%w: company id is required", ErrInvalidInput)
	}
	adminID = strings.TrimSpace(adminID)
	if adminID == "" {
		return CompanyGrants{}, fmt.Errorf("%w: admin id is required", ErrInvalidInput)
	}

	now := g.now()
	doc := CompanyGrants{
		CompanyID: companyID,
		Agents:    make(map[string]AgentPermission, len(granted)),
		UpdatedAt: now,
		UpdatedBy: adminID,
	}
	for agentID, isGranted := range granted {
		perm, ok, err := g.permissionFor(ctx, agentID, isGranted, adminID, now)
		if err != nil {
			return CompanyGrants{}, err
		}
		if !ok {
			continue
		}
		doc.Agents[agentID] = perm
	}
	if err := g.store.SaveCompanyGrants(ctx, doc); err != nil {
		return CompanyGrants{}, err
	}
	return doc, nil
}

// GrantToNetwork overwrites the network's permission document, restricted to
// agents the owning company currently has granted. Agents outside that set
// are skipped with a warning; the rest of the call succeeds. The read of the
// company document and the write of the network document are two separate
// operations: a concurrent company revoke can slip between them.
func (g *Grants) GrantToNetwork(ctx context.Context, companyID, networkID string, granted map[string]bool, adminID string) (NetworkGrants, error) {
	companyID = strings.TrimSpace(companyID)
	networkID = strings.TrimSpace(networkID)
	if companyID == "" || networkID == "" {
		return NetworkGrants{}, fmt.Errorf("%w: company and network ids are required", ErrInvalidInput)
	}
	adminID = strings.TrimSpace(adminID)
	if adminID == "" {
		return NetworkGrants{}, fmt.Errorf("%w: admin id is required", ErrInvalidInput)
	}

	companyGranted, err := g.companyGrantedSet(ctx, companyID)
	if err != nil {
		return NetworkGrants{}, err
	}

	now := g.now()
	doc := NetworkGrants{
		CompanyID: companyID,
		NetworkID: networkID,
		Agents:    make(map[string]AgentPermission, len(granted)),
		UpdatedAt: now,
		UpdatedBy: adminID,
	}
	for agentID, isGranted := range granted {
		if !companyGranted[agentID] {
			obs.Warn("network grant skipped: agent not granted to company", map[string]any{
				"company_id": companyID,
				"network_id": networkID,
				"agent_id":   agentID,
			})
			continue
		}
		perm, ok, err := g.permissionFor(ctx, agentID, isGranted, adminID, now)
		if err != nil {
			return NetworkGrants{}, err
		}
		if !ok {
			continue
		}
		doc.Agents[agentID] = perm
	}
	if err := g.store.SaveNetworkGrants(ctx, doc); err != nil {
		return NetworkGrants{}, err
	}
	return doc, nil
}

// CompanyAvailable returns the agents granted to the company, resolved
// against the live catalog. Granted agents that have since left the catalog
// silently disappear from the result.
func (g *Grants) CompanyAvailable(ctx context.Context, companyID string) ([]catalog.Agent, error) {
	doc, err := g.store.FindCompanyGrants(ctx, companyID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return g.resolveGranted(ctx, doc.Agents)
}

// NetworkAvailable returns the agents granted to the network, resolved
// against the live catalog.
func (g *Grants) NetworkAvailable(ctx context.Context, companyID, networkID string) ([]catalog.Agent, error) {
	doc, err := g.store.FindNetworkGrants(ctx, companyID, networkID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return g.resolveGranted(ctx, doc.Agents)
}

// CompanyStats folds the company's permission document into counters. A
// missing document yields zeroed stats, not an error.
func (g *Grants) CompanyStats(ctx context.Context, companyID string) (GrantStats, error) {
	doc, err := g.store.FindCompanyGrants(ctx, companyID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return zeroStats(), nil
		}
		return GrantStats{}, err
	}
	return foldStats(doc.Agents), nil
}

// NetworkStats folds the network's permission document into counters.
func (g *Grants) NetworkStats(ctx context.Context, companyID, networkID string) (GrantStats, error) {
	doc, err := g.store.FindNetworkGrants(ctx, companyID, networkID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return zeroStats(), nil
		}
		return GrantStats{}, err
	}
	return foldStats(doc.Agents), nil
}

func (g *Grants) permissionFor(ctx context.Context, agentID string, granted bool, adminID string, now time.Time) (AgentPermission, bool, error) {
	agent, err := g.catalog.GetAgent(ctx, agentID)
	if err != nil {
		// Only a confirmed catalog miss may prune the entry; a failing
		// catalog read must not shrink the persisted document.
		if errors.Is(err, catalog.ErrNotFound) {
			obs.Warn("grant skipped: agent not in catalog", map[string]any{"agent_id": agentID})
			return AgentPermission{}, false, nil
		}
		return AgentPermission{}, false, err
	}
	return AgentPermission{
		AgentID:   agent.ID,
		AgentName: agent.Name,
		Granted:   granted,
		Tier:      agent.Tier,
		Type:      AssignmentTypeFor(agent.Tier, LevelCompanyAdmin),
		GrantedBy: adminID,
		GrantedAt: now,
	}, true, nil
}

func (g *Grants) companyGrantedSet(ctx context.Context, companyID string) (map[string]bool, error) {
	doc, err := g.store.FindCompanyGrants(ctx, companyID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return map[string]bool{}, nil
		}
		return nil, err
	}
	set := make(map[string]bool, len(doc.Agents))
	for id, perm := range doc.Agents {
		if perm.Granted {
			set[id] = true
		}
	}
	return set, nil
}

func (g *Grants) resolveGranted(ctx context.Context, perms map[string]AgentPermission) ([]catalog.Agent, error) {
	var agents []catalog.Agent
	for id, perm := range perms {
		if !perm.Granted {
			continue
		}
		agent, err := g.catalog.GetAgent(ctx, id)
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

func zeroStats() GrantStats {
	return GrantStats{ByTier: map[catalog.Tier]int{}}
}

func foldStats(perms map[string]AgentPermission) GrantStats {
	stats := zeroStats()
	for _, perm := range perms {
		stats.TotalAvailable++
		if perm.Granted {
			stats.TotalGranted++
			stats.ByTier[perm.Tier]++
		}
	}
	return stats
}
