package access

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// InMemory implements Store with in-process concurrency safety. It mirrors
// the per-document atomicity of the production document store: every Save
// replaces the whole document.
type InMemory struct {
	mu          sync.RWMutex
	companies   map[string]CompanyGrants
	networks    map[string]NetworkGrants
	requests    map[string]Request
	assignments map[string]Assignment
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		companies:   make(map[string]CompanyGrants),
		networks:    make(map[string]NetworkGrants),
		requests:    make(map[string]Request),
		assignments: make(map[string]Assignment),
	}
}

var _ Store = (*InMemory)(nil)

func networkKey(companyID, networkID string) string {
	return companyID + "/" + networkID
}

func copyPermissions(src map[string]AgentPermission) map[string]AgentPermission {
	dst := make(map[string]AgentPermission, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (s *InMemory) SaveCompanyGrants(ctx context.Context, doc CompanyGrants) error {
	if doc.CompanyID == "" {
		return fmt.Errorf("%w: company id is required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc.Agents = copyPermissions(doc.Agents)
	s.companies[doc.CompanyID] = doc
	return nil
}

func (s *InMemory) FindCompanyGrants(ctx context.Context, companyID string) (CompanyGrants, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.companies[companyID]
	if !ok {
		return CompanyGrants{}, fmt.Errorf("%w: company grants %s", ErrNotFound, companyID)
	}
	doc.Agents = copyPermissions(doc.Agents)
	return doc, nil
}

func (s *InMemory) SaveNetworkGrants(ctx context.Context, doc NetworkGrants) error {
	if doc.CompanyID == "" || doc.NetworkID == "" {
		return fmt.Errorf("%w: company and network ids are required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc.Agents = copyPermissions(doc.Agents)
	s.networks[networkKey(doc.CompanyID, doc.NetworkID)] = doc
	return nil
}

func (s *InMemory) FindNetworkGrants(ctx context.Context, companyID, networkID string) (NetworkGrants, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.networks[networkKey(companyID, networkID)]
	if !ok {
		return NetworkGrants{}, fmt.Errorf("%w: network grants %s/%s", ErrNotFound, companyID, networkID)
	}
	doc.Agents = copyPermissions(doc.Agents)
	return doc, nil
}

func (s *InMemory) CreateRequest(ctx context.Context, req Request) error {
	if req.ID == "" {
		return fmt.Errorf("%w: request id is required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[req.ID]; ok {
		return fmt.Errorf("%w: request %s", ErrConflict, req.ID)
	}
	s.requests[req.ID] = req
	return nil
}

func (s *InMemory) FindRequest(ctx context.Context, id string) (Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return Request{}, fmt.Errorf("%w: request %s", ErrNotFound, id)
	}
	return req, nil
}

func (s *InMemory) UpdateRequest(ctx context.Context, req Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[req.ID]; !ok {
		return fmt.Errorf("%w: request %s", ErrNotFound, req.ID)
	}
	s.requests[req.ID] = req
	return nil
}

func (s *InMemory) ListRequests(ctx context.Context, filter RequestFilter) ([]Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []Request
	for _, req := range s.requests {
		if filter.OrganizationID != "" && req.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.UserID != "" && req.UserID != filter.UserID {
			continue
		}
		if filter.AgentID != "" && req.AgentID != filter.AgentID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.ApprovalLevel != "" && req.ApprovalLevel != filter.ApprovalLevel {
			continue
		}
		result = append(result, req)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *InMemory) CreateAssignment(ctx context.Context, a Assignment) error {
	if a.ID == "" {
		return fmt.Errorf("%w: assignment id is required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assignments[a.ID]; ok {
		return fmt.Errorf("%w: assignment %s", ErrConflict, a.ID)
	}
	if a.Status == AssignmentActive {
		for _, existing := range s.assignments {
			if existing.UserID == a.UserID && existing.AgentID == a.AgentID && existing.Status == AssignmentActive {
				return fmt.Errorf("%w: agent %s already assigned to user %s", ErrConflict, a.AgentID, a.UserID)
			}
		}
	}
	s.assignments[a.ID] = a
	return nil
}

func (s *InMemory) FindAssignment(ctx context.Context, id string) (Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[id]
	if !ok {
		return Assignment{}, fmt.Errorf("%w: assignment %s", ErrNotFound, id)
	}
	return a, nil
}

func (s *InMemory) UpdateAssignment(ctx context.Context, a Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assignments[a.ID]; !ok {
		return fmt.Errorf("%w: assignment %s", ErrNotFound, a.ID)
	}
	s.assignments[a.ID] = a
	return nil
}

func (s *InMemory) ListAssignments(ctx context.Context, filter AssignmentFilter) ([]Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []Assignment
	for _, a := range s.assignments {
		if filter.UserID != "" && a.UserID != filter.UserID {
			continue
		}
		if filter.AgentID != "" && a.AgentID != filter.AgentID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *InMemory) FindActiveAssignment(ctx context.Context, userID, agentID string) (Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.assignments {
		if a.UserID == userID && a.AgentID == agentID && a.Status == AssignmentActive {
			return a, nil
		}
	}
	return Assignment{}, fmt.Errorf("%w: no active assignment for user %s agent %s", ErrNotFound, userID, agentID)
}
