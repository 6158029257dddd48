package access

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"agentgrid.io/internal/catalog"
	"agentgrid.io/internal/ids"
)

// unassignedOrganization marks users with no real organization; their
// requests go straight to the super-admin queue.
const unassignedOrganization = "unassigned"

// Requests runs the approval workflow: submission, review, escalation and
// the assignment created when a request is approved.
type Requests struct {
	requests    RequestStore
	assignments AssignmentStore
	catalog     catalog.Service
	now         func() time.Time
}

// NewRequests constructs the workflow service.
func NewRequests(requests RequestStore, assignments AssignmentStore, cat catalog.Service) (*Requests, error) {
	if requests == nil {
		return nil, errors.New("access: request store is required")
	}
	if assignments == nil {
		return nil, errors.New("access: assignment store is required")
	}
	if cat == nil {
		return nil, errors.New("access: agent catalog is required")
	}
	return &Requests{
		requests:    requests,
		assignments: assignments,
		catalog:     cat,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// SubmitInput describes a new access request.
type SubmitInput struct {
	UserID         string
	AgentID        string
	OrganizationID string
	NetworkID      string
	Priority       string
	Reason         string
}

// Submit creates a pending request. The approval queue is derived from the
// requester's position: network members queue at their network admin,
// organization members at their company admin, everyone else at the super
// admin, raised to the tier's required level when that sits higher.
func (s *Requests) Submit(ctx context.Context, in SubmitInput) (Request, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.AgentID = strings.TrimSpace(in.AgentID)
	if in.UserID == "" {
		return Request{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if in.AgentID == "" {
		return Request{}, fmt.Errorf("%w: agent id is required", ErrInvalidInput)
	}

	agent, err := s.catalog.GetAgent(ctx, in.AgentID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return Request{}, fmt.Errorf("%w: agent %s", ErrNotFound, in.AgentID)
		}
		return Request{}, err
	}

	if _, err := s.assignments.FindActiveAssignment(ctx, in.UserID, in.AgentID); err == nil {
		return Request{}, fmt.Errorf("%w: agent %s already assigned to user %s", ErrConflict, in.AgentID, in.UserID)
	} else if !errors.Is(err, ErrNotFound) {
		return Request{}, err
	}

	pending, err := s.requests.ListRequests(ctx, RequestFilter{
		UserID:  in.UserID,
		AgentID: in.AgentID,
		Status:  RequestPending,
	})
	if err != nil {
		return Request{}, err
	}
	if len(pending) > 0 {
		return Request{}, fmt.Errorf("%w: request already pending for agent %s", ErrConflict, in.AgentID)
	}

	req := Request{
		ID:             ids.New(),
		UserID:         in.UserID,
		AgentID:        in.AgentID,
		Status:         RequestPending,
		ApprovalLevel:  submitApprovalLevel(in.OrganizationID, in.NetworkID, agent.Tier),
		Priority:       in.Priority,
		OrganizationID: in.OrganizationID,
		NetworkID:      in.NetworkID,
		Reason:         strings.TrimSpace(in.Reason),
		RequestedAt:    s.now(),
	}
	if err := s.requests.CreateRequest(ctx, req); err != nil {
		return Request{}, err
	}
	return req, nil
}

func submitApprovalLevel(organizationID, networkID string, tier catalog.Tier) AdminLevel {
	level := LevelSuperAdmin
	switch {
	case strings.TrimSpace(networkID) != "":
		level = LevelNetworkAdmin
	case strings.TrimSpace(organizationID) != "" && organizationID != unassignedOrganization:
		level = LevelCompanyAdmin
	}
	if required := RequiredApprovalLevel(tier); IsHigherLevel(required, level) {
		level = required
	}
	return level
}

// Approve transitions a pending request to approved and creates exactly one
// active assignment. The reviewer must hold approval rights for the agent's
// tier.
func (s *Requests) Approve(ctx context.Context, requestID string, reviewer Identity) (Request, Assignment, error) {
	req, err := s.requests.FindRequest(ctx, requestID)
	if err != nil {
		return Request{}, Assignment{}, err
	}
	if req.Terminal() {
		return Request{}, Assignment{}, fmt.Errorf("%w: request %s", ErrAlreadyProcessed, requestID)
	}

	agent, err := s.catalog.GetAgent(ctx, req.AgentID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return Request{}, Assignment{}, fmt.Errorf("%w: agent %s is no longer cataloged", ErrNotFound, req.AgentID)
		}
		return Request{}, Assignment{}, err
	}
	if !CanApprove(agent.Tier, reviewer.Level) {
		return Request{}, Assignment{}, fmt.Errorf("%w: approving %s agents requires %s approval",
			ErrPermissionDenied, agent.Tier, RequiredApprovalLevel(agent.Tier))
	}

	if _, err := s.assignments.FindActiveAssignment(ctx, req.UserID, req.AgentID); err == nil {
		return Request{}, Assignment{}, fmt.Errorf("%w: agent %s already assigned to user %s", ErrConflict, req.AgentID, req.UserID)
	} else if !errors.Is(err, ErrNotFound) {
		return Request{}, Assignment{}, err
	}

	// The assignment is written before the request turns terminal. Losing
	// the active-pair race to a concurrent assign leaves the request pending
	// and reviewable instead of approved with nothing to show for it.
	now := s.now()
	assignment := Assignment{
		ID:         ids.New(),
		UserID:     req.UserID,
		AgentID:    req.AgentID,
		Type:       AssignApprovedRequest,
		Status:     AssignmentActive,
		AssignedBy: reviewer.UserID,
		Reason:     fmt.Sprintf("approved request %s", req.ID),
		AssignedAt: now,
	}
	if err := s.assignments.CreateAssignment(ctx, assignment); err != nil {
		return Request{}, Assignment{}, err
	}

	req.Status = RequestApproved
	req.ReviewedAt = &now
	req.ReviewedBy = reviewer.UserID
	if err := s.requests.UpdateRequest(ctx, req); err != nil {
		return Request{}, Assignment{}, err
	}
	return req, assignment, nil
}

// Deny transitions a pending request to denied. No assignment is created.
func (s *Requests) Deny(ctx context.Context, requestID string, reviewer Identity, reason string) (Request, error) {
	req, err := s.requests.FindRequest(ctx, requestID)
	if err != nil {
		return Request{}, err
	}
	if req.Terminal() {
		return Request{}, fmt.Errorf("%w: request %s", ErrAlreadyProcessed, requestID)
	}

	agent, err := s.catalog.GetAgent(ctx, req.AgentID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return Request{}, fmt.Errorf("%w: agent %s is no longer cataloged", ErrNotFound, req.AgentID)
		}
		return Request{}, err
	}
	if !CanApprove(agent.Tier, reviewer.Level) {
		return Request{}, fmt.Errorf("%w: reviewing %s agents requires %s approval",
			ErrPermissionDenied, agent.Tier, RequiredApprovalLevel(agent.Tier))
	}

	now := s.now()
	req.Status = RequestDenied
	req.ReviewedAt = &now
	req.ReviewedBy = reviewer.UserID
	req.Reason = strings.TrimSpace(reason)
	if err := s.requests.UpdateRequest(ctx, req); err != nil {
		return Request{}, err
	}
	return req, nil
}

// Escalate moves a pending request into a strictly higher approval queue.
// Only company and network admins escalate; the request stays pending.
func (s *Requests) Escalate(ctx context.Context, requestID string, reviewer Identity, escalateTo AdminLevel) (Request, error) {
	if reviewer.Level != LevelCompanyAdmin && reviewer.Level != LevelNetworkAdmin {
		return Request{}, fmt.Errorf("%w: only company or network admins may escalate", ErrPermissionDenied)
	}
	if !escalateTo.Valid() || !escalateTo.IsAdmin() {
		return Request{}, fmt.Errorf("%w: unknown escalation target %q", ErrInvalidInput, escalateTo)
	}

	req, err := s.requests.FindRequest(ctx, requestID)
	if err != nil {
		return Request{}, err
	}
	if req.Terminal() {
		return Request{}, fmt.Errorf("%w: request %s", ErrAlreadyProcessed, requestID)
	}
	if !IsHigherLevel(escalateTo, req.ApprovalLevel) {
		return Request{}, fmt.Errorf("%w: escalation target %s is not above %s", ErrInvalidInput, escalateTo, req.ApprovalLevel)
	}

	now := s.now()
	req.ApprovalLevel = escalateTo
	req.EscalatedAt = &now
	req.EscalatedBy = reviewer.UserID
	if err := s.requests.UpdateRequest(ctx, req); err != nil {
		return Request{}, err
	}
	return req, nil
}

// Get returns a single request by id.
func (s *Requests) Get(ctx context.Context, requestID string) (Request, error) {
	return s.requests.FindRequest(ctx, requestID)
}

// Pending returns pending requests scoped to the organization, optionally
// narrowed to one approval queue.
func (s *Requests) Pending(ctx context.Context, organizationID string, level AdminLevel) ([]Request, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organization id is required", ErrInvalidInput)
	}
	return s.requests.ListRequests(ctx, RequestFilter{
		OrganizationID: organizationID,
		Status:         RequestPending,
		ApprovalLevel:  level,
	})
}

// BulkItemError records a per-item failure inside a bulk operation.
type BulkItemError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BulkReviewResult aggregates a bulk approve or deny. Failures never abort
// the remaining items.
type BulkReviewResult struct {
	Reviewed []Request       `json:"reviewed"`
	Errors   []BulkItemError `json:"errors,omitempty"`
}

// BulkApprove applies Approve to each id independently and concurrently.
func (s *Requests) BulkApprove(ctx context.Context, requestIDs []string, reviewer Identity) BulkReviewResult {
	return s.bulkReview(requestIDs, func(id string) (Request, error) {
		req, _, err := s.Approve(ctx, id, reviewer)
		return req, err
	})
}

// BulkDeny applies Deny to each id independently and concurrently.
func (s *Requests) BulkDeny(ctx context.Context, requestIDs []string, reviewer Identity, reason string) BulkReviewResult {
	return s.bulkReview(requestIDs, func(id string) (Request, error) {
		return s.Deny(ctx, id, reviewer, reason)
	})
}

func (s *Requests) bulkReview(requestIDs []string, op func(id string) (Request, error)) BulkReviewResult {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		result BulkReviewResult
	)
	for _, id := range requestIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			req, err := op(id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, BulkItemError{ID: id, Error: err.Error()})
				return
			}
			result.Reviewed = append(result.Reviewed, req)
		}(id)
	}
	wg.Wait()
	return result
}
