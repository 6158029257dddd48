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

// Library is the per-user assignment ledger. Every add action consults the
// permission matrix first: qualified callers write an assignment directly,
// approval-gated tiers produce a pending request instead.
type Library struct {
	assignments AssignmentStore
	requests    RequestStore
	catalog     catalog.Service
	now         func() time.Time
}

// NewLibrary constructs the ledger service.
func NewLibrary(assignments AssignmentStore, requests RequestStore, cat catalog.Service) (*Library, error) {
	if assignments == nil {
		return nil, errors.New("access: assignment store is required")
	}
	if requests == nil {
		return nil, errors.New("access: request store is required")
	}
	if cat == nil {
		return nil, errors.New("access: agent catalog is required")
	}
	return &Library{
		assignments: assignments,
		requests:    requests,
		catalog:     cat,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// AssignOutcome is the result of an add action: exactly one of Assignment or
// Request is set. Request is set when the caller's level required the
// approval workflow instead of a direct write.
type AssignOutcome struct {
	Assignment *Assignment `json:"assignment,omitempty"`
	Request    *Request    `json:"request,omitempty"`
}

// Assign adds an agent to a user's library on behalf of caller. Free agents
// are self-service; premium agents need admin authority; enterprise agents
// assigned by non-super admins fall through to a pending request.
func (l *Library) Assign(ctx context.Context, userID, agentID string, caller Identity, reason string) (AssignOutcome, error) {
	userID = strings.TrimSpace(userID)
	agentID = strings.TrimSpace(agentID)
	if userID == "" {
		return AssignOutcome{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if agentID == "" {
		return AssignOutcome{}, fmt.Errorf("%w: agent id is required", ErrInvalidInput)
	}

	agent, err := l.catalog.GetAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return AssignOutcome{}, fmt.Errorf("%w: agent %s", ErrNotFound, agentID)
		}
		return AssignOutcome{}, err
	}

	if _, err := l.assignments.FindActiveAssignment(ctx, userID, agentID); err == nil {
		return AssignOutcome{}, fmt.Errorf("%w: agent %s already assigned to user %s", ErrConflict, agentID, userID)
	} else if !errors.Is(err, ErrNotFound) {
		return AssignOutcome{}, err
	}

	perms := PermissionsFor(agent.Tier, caller.Level)
	switch {
	case perms.CanAssign:
		assignment := Assignment{
			ID:         ids.New(),
			UserID:     userID,
			AgentID:    agentID,
			Type:       perms.Type,
			Status:     AssignmentActive,
			AssignedBy: caller.UserID,
			Reason:     strings.TrimSpace(reason),
			AssignedAt: l.now(),
		}
		if err := l.assignments.CreateAssignment(ctx, assignment); err != nil {
			return AssignOutcome{}, err
		}
		return AssignOutcome{Assignment: &assignment}, nil

	case perms.RequiresApproval:
		pending, err := l.requests.ListRequests(ctx, RequestFilter{
			UserID:  userID,
			AgentID: agentID,
			Status:  RequestPending,
		})
		if err != nil {
			return AssignOutcome{}, err
		}
		if len(pending) > 0 {
			return AssignOutcome{}, fmt.Errorf("%w: request already pending for agent %s", ErrConflict, agentID)
		}
		req := Request{
			ID:             ids.New(),
			UserID:         userID,
			AgentID:        agentID,
			Status:         RequestPending,
			ApprovalLevel:  RequiredApprovalLevel(agent.Tier),
			OrganizationID: caller.OrganizationID,
			NetworkID:      caller.NetworkID,
			Reason:         strings.TrimSpace(reason),
			RequestedAt:    l.now(),
		}
		if err := l.requests.CreateRequest(ctx, req); err != nil {
			return AssignOutcome{}, err
		}
		return AssignOutcome{Request: &req}, nil

	default:
		return AssignOutcome{}, fmt.Errorf("%w: assigning %s agents requires %s",
			ErrPermissionDenied, agent.Tier, RequiredApprovalLevel(agent.Tier))
	}
}

// Remove marks a user's assignment removed. Removing an assignment that does
// not exist, or one already removed, fails.
func (l *Library) Remove(ctx context.Context, userID, agentID, removedBy, reason string) (Assignment, error) {
	userID = strings.TrimSpace(userID)
	agentID = strings.TrimSpace(agentID)
	if userID == "" || agentID == "" {
		return Assignment{}, fmt.Errorf("%w: user and agent ids are required", ErrInvalidInput)
	}

	existing, err := l.assignments.ListAssignments(ctx, AssignmentFilter{UserID: userID, AgentID: agentID})
	if err != nil {
		return Assignment{}, err
	}
	if len(existing) == 0 {
		return Assignment{}, fmt.Errorf("%w: no assignment of agent %s for user %s", ErrNotFound, agentID, userID)
	}

	var target *Assignment
	for i := range existing {
		if existing[i].Status != AssignmentRemoved {
			target = &existing[i]
			break
		}
	}
	if target == nil {
		return Assignment{}, fmt.Errorf("%w: assignment of agent %s already removed", ErrConflict, agentID)
	}

	now := l.now()
	target.Status = AssignmentRemoved
	target.RemovedAt = &now
	target.RemovedBy = strings.TrimSpace(removedBy)
	if reason = strings.TrimSpace(reason); reason != "" {
		target.Reason = reason
	}
	if err := l.assignments.UpdateAssignment(ctx, *target); err != nil {
		return Assignment{}, err
	}
	return *target, nil
}

// BulkAssignResult aggregates a fan-out assignment. Approval-gated adds
// surface as created requests rather than failures; only real errors land in
// Errors.
type BulkAssignResult struct {
	Assignments []Assignment    `json:"assignments,omitempty"`
	Requests    []Request       `json:"requests,omitempty"`
	Errors      []BulkItemError `json:"errors,omitempty"`
}

// BulkAssign assigns one agent to many users, each attempt independent and
// concurrent. Partial failure is an expected outcome; only a batch where no
// user could be assigned returns ErrNoneAssigned.
func (l *Library) BulkAssign(ctx context.Context, userIDs []string, agentID string, caller Identity, reason string) (BulkAssignResult, error) {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		result BulkAssignResult
	)
	for _, userID := range userIDs {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			outcome, err := l.Assign(ctx, userID, agentID, caller, reason)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, BulkItemError{ID: userID, Error: err.Error()})
				return
			}
			if outcome.Assignment != nil {
				result.Assignments = append(result.Assignments, *outcome.Assignment)
			}
			if outcome.Request != nil {
				result.Requests = append(result.Requests, *outcome.Request)
			}
		}(userID)
	}
	wg.Wait()

	if len(result.Assignments) == 0 && len(result.Requests) == 0 {
		return result, ErrNoneAssigned
	}
	return result, nil
}

// Assignments lists a user's assignments, optionally filtered by status. It
// never mutates state.
func (l *Library) Assignments(ctx context.Context, userID string, status AssignmentStatus) ([]Assignment, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return l.assignments.ListAssignments(ctx, AssignmentFilter{UserID: userID, Status: status})
}
