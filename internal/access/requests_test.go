package access

import (
	"context"
	"errors"
	"testing"

	"agentgrid.io/internal/catalog"
)

func newWorkflow(t *testing.T) (*Requests, *InMemory, map[string]catalog.Agent) {
	t.Helper()
	cat, agents := seedCatalog(t)
	store := NewInMemory()
	svc, err := NewRequests(store, store, cat)
	if err != nil {
		t.Fatal(err)
	}
	return svc, store, agents
}

var superAdmin = Identity{UserID: "root", Level: LevelSuperAdmin}
var companyAdmin = Identity{UserID: "boss", OrganizationID: "acme", Level: LevelCompanyAdmin}

func TestSubmitApprovalLevelRouting(t *testing.T) {
	svc, _, agents := newWorkflow(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		in    SubmitInput
		agent string
		want  AdminLevel
	}{
		{"network member", SubmitInput{UserID: "u1", OrganizationID: "acme", NetworkID: "emea"}, "analyst", LevelNetworkAdmin},
		{"org member", SubmitInput{UserID: "u2", OrganizationID: "acme"}, "analyst", LevelCompanyAdmin},
		{"unassigned", SubmitInput{UserID: "u3", OrganizationID: "unassigned"}, "analyst", LevelSuperAdmin},
		{"no org", SubmitInput{UserID: "u4"}, "analyst", LevelSuperAdmin},
		{"enterprise escalates past network", SubmitInput{UserID: "u5", OrganizationID: "acme", NetworkID: "emea"}, "pipeline", LevelSuperAdmin},
	}
	for _, tc := range cases {
		in := tc.in
		in.AgentID = agents[tc.agent].ID
		req, err := svc.Submit(ctx, in)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if req.ApprovalLevel != tc.want {
			t.Fatalf("%s: approvalLevel=%s, want %s", tc.name, req.ApprovalLevel, tc.want)
		}
		if req.Status != RequestPending {
			t.Fatalf("%s: new request must be pending", tc.name)
		}
	}
}

func TestSubmitRejectsDuplicatePending(t *testing.T) {
	svc, _, agents := newWorkflow(t)
	ctx := context.Background()
	in := SubmitInput{UserID: "u1", AgentID: agents["pipeline"].ID, OrganizationID: "acme"}

	if _, err := svc.Submit(ctx, in); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Submit(ctx, in); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestApproveCreatesExactlyOneActiveAssignment(t *testing.T) {
	svc, store, agents := newWorkflow(t)
	ctx := context.Background()

	req, err := svc.Submit(ctx, SubmitInput{UserID: "u1", AgentID: agents["pipeline"].ID, OrganizationID: "acme"})
	if err != nil {
		t.Fatal(err)
	}
	approved, assignment, err := svc.Approve(ctx, req.ID, superAdmin)
	if err != nil {
		t.Fatal(err)
	}
	if approved.Status != RequestApproved || approved.ReviewedBy != "root" || approved.ReviewedAt == nil {
		t.Fatalf("unexpected request state: %+v", approved)
	}
	if assignment.Status != AssignmentActive || assignment.Type != AssignApprovedRequest {
		t.Fatalf("unexpected assignment: %+v", assignment)
	}
	all, _ := store.ListAssignments(ctx, AssignmentFilter{UserID: "u1", AgentID: agents["pipeline"].ID})
	if len(all) != 1 {
		t.Fatalf("expected exactly one assignment, got %d", len(all))
	}
}

// brokenAssignments rejects every insert, standing in for a store that lost
// the active-pair race or went away mid-approve.
type brokenAssignments struct {
	AssignmentStore
}

func (brokenAssignments) CreateAssignment(ctx context.Context, a Assignment) error {
	return errors.New("store unavailable")
}

func TestApproveFailedAssignmentKeepsRequestPending(t *testing.T) {
	cat, agents := seedCatalog(t)
	store := NewInMemory()
	svc, err := NewRequests(store, brokenAssignments{AssignmentStore: store}, cat)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	req, err := svc.Submit(ctx, SubmitInput{UserID: "u1", AgentID: agents["pipeline"].ID, OrganizationID: "acme"})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.Approve(ctx, req.ID, superAdmin); err == nil {
		t.Fatal("approve must fail when the assignment cannot be written")
	}

	got, err := store.FindRequest(ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != RequestPending || got.ReviewedBy != "" {
		t.Fatalf("request must stay pending and unreviewed: %+v", got)
	}
}

func TestApproveRequiresAuthority(t *testing.T) {
	svc, _, agents := newWorkflow(t)
	ctx := context.Background()

	req, _ := svc.Submit(ctx, SubmitInput{UserID: "u1", AgentID: agents["pipeline"].ID, OrganizationID: "acme"})
	_, _, err := svc.Approve(ctx, req.ID, companyAdmin)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("company admin must not approve enterprise, got %v", err)
	}
}

func TestDenyLeavesNoAssignment(t *testing.T) {
	svc, store, agents := newWorkflow(t)
	ctx := context.Background()

	req, _ := svc.Submit(ctx, SubmitInput{UserID: "u1", AgentID: agents["analyst"].ID, OrganizationID: "acme"})
	denied, err := svc.Deny(ctx, req.ID, companyAdmin, "budget")
	if err != nil {
		t.Fatal(err)
	}
	if denied.Status != RequestDenied || denied.Reason != "budget" {
		t.Fatalf("unexpected denied request: %+v", denied)
	}
	all, _ := store.ListAssignments(ctx, AssignmentFilter{UserID: "u1"})
	if len(all) != 0 {
		t.Fatalf("deny must not create assignments, got %d", len(all))
	}
}

func TestTerminalRequestsRejectFurtherReview(t *testing.T) {
	svc, _, agents := newWorkflow(t)
	ctx := context.Background()

	req, _ := svc.Submit(ctx, SubmitInput{UserID: "u1", AgentID: agents["analyst"].ID, OrganizationID: "acme"})
	if _, err := svc.Deny(ctx, req.ID, companyAdmin, "no"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.Approve(ctx, req.ID, superAdmin); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("approving a denied request must fail already-processed, got %v", err)
	}
	if _, err := svc.Deny(ctx, req.ID, superAdmin, "again"); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("re-denying must fail already-processed, got %v", err)
	}
}

func TestEscalate(t *testing.T) {
	svc, _, agents := newWorkflow(t)
	ctx := context.Background()

	req, _ := svc.Submit(ctx, SubmitInput{UserID: "u1", AgentID: agents["analyst"].ID, OrganizationID: "acme"})
	escalated, err := svc.Escalate(ctx, req.ID, companyAdmin, LevelSuperAdmin)
	if err != nil {
		t.Fatal(err)
	}
	if escalated.ApprovalLevel != LevelSuperAdmin {
		t.Fatalf("approval level not raised: %+v", escalated)
	}
	if escalated.Terminal() {
		t.Fatal("escalated request must stay reviewable")
	}
	if escalated.EscalatedBy != "boss" || escalated.EscalatedAt == nil {
		t.Fatalf("escalation not recorded: %+v", escalated)
	}

	// The escalated request is approvable at the new level.
	if _, _, err := svc.Approve(ctx, escalated.ID, superAdmin); err != nil {
		t.Fatal(err)
	}
}

func TestEscalateAuthority(t *testing.T) {
	svc, _, agents := newWorkflow(t)
	ctx := context.Background()

	req, _ := svc.Submit(ctx, SubmitInput{UserID: "u1", AgentID: agents["analyst"].ID, OrganizationID: "acme"})
	if _, err := svc.Escalate(ctx, req.ID, superAdmin, LevelSuperAdmin); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("super admins have nothing to escalate to, got %v", err)
	}
	user := Identity{UserID: "u9", Level: LevelUser}
	if _, err := svc.Escalate(ctx, req.ID, user, LevelSuperAdmin); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("plain users must not escalate, got %v", err)
	}
	if _, err := svc.Escalate(ctx, req.ID, companyAdmin, LevelCompanyAdmin); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("escalation target must be strictly higher, got %v", err)
	}
}

func TestPendingFilters(t *testing.T) {
	svc, _, agents := newWorkflow(t)
	ctx := context.Background()

	_, _ = svc.Submit(ctx, SubmitInput{UserID: "u1", AgentID: agents["analyst"].ID, OrganizationID: "acme"})
	_, _ = svc.Submit(ctx, SubmitInput{UserID: "u2", AgentID: agents["pipeline"].ID, OrganizationID: "acme"})
	_, _ = svc.Submit(ctx, SubmitInput{UserID: "u3", AgentID: agents["analyst"].ID, OrganizationID: "globex"})

	all, err := svc.Pending(ctx, "acme", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 pending for acme, got %d", len(all))
	}
	super, _ := svc.Pending(ctx, "acme", LevelSuperAdmin)
	if len(super) != 1 || super[0].AgentID != agents["pipeline"].ID {
		t.Fatalf("unexpected super-admin queue: %+v", super)
	}
}

func TestBulkApprovePartialFailure(t *testing.T) {
	svc, _, agents := newWorkflow(t)
	ctx := context.Background()

	r1, _ := svc.Submit(ctx, SubmitInput{UserID: "u1", AgentID: agents["analyst"].ID, OrganizationID: "acme"})
	r2, _ := svc.Submit(ctx, SubmitInput{UserID: "u2", AgentID: agents["analyst"].ID, OrganizationID: "acme"})
	if _, err := svc.Deny(ctx, r2.ID, companyAdmin, "no"); err != nil {
		t.Fatal(err)
	}

	result := svc.BulkApprove(ctx, []string{r1.ID, r2.ID, "missing"}, companyAdmin)
	if len(result.Reviewed) != 1 || result.Reviewed[0].ID != r1.ID {
		t.Fatalf("expected one approval, got %+v", result.Reviewed)
	}
	if len(result.Errors) != 2 {
		t.Fatalf("expected two per-item errors, got %+v", result.Errors)
	}
}

func TestBulkDeny(t *testing.T) {
	svc, _, agents := newWorkflow(t)
	ctx := context.Background()

	r1, _ := svc.Submit(ctx, SubmitInput{UserID: "u1", AgentID: agents["analyst"].ID, OrganizationID: "acme"})
	r2, _ := svc.Submit(ctx, SubmitInput{UserID: "u2", AgentID: agents["analyst"].ID, OrganizationID: "acme"})

	result := svc.BulkDeny(ctx, []string{r1.ID, r2.ID}, companyAdmin, "freeze")
	if len(result.Reviewed) != 2 || len(result.Errors) != 0 {
		t.Fatalf("unexpected bulk deny result: %+v", result)
	}
	for _, req := range result.Reviewed {
		if req.Status != RequestDenied || req.Reason != "freeze" {
			t.Fatalf("unexpected denied request: %+v", req)
		}
	}
}
