package access

import (
	"context"
	"errors"
	"testing"

	"agentgrid.io/internal/catalog"
)

type fixture struct {
	cat      catalog.Service
	store    *InMemory
	grants   *Grants
	library  *Library
	resolver *Resolver
	agents   map[string]catalog.Agent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat, agents := seedCatalog(t)
	store := NewInMemory()
	grants, err := NewGrants(store, cat)
	if err != nil {
		t.Fatal(err)
	}
	library, err := NewLibrary(store, store, cat)
	if err != nil {
		t.Fatal(err)
	}
	resolver, err := NewResolver(store, store, cat)
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{cat: cat, store: store, grants: grants, library: library, resolver: resolver, agents: agents}
}

func hasScope(scopes []LibraryType, want LibraryType) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}

func TestAvailableInScopes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member := Identity{UserID: "u1", OrganizationID: "acme", NetworkID: "emea", Level: LevelUser}

	if _, err := f.grants.GrantToCompany(ctx, "acme", map[string]bool{f.agents["analyst"].ID: true}, "admin-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.grants.GrantToNetwork(ctx, "acme", "emea", map[string]bool{f.agents["analyst"].ID: true}, "admin-1"); err != nil {
		t.Fatal(err)
	}

	out, err := f.resolver.AgentContext(ctx, f.agents["analyst"].ID, member, LibraryGlobal)
	if err != nil {
		t.Fatal(err)
	}
	for _, scope := range []LibraryType{LibraryGlobal, LibraryCompany, LibraryNetwork} {
		if !hasScope(out.AvailableIn, scope) {
			t.Fatalf("expected %s in availableIn, got %v", scope, out.AvailableIn)
		}
	}
	if hasScope(out.AvailableIn, LibraryPersonal) {
		t.Fatal("agent not in the user's library must not be personal")
	}
	if out.GrantedBy != "admin-1" {
		t.Fatalf("grantedBy not propagated: %+v", out)
	}
}

func TestAgentOutsideOrgOnlyGlobal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	outsider := Identity{UserID: "u9", OrganizationID: "globex", Level: LevelUser}

	out, err := f.resolver.AgentContext(ctx, f.agents["writer"].ID, outsider, LibraryGlobal)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.AvailableIn) != 1 || out.AvailableIn[0] != LibraryGlobal {
		t.Fatalf("ungranted agent must only be global: %v", out.AvailableIn)
	}
}

func TestAccessLevelByTier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := Identity{UserID: "u1", OrganizationID: "acme", Level: LevelUser}

	free, _ := f.resolver.AgentContext(ctx, f.agents["writer"].ID, user, LibraryGlobal)
	if free.AccessLevel != AccessDirect || !free.CanAdd || free.CanRequest {
		t.Fatalf("free tier must be self-addable: %+v", free)
	}
	premium, _ := f.resolver.AgentContext(ctx, f.agents["analyst"].ID, user, LibraryGlobal)
	if premium.AccessLevel != AccessRequest || premium.CanAdd || !premium.CanRequest {
		t.Fatalf("premium for plain user must be request-only: %+v", premium)
	}
	enterprise, _ := f.resolver.AgentContext(ctx, f.agents["pipeline"].ID, user, LibraryGlobal)
	if enterprise.AccessLevel != AccessRequest || enterprise.CanAdd {
		t.Fatalf("enterprise for plain user must be request-only: %+v", enterprise)
	}

	// Elevated callers direct-add premium agents.
	admin, _ := f.resolver.AgentContext(ctx, f.agents["analyst"].ID, companyAdmin, LibraryGlobal)
	if admin.AccessLevel != AccessDirect || !admin.CanAdd {
		t.Fatalf("premium for company admin must be direct: %+v", admin)
	}
}

func TestInLibraryForcesActionsOff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := Identity{UserID: "u1", OrganizationID: "acme", Level: LevelUser}

	if _, err := f.library.Assign(ctx, "u1", f.agents["writer"].ID, user, ""); err != nil {
		t.Fatal(err)
	}
	out, err := f.resolver.AgentContext(ctx, f.agents["writer"].ID, user, LibraryGlobal)
	if err != nil {
		t.Fatal(err)
	}
	if !out.InLibrary || !hasScope(out.AvailableIn, LibraryPersonal) {
		t.Fatalf("assignment must surface as personal availability: %+v", out)
	}
	if out.CanAdd || out.CanRequest {
		t.Fatalf("held agents must force canAdd and canRequest false: %+v", out)
	}
	if out.AccessLevel != AccessDirect {
		t.Fatalf("held agents resolve direct: %+v", out)
	}
}

func TestPersonalScopeRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := Identity{UserID: "u1", OrganizationID: "acme", Level: LevelUser}

	if _, err := f.library.Assign(ctx, "u1", f.agents["writer"].ID, user, ""); err != nil {
		t.Fatal(err)
	}
	items, err := f.resolver.LibraryAgents(ctx, user, LibraryPersonal)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 personal item, got %d", len(items))
	}
	if items[0].CanAdd {
		t.Fatal("the personal view never offers add")
	}
	if items[0].AccessLevel != AccessDirect {
		t.Fatalf("personal items are direct: %+v", items[0])
	}

	// An agent the user does not hold keeps its tier-derived level even when
	// queried through the personal scope.
	out, err := f.resolver.AgentContext(ctx, f.agents["analyst"].ID, user, LibraryPersonal)
	if err != nil {
		t.Fatal(err)
	}
	if out.InLibrary {
		t.Fatalf("analyst is not held: %+v", out)
	}
	if out.AccessLevel != AccessRequest || !out.CanRequest || out.CanAdd {
		t.Fatalf("unheld premium agent must stay request-gated in the personal scope: %+v", out)
	}
}

func TestLibraryAgentsByScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member := Identity{UserID: "u1", OrganizationID: "acme", NetworkID: "emea", Level: LevelUser}

	if _, err := f.grants.GrantToCompany(ctx, "acme", map[string]bool{
		f.agents["writer"].ID:  true,
		f.agents["analyst"].ID: true,
	}, "admin-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.grants.GrantToNetwork(ctx, "acme", "emea", map[string]bool{f.agents["writer"].ID: true}, "admin-1"); err != nil {
		t.Fatal(err)
	}

	global, err := f.resolver.LibraryAgents(ctx, member, LibraryGlobal)
	if err != nil {
		t.Fatal(err)
	}
	if len(global) != 3 {
		t.Fatalf("global view lists the whole catalog, got %d", len(global))
	}
	company, _ := f.resolver.LibraryAgents(ctx, member, LibraryCompany)
	if len(company) != 2 {
		t.Fatalf("company view lists granted agents, got %d", len(company))
	}
	network, _ := f.resolver.LibraryAgents(ctx, member, LibraryNetwork)
	if len(network) != 1 || network[0].AgentID != f.agents["writer"].ID {
		t.Fatalf("network view lists the network subset, got %+v", network)
	}
	personal, _ := f.resolver.LibraryAgents(ctx, member, LibraryPersonal)
	if len(personal) != 0 {
		t.Fatalf("empty ledger means empty personal view, got %d", len(personal))
	}
}

func TestResolverInvalidScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := Identity{UserID: "u1", Level: LevelUser}

	if _, err := f.resolver.AgentContext(ctx, f.agents["writer"].ID, user, "universe"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unknown scope must be invalid input, got %v", err)
	}
	if _, err := f.resolver.LibraryAgents(ctx, user, "universe"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unknown scope must be invalid input, got %v", err)
	}
}
