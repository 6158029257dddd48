package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"agentgrid.io/internal/access"
	"agentgrid.io/internal/auth"
	"agentgrid.io/internal/catalog"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	t.Setenv("AGENTGRID_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	cat := catalog.NewInMemory()
	store := access.NewInMemory()
	grants, err := access.NewGrants(store, cat)
	if err != nil {
		t.Fatal(err)
	}
	requests, err := access.NewRequests(store, store, cat)
	if err != nil {
		t.Fatal(err)
	}
	library, err := access.NewLibrary(store, store, cat)
	if err != nil {
		t.Fatal(err)
	}
	resolver, err := access.NewResolver(store, store, cat)
	if err != nil {
		t.Fatal(err)
	}

	api := New(ReadyProbe{}, "test", cat, grants, requests, library, resolver)
	api.rateBurst = 1000
	api.ratePerSec = 1000

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) put(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPut, path, body, headers)
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func (c *apiClient) token(userID, orgID, networkID, level string) map[string]string {
	c.t.Helper()
	resp := c.post("/v1/auth/token", map[string]any{
		"user_id":         userID,
		"organization_id": orgID,
		"network_id":      networkID,
		"level":           level,
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected token status: %d", resp.StatusCode)
	}
	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.t.Fatalf("decode token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + payload.Token}
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("unexpected status: got %d, want %d", resp.StatusCode, want)
	}
	resp.Body.Close()
}

// createAgent seeds the catalog through the API as a super admin.
func (c *apiClient) createAgent(name, tier string) catalog.Agent {
	c.t.Helper()
	super := c.token("root", "", "", "super_admin")
	resp := c.post("/v1/agents", map[string]any{"name": name, "tier": tier}, super)
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("seed agent: unexpected status %d", resp.StatusCode)
	}
	var agent catalog.Agent
	decodeBody(c.t, resp, &agent)
	return agent
}

func TestHealthAndInfo(t *testing.T) {
	c := newTestAPI(t)

	resp := c.get("/healthz", nil, nil)
	expectStatus(t, resp, http.StatusOK)

	resp = c.get("/readyz", nil, nil)
	expectStatus(t, resp, http.StatusOK)

	resp = c.get("/v1/info", nil, nil)
	var info map[string]any
	decodeBody(t, resp, &info)
	if info["name"] != "agentgrid-api" {
		t.Fatalf("unexpected info: %v", info)
	}
}

func TestAuthRequired(t *testing.T) {
	c := newTestAPI(t)

	resp := c.get("/v1/agents", nil, nil)
	expectStatus(t, resp, http.StatusUnauthorized)

	resp = c.get("/v1/agents", nil, map[string]string{"Authorization": "Bearer not-a-token"})
	expectStatus(t, resp, http.StatusUnauthorized)
}

func TestAgentCatalogEndpoints(t *testing.T) {
	c := newTestAPI(t)
	agent := c.createAgent("Report Writer", "premium")

	user := c.token("u1", "acme", "", "user")

	resp := c.get("/v1/agents/"+agent.ID, nil, user)
	var got catalog.Agent
	decodeBody(t, resp, &got)
	if got.Name != "Report Writer" || got.Tier != catalog.TierPremium {
		t.Fatalf("unexpected agent: %+v", got)
	}

	resp = c.get("/v1/agents", url.Values{"tier": {"premium"}}, user)
	var list struct {
		Items []catalog.Agent `json:"items"`
	}
	decodeBody(t, resp, &list)
	if len(list.Items) != 1 {
		t.Fatalf("expected one premium agent, got %d", len(list.Items))
	}

	// Catalog writes are super-admin only.
	resp = c.post("/v1/agents", map[string]any{"name": "X", "tier": "free"}, user)
	expectStatus(t, resp, http.StatusForbidden)

	companyAdmin := c.token("admin-1", "acme", "", "company_admin")
	resp = c.put("/v1/agents/"+agent.ID+"/status", map[string]any{"status": "retired"}, companyAdmin)
	expectStatus(t, resp, http.StatusForbidden)
}

func TestCompanyGrantEndpoints(t *testing.T) {
	c := newTestAPI(t)
	writer := c.createAgent("Writer", "free")
	analyst := c.createAgent("Analyst", "premium")

	admin := c.token("admin-1", "acme", "", "company_admin")
	resp := c.put("/v1/companies/acme/grants", map[string]any{
		"agents": map[string]bool{writer.ID: true, analyst.ID: true},
	}, admin)
	expectStatus(t, resp, http.StatusOK)

	// Visible to members.
	user := c.token("u1", "acme", "", "user")
	resp = c.get("/v1/companies/acme/grants", nil, user)
	var list struct {
		Items []catalog.Agent `json:"items"`
	}
	decodeBody(t, resp, &list)
	if len(list.Items) != 2 {
		t.Fatalf("expected two granted agents, got %d", len(list.Items))
	}

	resp = c.get("/v1/companies/acme/grants/stats", nil, admin)
	var stats access.GrantStats
	decodeBody(t, resp, &stats)
	if stats.TotalGranted != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	// Company admins cannot touch other organizations.
	other := c.token("admin-2", "globex", "", "company_admin")
	resp = c.put("/v1/companies/acme/grants", map[string]any{
		"agents": map[string]bool{writer.ID: true},
	}, other)
	expectStatus(t, resp, http.StatusForbidden)

	// Plain users cannot grant at all.
	resp = c.put("/v1/companies/acme/grants", map[string]any{
		"agents": map[string]bool{writer.ID: true},
	}, user)
	expectStatus(t, resp, http.StatusForbidden)
}

func TestNetworkGrantSubset(t *testing.T) {
	c := newTestAPI(t)
	writer := c.createAgent("Writer", "free")
	analyst := c.createAgent("Analyst", "premium")

	admin := c.token("admin-1", "acme", "", "company_admin")
	resp := c.put("/v1/companies/acme/grants", map[string]any{
		"agents": map[string]bool{writer.ID: true},
	}, admin)
	expectStatus(t, resp, http.StatusOK)

	// analyst is not company-granted, so it is silently dropped.
	resp = c.put("/v1/companies/acme/networks/emea/grants", map[string]any{
		"agents": map[string]bool{writer.ID: true, analyst.ID: true},
	}, admin)
	var doc access.NetworkGrants
	decodeBody(t, resp, &doc)
	if len(doc.Agents) != 1 {
		t.Fatalf("network grant must stay a company subset: %+v", doc.Agents)
	}

	user := c.token("u1", "acme", "emea", "user")
	resp = c.get("/v1/companies/acme/networks/emea/grants", nil, user)
	var list struct {
		Items []catalog.Agent `json:"items"`
	}
	decodeBody(t, resp, &list)
	if len(list.Items) != 1 || list.Items[0].ID != writer.ID {
		t.Fatalf("unexpected network agents: %+v", list.Items)
	}
}

func TestAssignmentEndpoints(t *testing.T) {
	c := newTestAPI(t)
	writer := c.createAgent("Writer", "free")
	pipeline := c.createAgent("Pipeline", "enterprise")

	user := c.token("u1", "acme", "", "user")

	// Free tier is self-service.
	resp := c.post("/v1/assignments", map[string]any{"agent_id": writer.ID}, user)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("free self-assign: unexpected status %d", resp.StatusCode)
	}
	var outcome access.AssignOutcome
	decodeBody(t, resp, &outcome)
	if outcome.Assignment == nil || outcome.Assignment.Type != access.AssignFree {
		t.Fatalf("expected free assignment, got %+v", outcome)
	}

	// Duplicate active assignment conflicts.
	resp = c.post("/v1/assignments", map[string]any{"agent_id": writer.ID}, user)
	expectStatus(t, resp, http.StatusConflict)

	// Enterprise via company admin queues a request instead.
	admin := c.token("admin-1", "acme", "", "company_admin")
	resp = c.post("/v1/assignments", map[string]any{"user_id": "u1", "agent_id": pipeline.ID}, admin)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("enterprise assign: unexpected status %d", resp.StatusCode)
	}
	decodeBody(t, resp, &outcome)
	if outcome.Request == nil || outcome.Request.ApprovalLevel != access.LevelSuperAdmin {
		t.Fatalf("expected super admin request, got %+v", outcome)
	}

	// Users cannot assign to someone else.
	resp = c.post("/v1/assignments", map[string]any{"user_id": "u2", "agent_id": writer.ID}, user)
	expectStatus(t, resp, http.StatusForbidden)

	// Remove and list.
	resp = c.post("/v1/assignments/remove", map[string]any{"agent_id": writer.ID}, user)
	expectStatus(t, resp, http.StatusOK)

	resp = c.get("/v1/users/u1/assignments", url.Values{"status": {"removed"}}, user)
	var list struct {
		Items []access.Assignment `json:"items"`
	}
	decodeBody(t, resp, &list)
	if len(list.Items) != 1 || list.Items[0].Status != access.AssignmentRemoved {
		t.Fatalf("unexpected assignments: %+v", list.Items)
	}

	// Other users' ledgers need admin level.
	resp = c.get("/v1/users/u2/assignments", nil, user)
	expectStatus(t, resp, http.StatusForbidden)
}

func TestBulkAssign(t *testing.T) {
	c := newTestAPI(t)
	analyst := c.createAgent("Analyst", "premium")

	admin := c.token("admin-1", "acme", "", "company_admin")
	resp := c.post("/v1/assignments/bulk", map[string]any{
		"user_ids": []string{"u1", "u2", "u3"},
		"agent_id": analyst.ID,
	}, admin)
	var result access.BulkAssignResult
	decodeBody(t, resp, &result)
	if len(result.Assignments) != 3 || len(result.Errors) != 0 {
		t.Fatalf("unexpected bulk result: %+v", result)
	}

	user := c.token("u1", "acme", "", "user")
	resp = c.post("/v1/assignments/bulk", map[string]any{
		"user_ids": []string{"u4"},
		"agent_id": analyst.ID,
	}, user)
	expectStatus(t, resp, http.StatusForbidden)
}

func TestRequestWorkflowEndpoints(t *testing.T) {
	c := newTestAPI(t)
	analyst := c.createAgent("Analyst", "premium")

	user := c.token("u1", "acme", "", "user")
	resp := c.post("/v1/requests", map[string]any{"agent_id": analyst.ID, "reason": "need it"}, user)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit: unexpected status %d", resp.StatusCode)
	}
	var req access.Request
	decodeBody(t, resp, &req)
	if req.ApprovalLevel != access.LevelCompanyAdmin {
		t.Fatalf("unexpected approval level: %s", req.ApprovalLevel)
	}

	// Duplicate pending request conflicts.
	resp = c.post("/v1/requests", map[string]any{"agent_id": analyst.ID}, user)
	expectStatus(t, resp, http.StatusConflict)

	admin := c.token("admin-1", "acme", "", "company_admin")
	resp = c.get("/v1/requests/pending", nil, admin)
	var pending struct {
		Items []access.Request `json:"items"`
	}
	decodeBody(t, resp, &pending)
	if len(pending.Items) != 1 {
		t.Fatalf("expected one pending request, got %d", len(pending.Items))
	}

	// Requester can read their own request; admins also can.
	resp = c.get("/v1/requests/"+req.ID, nil, user)
	expectStatus(t, resp, http.StatusOK)

	resp = c.post("/v1/requests/"+req.ID+"/approve", nil, admin)
	var reviewed struct {
		Request    access.Request    `json:"request"`
		Assignment access.Assignment `json:"assignment"`
	}
	decodeBody(t, resp, &reviewed)
	if reviewed.Request.Status != access.RequestApproved {
		t.Fatalf("unexpected request state: %+v", reviewed.Request)
	}
	if reviewed.Assignment.Type != access.AssignApprovedRequest || reviewed.Assignment.Status != access.AssignmentActive {
		t.Fatalf("unexpected assignment: %+v", reviewed.Assignment)
	}

	// Re-review conflicts.
	resp = c.post("/v1/requests/"+req.ID+"/deny", map[string]any{"reason": "no"}, admin)
	expectStatus(t, resp, http.StatusConflict)
}

func TestEscalateAndBulkReview(t *testing.T) {
	c := newTestAPI(t)
	analyst := c.createAgent("Analyst", "premium")

	u1 := c.token("u1", "acme", "", "user")
	u2 := c.token("u2", "acme", "", "user")
	var reqIDs []string
	for _, headers := range []map[string]string{u1, u2} {
		resp := c.post("/v1/requests", map[string]any{"agent_id": analyst.ID}, headers)
		var req access.Request
		decodeBody(t, resp, &req)
		reqIDs = append(reqIDs, req.ID)
	}

	admin := c.token("admin-1", "acme", "", "company_admin")
	resp := c.post("/v1/requests/"+reqIDs[0]+"/escalate", map[string]any{"escalate_to": "super_admin"}, admin)
	var escalated access.Request
	decodeBody(t, resp, &escalated)
	if escalated.Status != access.RequestPending || escalated.ApprovalLevel != access.LevelSuperAdmin {
		t.Fatalf("escalation must keep the request pending at the higher level: %+v", escalated)
	}

	resp = c.post("/v1/requests/bulk/deny", map[string]any{
		"request_ids": []string{reqIDs[0], reqIDs[1], "missing"},
		"reason":      "cleanup",
	}, admin)
	var result access.BulkReviewResult
	decodeBody(t, resp, &result)
	if len(result.Reviewed) != 2 || len(result.Errors) != 1 {
		t.Fatalf("unexpected bulk result: %+v", result)
	}
}

func TestLibraryEndpoints(t *testing.T) {
	c := newTestAPI(t)
	writer := c.createAgent("Writer", "free")
	analyst := c.createAgent("Analyst", "premium")

	admin := c.token("admin-1", "acme", "", "company_admin")
	resp := c.put("/v1/companies/acme/grants", map[string]any{
		"agents": map[string]bool{analyst.ID: true},
	}, admin)
	expectStatus(t, resp, http.StatusOK)

	user := c.token("u1", "acme", "", "user")
	resp = c.post("/v1/assignments", map[string]any{"agent_id": writer.ID}, user)
	expectStatus(t, resp, http.StatusCreated)

	resp = c.get("/v1/library/global", nil, user)
	var view struct {
		Items []access.AgentContext `json:"items"`
	}
	decodeBody(t, resp, &view)
	if len(view.Items) != 2 {
		t.Fatalf("expected both agents in global view, got %d", len(view.Items))
	}

	resp = c.get("/v1/library/company", nil, user)
	decodeBody(t, resp, &view)
	if len(view.Items) != 1 || view.Items[0].AgentID != analyst.ID {
		t.Fatalf("unexpected company view: %+v", view.Items)
	}

	resp = c.get("/v1/library/personal", nil, user)
	decodeBody(t, resp, &view)
	if len(view.Items) != 1 || view.Items[0].AgentID != writer.ID || !view.Items[0].InLibrary {
		t.Fatalf("unexpected personal view: %+v", view.Items)
	}

	// Per-agent context: premium for a plain user is request-gated.
	resp = c.get("/v1/library/company/agents/"+analyst.ID, nil, user)
	var agentCtx access.AgentContext
	decodeBody(t, resp, &agentCtx)
	if agentCtx.AccessLevel != access.AccessRequest || !agentCtx.CanRequest || agentCtx.CanAdd {
		t.Fatalf("unexpected agent context: %+v", agentCtx)
	}

	resp = c.get("/v1/library/unknown", nil, user)
	expectStatus(t, resp, http.StatusBadRequest)
}
