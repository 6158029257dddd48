package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"agentgrid.io/internal/access"
)

// Grant documents are stored whole as jsonb. A row per scope gives the same
// last-writer-wins semantics the access layer assumes.

func (s *Store) SaveCompanyGrants(ctx context.Context, doc access.CompanyGrants) error {
	if doc.CompanyID == "" {
		return fmt.Errorf("%w: company id is required", access.ErrInvalidInput)
	}
	agents, err := json.Marshal(doc.Agents)
	if err != nil {
		return fmt.Errorf("encode grants: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into company_grants (company_id, agents, updated_at, updated_by)
		values ($1, $2, $3, $4)
		on conflict (company_id) do update
		set agents = excluded.agents,
		    updated_at = excluded.updated_at,
		    updated_by = excluded.updated_by
	`, doc.CompanyID, agents, doc.UpdatedAt, doc.UpdatedBy)
	return err
}

func (s *Store) FindCompanyGrants(ctx context.Context, companyID string) (access.CompanyGrants, error) {
	doc := access.CompanyGrants{CompanyID: companyID}
	var rawAgents []byte
	err := s.db.QueryRowContext(ctx, `
		select agents, updated_at, updated_by
		from company_grants
		where company_id = $1
	`, companyID).Scan(&rawAgents, &doc.UpdatedAt, &doc.UpdatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return access.CompanyGrants{}, fmt.Errorf("%w: company grants %s", access.ErrNotFound, companyID)
	}
	if err != nil {
		return access.CompanyGrants{}, err
	}
	doc.Agents = map[string]access.AgentPermission{}
	if len(rawAgents) > 0 {
		if err := json.Unmarshal(rawAgents, &doc.Agents); err != nil {
			return access.CompanyGrants{}, fmt.Errorf("decode grants: %w", err)
		}
	}
	return doc, nil
}

func (s *Store) SaveNetworkGrants(ctx context.Context, doc access.NetworkGrants) error {
	if doc.CompanyID == "" || doc.NetworkID == "" {
		return fmt.Errorf("%w: company and network ids are required", access.ErrInvalidInput)
	}
	agents, err := json.Marshal(doc.Agents)
	if err != nil {
		return fmt.Errorf("encode grants: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into network_grants (company_id, network_id, agents, updated_at, updated_by)
		values ($1, $2, $3, $4, $5)
		on conflict (company_id, network_id) do update
		set agents = excluded.agents,
		    updated_at = excluded.updated_at,
		    updated_by = excluded.updated_by
	`, doc.CompanyID, doc.NetworkID, agents, doc.UpdatedAt, doc.UpdatedBy)
	return err
}

func (s *Store) FindNetworkGrants(ctx context.Context, companyID, networkID string) (access.NetworkGrants, error) {
	doc := access.NetworkGrants{CompanyID: companyID, NetworkID: networkID}
	var rawAgents []byte
	err := s.db.QueryRowContext(ctx, `
		select agents, updated_at, updated_by
		from network_grants
		where company_id = $1 and network_id = $2
	`, companyID, networkID).Scan(&rawAgents, &doc.UpdatedAt, &doc.UpdatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return access.NetworkGrants{}, fmt.Errorf("%w: network grants %s/%s", access.ErrNotFound, companyID, networkID)
	}
	if err != nil {
		return access.NetworkGrants{}, err
	}
	doc.Agents = map[string]access.AgentPermission{}
	if len(rawAgents) > 0 {
		if err := json.Unmarshal(rawAgents, &doc.Agents); err != nil {
			return access.NetworkGrants{}, fmt.Errorf("decode grants: %w", err)
		}
	}
	return doc, nil
}

func (s *Store) CreateRequest(ctx context.Context, req access.Request) error {
	if req.ID == "" {
		return fmt.Errorf("%w: request id is required", access.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx, `
		insert into agent_requests (id, user_id, agent_id, status, approval_level, priority, organization_id, network_id, reason, requested_at, reviewed_at, reviewed_by, escalated_at, escalated_by)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, nullif($12,''), $13, nullif($14,''))
	`, req.ID, req.UserID, req.AgentID, req.Status, req.ApprovalLevel, req.Priority, req.OrganizationID, req.NetworkID, req.Reason, req.RequestedAt, req.ReviewedAt, req.ReviewedBy, req.EscalatedAt, req.EscalatedBy)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: request %s", access.ErrConflict, req.ID)
		}
		return err
	}
	return nil
}

func scanRequest(scan func(dest ...any) error) (access.Request, error) {
	var (
		req         access.Request
		reviewedBy  sql.NullString
		escalatedBy sql.NullString
	)
	err := scan(&req.ID, &req.UserID, &req.AgentID, &req.Status, &req.ApprovalLevel, &req.Priority, &req.OrganizationID, &req.NetworkID, &req.Reason, &req.RequestedAt, &req.ReviewedAt, &reviewedBy, &req.EscalatedAt, &escalatedBy)
	if err != nil {
		return access.Request{}, err
	}
	if reviewedBy.Valid {
		req.ReviewedBy = reviewedBy.String
	}
	if escalatedBy.Valid {
		req.EscalatedBy = escalatedBy.String
	}
	return req, nil
}

const requestColumns = `id, user_id, agent_id, status, approval_level, priority, organization_id, network_id, reason, requested_at, reviewed_at, reviewed_by, escalated_at, escalated_by`

func (s *Store) FindRequest(ctx context.Context, id string) (access.Request, error) {
	row := s.db.QueryRowContext(ctx, `select `+requestColumns+` from agent_requests where id = $1`, id)
	req, err := scanRequest(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return access.Request{}, fmt.Errorf("%w: request %s", access.ErrNotFound, id)
	}
	if err != nil {
		return access.Request{}, err
	}
	return req, nil
}

func (s *Store) UpdateRequest(ctx context.Context, req access.Request) error {
	res, err := s.db.ExecContext(ctx, `
		update agent_requests
		set status = $2, approval_level = $3, reviewed_at = $4, reviewed_by = nullif($5,''), escalated_at = $6, escalated_by = nullif($7,'')
		where id = $1
	`, req.ID, req.Status, req.ApprovalLevel, req.ReviewedAt, req.ReviewedBy, req.EscalatedAt, req.EscalatedBy)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: request %s", access.ErrNotFound, req.ID)
	}
	return nil
}

func (s *Store) ListRequests(ctx context.Context, filter access.RequestFilter) ([]access.Request, error) {
	var (
		conds []string
		args  []any
		idx   = 1
	)
	if filter.OrganizationID != "" {
		conds = append(conds, fmt.Sprintf("organization_id = $%d", idx))
		args = append(args, filter.OrganizationID)
		idx++
	}
	if filter.UserID != "" {
		conds = append(conds, fmt.Sprintf("user_id = $%d", idx))
		args = append(args, filter.UserID)
		idx++
	}
	if filter.AgentID != "" {
		conds = append(conds, fmt.Sprintf("agent_id = $%d", idx))
		args = append(args, filter.AgentID)
		idx++
	}
	if filter.Status != "" {
		conds = append(conds, fmt.Sprintf("status = $%d", idx))
		args = append(args, filter.Status)
		idx++
	}
	if filter.ApprovalLevel != "" {
		conds = append(conds, fmt.Sprintf("approval_level = $%d", idx))
		args = append(args, filter.ApprovalLevel)
		idx++
	}
	query := `select ` + requestColumns + ` from agent_requests`
	if len(conds) > 0 {
		query += " where " + strings.Join(conds, " and ")
	}
	query += " order by id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []access.Request
	for rows.Next() {
		req, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateAssignment(ctx context.Context, a access.Assignment) error {
	if a.ID == "" {
		return fmt.Errorf("%w: assignment id is required", access.ErrInvalidInput)
	}
	// The partial unique index on (user_id, agent_id) where status='active'
	// enforces the one-active-per-pair invariant under concurrent writers.
	_, err := s.db.ExecContext(ctx, `
		insert into agent_assignments (id, user_id, agent_id, assignment_type, status, assigned_by, reason, assigned_at, removed_at, removed_by)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, nullif($10,''))
	`, a.ID, a.UserID, a.AgentID, a.Type, a.Status, a.AssignedBy, a.Reason, a.AssignedAt, a.RemovedAt, a.RemovedBy)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: agent %s already assigned to user %s", access.ErrConflict, a.AgentID, a.UserID)
		}
		return err
	}
	return nil
}

func scanAssignment(scan func(dest ...any) error) (access.Assignment, error) {
	var (
		a         access.Assignment
		removedBy sql.NullString
	)
	err := scan(&a.ID, &a.UserID, &a.AgentID, &a.Type, &a.Status, &a.AssignedBy, &a.Reason, &a.AssignedAt, &a.RemovedAt, &removedBy)
	if err != nil {
		return access.Assignment{}, err
	}
	if removedBy.Valid {
		a.RemovedBy = removedBy.String
	}
	return a, nil
}

const assignmentColumns = `id, user_id, agent_id, assignment_type, status, assigned_by, reason, assigned_at, removed_at, removed_by`

func (s *Store) FindAssignment(ctx context.Context, id string) (access.Assignment, error) {
	row := s.db.QueryRowContext(ctx, `select `+assignmentColumns+` from agent_assignments where id = $1`, id)
	a, err := scanAssignment(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return access.Assignment{}, fmt.Errorf("%w: assignment %s", access.ErrNotFound, id)
	}
	if err != nil {
		return access.Assignment{}, err
	}
	return a, nil
}

func (s *Store) UpdateAssignment(ctx context.Context, a access.Assignment) error {
	res, err := s.db.ExecContext(ctx, `
		update agent_assignments
		set status = $2, reason = $3, removed_at = $4, removed_by = nullif($5,'')
		where id = $1
	`, a.ID, a.Status, a.Reason, a.RemovedAt, a.RemovedBy)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: assignment %s", access.ErrNotFound, a.ID)
	}
	return nil
}

func (s *Store) ListAssignments(ctx context.Context, filter access.AssignmentFilter) ([]access.Assignment, error) {
	var (
		conds []string
		args  []any
		idx   = 1
	)
	if filter.UserID != "" {
		conds = append(conds, fmt.Sprintf("user_id = $%d", idx))
		args = append(args, filter.UserID)
		idx++
	}
	if filter.AgentID != "" {
		conds = append(conds, fmt.Sprintf("agent_id = $%d", idx))
		args = append(args, filter.AgentID)
		idx++
	}
	if filter.Status != "" {
		conds = append(conds, fmt.Sprintf("status = $%d", idx))
		args = append(args, filter.Status)
		idx++
	}
	query := `select ` + assignmentColumns + ` from agent_assignments`
	if len(conds) > 0 {
		query += " where " + strings.Join(conds, " and ")
	}
	query += " order by id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []access.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) FindActiveAssignment(ctx context.Context, userID, agentID string) (access.Assignment, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+assignmentColumns+`
		from agent_assignments
		where user_id = $1 and agent_id = $2 and status = 'active'
	`, userID, agentID)
	a, err := scanAssignment(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return access.Assignment{}, fmt.Errorf("%w: no active assignment for user %s agent %s", access.ErrNotFound, userID, agentID)
	}
	if err != nil {
		return access.Assignment{}, err
	}
	return a, nil
}
