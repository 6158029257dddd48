package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"agentgrid.io/internal/catalog"
	"agentgrid.io/internal/ids"
)

func (s *Store) CreateAgent(ctx context.Context, agent catalog.Agent) (catalog.Agent, error) {
	agent.Name = strings.TrimSpace(agent.Name)
	if agent.Name == "" {
		return catalog.Agent{}, fmt.Errorf("%w: agent name is required", catalog.ErrInvalidInput)
	}
	if !agent.Tier.Valid() {
		return catalog.Agent{}, fmt.Errorf("%w: unknown tier %q", catalog.ErrInvalidInput, agent.Tier)
	}
	if agent.Status == "" {
		agent.Status = catalog.AgentStatusActive
	}
	if agent.ID == "" {
		agent.ID = ids.New()
	}

	row := s.db.QueryRowContext(ctx, `
		insert into agents (id, name, tier, category, provider, status)
		values ($1, $2, $3, $4, $5, $6)
		returning created_at, updated_at
	`, agent.ID, agent.Name, agent.Tier, agent.Category, agent.Provider, agent.Status)
	if err := row.Scan(&agent.CreatedAt, &agent.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return catalog.Agent{}, fmt.Errorf("%w: agent %s", catalog.ErrConflict, agent.ID)
		}
		return catalog.Agent{}, err
	}
	return agent, nil
}

func (s *Store) GetAgent(ctx context.Context, id string) (catalog.Agent, error) {
	var agent catalog.Agent
	err := s.db.QueryRowContext(ctx, `
		select id, name, tier, category, provider, status, created_at, updated_at
		from agents
		where id = $1
	`, id).Scan(&agent.ID, &agent.Name, &agent.Tier, &agent.Category, &agent.Provider, &agent.Status, &agent.CreatedAt, &agent.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Agent{}, fmt.Errorf("%w: agent %s", catalog.ErrNotFound, id)
	}
	if err != nil {
		return catalog.Agent{}, err
	}
	return agent, nil
}

func (s *Store) ListAgents(ctx context.Context, filter catalog.Filter) ([]catalog.Agent, error) {
	var (
		conds []string
		args  []any
		idx   = 1
	)
	if filter.Tier != "" {
		conds = append(conds, fmt.Sprintf("tier = $%d", idx))
		args = append(args, filter.Tier)
		idx++
	}
	if filter.Category != "" {
		conds = append(conds, fmt.Sprintf("category = $%d", idx))
		args = append(args, filter.Category)
		idx++
	}
	if filter.Status != "" {
		conds = append(conds, fmt.Sprintf("status = $%d", idx))
		args = append(args, filter.Status)
		idx++
	}
	query := `
		select id, name, tier, category, provider, status, created_at, updated_at
		from agents
	`
	if len(conds) > 0 {
		query += " where " + strings.Join(conds, " and ")
	}
	query += " order by id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []catalog.Agent
	for rows.Next() {
		var agent catalog.Agent
		if err := rows.Scan(&agent.ID, &agent.Name, &agent.Tier, &agent.Category, &agent.Provider, &agent.Status, &agent.CreatedAt, &agent.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpdateAgentStatus(ctx context.Context, id, status string) (catalog.Agent, error) {
	status = strings.TrimSpace(strings.ToLower(status))
	if status != catalog.AgentStatusActive && status != catalog.AgentStatusRetired {
		return catalog.Agent{}, fmt.Errorf("%w: unsupported status %s", catalog.ErrInvalidInput, status)
	}
	var agent catalog.Agent
	err := s.db.QueryRowContext(ctx, `
		update agents
		set status = $2, updated_at = now()
		where id = $1
		returning id, name, tier, category, provider, status, created_at, updated_at
	`, id, status).Scan(&agent.ID, &agent.Name, &agent.Tier, &agent.Category, &agent.Provider, &agent.Status, &agent.CreatedAt, &agent.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Agent{}, fmt.Errorf("%w: agent %s", catalog.ErrNotFound, id)
	}
	if err != nil {
		return catalog.Agent{}, err
	}
	return agent, nil
}

func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from agents where id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: agent %s", catalog.ErrNotFound, id)
	}
	return nil
}
