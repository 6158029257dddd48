package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"agentgrid.io/internal/ids"
)

// Service defines agent catalog operations.
type Service interface {
	CreateAgent(ctx context.Context, agent Agent) (Agent, error)
	GetAgent(ctx context.Context, id string) (Agent, error)
	ListAgents(ctx context.Context, filter Filter) ([]Agent, error)
	UpdateAgentStatus(ctx context.Context, id, status string) (Agent, error)
	DeleteAgent(ctx context.Context, id string) error
}

// InMemory implements Service with in-process concurrency safety.
type InMemory struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

// NewInMemory creates an empty catalog.
func NewInMemory() *InMemory {
	return &InMemory{agents: make(map[string]*Agent)}
}

func (s *InMemory) CreateAgent(ctx context.Context, agent Agent) (Agent, error) {
	agent.Name = strings.TrimSpace(agent.Name)
	if agent.Name == "" {
		return Agent{}, fmt.Errorf("%w: agent name is required", ErrInvalidInput)
	}
	if !agent.Tier.Valid() {
		return Agent{}, fmt.Errorf("%w: unknown tier %q", ErrInvalidInput, agent.Tier)
	}
	if agent.Status == "" {
		agent.Status = AgentStatusActive
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if agent.ID == "" {
		agent.ID = ids.New()
	} else if _, ok := s.agents[agent.ID]; ok {
		return Agent{}, fmt.Errorf("%w: agent %s", ErrConflict, agent.ID)
	}
	now := time.Now().UTC()
	agent.CreatedAt = now
	agent.UpdatedAt = now
	stored := agent
	s.agents[agent.ID] = &stored
	return agent, nil
}

func (s *InMemory) GetAgent(ctx context.Context, id string) (Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[id]
	if !ok {
		return Agent{}, fmt.Errorf("%w: agent %s", ErrNotFound, id)
	}
	return *agent, nil
}

func (s *InMemory) ListAgents(ctx context.Context, filter Filter) ([]Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]Agent, 0, len(s.agents))
	for _, agent := range s.agents {
		if filter.Tier != "" && agent.Tier != filter.Tier {
			continue
		}
		if filter.Category != "" && agent.Category != filter.Category {
			continue
		}
		if filter.Status != "" && agent.Status != filter.Status {
			continue
		}
		result = append(result, *agent)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *InMemory) UpdateAgentStatus(ctx context.Context, id, status string) (Agent, error) {
	status = strings.TrimSpace(strings.ToLower(status))
	if status != AgentStatusActive && status != AgentStatusRetired {
		return Agent{}, fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[id]
	if !ok {
		return Agent{}, fmt.Errorf("%w: agent %s", ErrNotFound, id)
	}
	agent.Status = status
	agent.UpdatedAt = time.Now().UTC()
	return *agent, nil
}

func (s *InMemory) DeleteAgent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[id]; !ok {
		return fmt.Errorf("%w: agent %s", ErrNotFound, id)
	}
	delete(s.agents, id)
	return nil
}
