package catalog

import (
	"context"
	"time"

	"agentgrid.io/internal/cache"
)

// Cached is a read-through wrapper for a Service. GetAgent hits the bounded
// cache first; every write invalidates the touched entry.
type Cached struct {
	inner Service
	cache *cache.Cache[string, Agent]
}

// NewCached wraps inner with a bounded cache of the given capacity and TTL.
func NewCached(inner Service, capacity int, ttl time.Duration) *Cached {
	return &Cached{
		inner: inner,
		cache: cache.New[string, Agent](capacity, ttl),
	}
}

var _ Service = (*Cached)(nil)

func (c *Cached) CreateAgent(ctx context.Context, agent Agent) (Agent, error) {
	created, err := c.inner.CreateAgent(ctx, agent)
	if err != nil {
		return Agent{}, err
	}
	c.cache.Invalidate(created.ID)
	return created, nil
}

func (c *Cached) GetAgent(ctx context.Context, id string) (Agent, error) {
	if agent, ok := c.cache.Get(id); ok {
		return agent, nil
	}
	agent, err := c.inner.GetAgent(ctx, id)
	if err != nil {
		return Agent{}, err
	}
	c.cache.Set(id, agent)
	return agent, nil
}

// ListAgents is not cached: list results depend on the filter and are cheap
// relative to the per-id hot path.
func (c *Cached) ListAgents(ctx context.Context, filter Filter) ([]Agent, error) {
	return c.inner.ListAgents(ctx, filter)
}

func (c *Cached) UpdateAgentStatus(ctx context.Context, id, status string) (Agent, error) {
	agent, err := c.inner.UpdateAgentStatus(ctx, id, status)
	if err != nil {
		return Agent{}, err
	}
	c.cache.Invalidate(id)
	return agent, nil
}

func (c *Cached) DeleteAgent(ctx context.Context, id string) error {
	if err := c.inner.DeleteAgent(ctx, id); err != nil {
		return err
	}
	c.cache.Invalidate(id)
	return nil
}
