// Package catalog holds the static agent and topic-category catalogs.
// Both are loaded once at process start, validated, and immutable
// afterwards, so they may be read concurrently without locking.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/openmake/ensemble/internal/domain"
)

// Catalog is the read-only agent and topic registry.
type Catalog struct {
	agents map[string]domain.AgentDefinition
	order  []string // catalog order, used for deterministic listing
	topics []domain.TopicCategory
}

// overlay is the YAML shape for catalog extension files.
type overlay struct {
	Agents []domain.AgentDefinition `yaml:"agents"`
	Topics []domain.TopicCategory   `yaml:"topics"`
}

// New builds a catalog from the built-in roster.
func New() (*Catalog, error) {
	return build(builtinAgents(), builtinTopics())
}

// Load builds a catalog from the built-in roster plus an optional YAML
// overlay file. Overlay agents with a known id replace the built-in entry;
// new ids are appended; overlay topics are appended after the built-ins.
func Load(path string) (*Catalog, error) {
	agents := builtinAgents()
	topics := builtinTopics()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog overlay: %w", err)
		}
		var ov overlay
		if err := yaml.Unmarshal(data, &ov); err != nil {
			return nil, fmt.Errorf("parse catalog overlay: %w", err)
		}
		agents = mergeAgents(agents, ov.Agents)
		topics = append(topics, ov.Topics...)
	}

	return build(agents, topics)
}

func mergeAgents(base, extra []domain.AgentDefinition) []domain.AgentDefinition {
	index := make(map[string]int, len(base))
	for i, a := range base {
		index[a.ID] = i
	}
	for _, a := range extra {
		if i, ok := index[a.ID]; ok {
			base[i] = a
			continue
		}
		index[a.ID] = len(base)
		base = append(base, a)
	}
	return base
}

// build validates entries and freezes the catalog. Malformed entries are
// rejected at load time rather than surfacing as missing fields mid-request.
func build(agents []domain.AgentDefinition, topics []domain.TopicCategory) (*Catalog, error) {
	c := &Catalog{
		agents: make(map[string]domain.AgentDefinition, len(agents)),
	}

	for _, a := range agents {
		if a.ID == "" || a.Name == "" || a.Category == "" {
			return nil, domain.NewDomainError("catalog.build", domain.ErrCatalogInvalid,
				fmt.Sprintf("agent %q missing required field", a.ID))
		}
		if _, dup := c.agents[a.ID]; dup {
			return nil, domain.NewDomainError("catalog.build", domain.ErrCatalogInvalid,
				fmt.Sprintf("duplicate agent id %q", a.ID))
		}
		c.agents[a.ID] = a
		c.order = append(c.order, a.ID)
	}

	if _, ok := c.agents[DefaultAgentID]; !ok {
		return nil, domain.NewDomainError("catalog.build", domain.ErrCatalogInvalid,
			"default agent missing from catalog")
	}

	for _, t := range topics {
		if t.Name == "" || len(t.Patterns) == 0 {
			return nil, domain.NewDomainError("catalog.build", domain.ErrCatalogInvalid,
				fmt.Sprintf("topic %q missing name or patterns", t.Name))
		}
		for _, id := range t.Agents {
			if _, ok := c.agents[id]; !ok {
				return nil, domain.NewDomainError("catalog.build", domain.ErrCatalogInvalid,
					fmt.Sprintf("topic %q references unknown agent %q", t.Name, id))
			}
		}
		c.topics = append(c.topics, t)
	}

	return c, nil
}

// Get returns the agent definition for id.
func (c *Catalog) Get(id string) (domain.AgentDefinition, bool) {
	a, ok := c.agents[id]
	return a, ok
}

// Default returns the fallback agent definition.
func (c *Catalog) Default() domain.AgentDefinition {
	return c.agents[DefaultAgentID]
}

// Agents returns all agent definitions in catalog order.
func (c *Catalog) Agents() []domain.AgentDefinition {
	out := make([]domain.AgentDefinition, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.agents[id])
	}
	return out
}

// ByCategory returns the agents belonging to the given category, in
// catalog order.
func (c *Catalog) ByCategory(category string) []domain.AgentDefinition {
	var out []domain.AgentDefinition
	for _, id := range c.order {
		if a := c.agents[id]; a.Category == category {
			out = append(out, a)
		}
	}
	return out
}

// Topics returns the topic-category table in catalog order.
func (c *Catalog) Topics() []domain.TopicCategory {
	return c.topics
}

// Len returns the number of agents in the catalog.
func (c *Catalog) Len() int { return len(c.order) }
