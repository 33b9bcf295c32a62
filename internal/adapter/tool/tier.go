package tool

import "github.com/openmake/ensemble/internal/domain"

// TierTable implements domain.TierAuthorizer from the configured tier map.
// The wildcard "*" grants every tool; an unknown tier gets nothing.
type TierTable struct {
	tiers map[string]map[string]bool
}

// NewTierTable builds the authorizer from tier → tool-name lists.
func NewTierTable(tiers map[string][]string) *TierTable {
	t := &TierTable{tiers: make(map[string]map[string]bool, len(tiers))}
	for tier, tools := range tiers {
		set := make(map[string]bool, len(tools))
		for _, name := range tools {
			set[name] = true
		}
		t.tiers[tier] = set
	}
	return t
}

// Allows implements domain.TierAuthorizer.
func (t *TierTable) Allows(tier, toolName string) bool {
	set, ok := t.tiers[tier]
	if !ok {
		return false
	}
	return set["*"] || set[toolName]
}

var _ domain.TierAuthorizer = (*TierTable)(nil)
