package usecase

import (
	"sort"
	"strings"

	"github.com/openmake/ensemble/internal/domain"
)

// IntentResult is the output of local intent classification.
type IntentResult struct {
	// Category is the top-scoring topic category, or "" when nothing matched.
	Category string
	// SuggestedAgents is the related-agent list of the top category only.
	SuggestedAgents []string
	// Confidence is min(totalMatches/3, 1.0) over all matched categories.
	Confidence float64
	// Matches lists every pattern that matched, for routing diagnostics.
	Matches []string
}

// ClassifyIntent scores text against the topic-category table.
// Pure and deterministic: no I/O, usable without any model backend.
// Ties between equally-scored categories are broken by catalog order.
func ClassifyIntent(text string, topics []domain.TopicCategory) IntentResult {
	lower := strings.ToLower(text)

	type scored struct {
		index int
		count int
	}

	var (
		result  IntentResult
		ranked  []scored
		total   int
		matched []string
	)

	for i, topic := range topics {
		count := 0
		for _, pattern := range topic.Patterns {
			if strings.Contains(lower, strings.ToLower(pattern)) {
				count++
				matched = append(matched, pattern)
			}
		}
		if count == 0 {
			continue
		}
		ranked = append(ranked, scored{index: i, count: count})
		total += count
	}

	if len(ranked) == 0 {
		return result
	}

	// Stable sort keeps catalog order for equal scores.
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].count > ranked[b].count
	})

	top := topics[ranked[0].index]
	result.Category = top.Name
	result.SuggestedAgents = append(result.SuggestedAgents, top.Agents...)
	result.Confidence = minFloat(float64(total)/3.0, 1.0)
	result.Matches = matched
	return result
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
