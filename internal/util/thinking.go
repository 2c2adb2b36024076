// Package util holds small provider-agnostic helpers shared across the
// translator and streaming packages.
package util

import "github.com/kairos-labs/gca-proxy/internal/registry"

// DefaultThinkingBudget is the fallback budget used when a thinking model
// has neither a recognized reasoning effort nor a raw budget; the
// registry's per-model DefaultBudget is not consulted.
const DefaultThinkingBudget = 8192

// ModelSupportsThinking reports whether thinkingConfig is mandatory for
// the named model, per the registry's metadata.
func ModelSupportsThinking(model string) bool {
	if model == "" {
		return false
	}
	return registry.GetGlobalRegistry().IsThinkingModel(model)
}

// BudgetForEffort resolves a reasoning_effort string to a thinking budget
// via the registry's low/medium/high table.
func BudgetForEffort(effort string) (budget int, ok bool) {
	budget, ok = registry.EffortBudgets[effort]
	return budget, ok
}

// NormalizeThinkingBudget clamps a raw numeric budget (e.g. from
// reasoning.budget_tokens) to the range the model supports.
func NormalizeThinkingBudget(model string, budget int) int {
	info := registry.GetGlobalRegistry().GetModelInfo(model)
	return registry.ClampBudget(info, budget)
}
