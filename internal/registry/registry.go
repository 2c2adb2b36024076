// Package registry holds the immutable, startup-populated tables of
// upstream Gemini model identifiers, their thinking-capability metadata,
// and the reasoning-effort budget table.
package registry

import "strings"

// ThinkingRange describes the supported thinking-budget range for a model.
type ThinkingRange struct {
	Min             int
	Max             int
	ZeroAllowed     bool
	DynamicAllowed  bool
	DefaultBudget   int
	IncludeThoughts bool
}

// ModelInfo is the registry entry for a single upstream model.
type ModelInfo struct {
	ID       string
	Thinking *ThinkingRange // nil for non-thinking models
}

// Registry is a process-wide, read-only (after startup) table of models.
type Registry struct {
	models map[string]*ModelInfo
}

var global = newDefaultRegistry()

// GetGlobalRegistry returns the process-wide model registry singleton.
// The table is populated once at package init and never mutated, so
// concurrent reads from multiple request goroutines need no locking.
func GetGlobalRegistry() *Registry {
	return global
}

// GetModelInfo looks up a model by exact id, then by its lowercased form.
// Returns nil if unknown.
func (r *Registry) GetModelInfo(model string) *ModelInfo {
	if model == "" {
		return nil
	}
	if info, ok := r.models[model]; ok {
		return info
	}
	return r.models[strings.ToLower(model)]
}

// PrimaryThinkingModel is the default model used when a caller's requested
// model name is unrecognized.
const PrimaryThinkingModel = "gemini-2.5-pro"

// IsThinkingModel reports whether thinkingConfig is mandatory for model.
func (r *Registry) IsThinkingModel(model string) bool {
	info := r.GetModelInfo(model)
	return info != nil && info.Thinking != nil
}

// ResolveModel maps a caller-supplied model name through the table,
// defaulting unknown names to PrimaryThinkingModel.
func (r *Registry) ResolveModel(requested string) string {
	if info := r.GetModelInfo(requested); info != nil {
		return info.ID
	}
	return PrimaryThinkingModel
}

func newDefaultRegistry() *Registry {
	r := &Registry{models: make(map[string]*ModelInfo)}

	thinkingRange := func(min, max int, zero, dynamic bool) *ThinkingRange {
		return &ThinkingRange{
			Min:             min,
			Max:             max,
			ZeroAllowed:     zero,
			DynamicAllowed:  dynamic,
			DefaultBudget:   8192,
			IncludeThoughts: true,
		}
	}

	r.register(&ModelInfo{ID: "gemini-2.5-pro", Thinking: thinkingRange(128, 32768, false, true)})
	r.register(&ModelInfo{ID: "gemini-2.5-flash", Thinking: thinkingRange(0, 24576, true, true)})
	r.register(&ModelInfo{ID: "gemini-2.5-flash-lite", Thinking: thinkingRange(0, 24576, true, true)})
	r.register(&ModelInfo{ID: "gemini-3-pro-preview", Thinking: thinkingRange(128, 32768, false, true)})
	r.register(&ModelInfo{ID: "gemini-2.0-flash", Thinking: nil})
	r.register(&ModelInfo{ID: "gemini-2.0-flash-lite", Thinking: nil})

	return r
}

func (r *Registry) register(info *ModelInfo) {
	r.models[info.ID] = info
	r.models[strings.ToLower(info.ID)] = info
}

// EffortBudgets maps a reasoning_effort string to a thinking token budget
// for the three named effort levels.
var EffortBudgets = map[string]int{
	"low":    1024,
	"medium": 8192,
	"high":   24576,
}

// ClampBudget clamps a raw requested thinking budget to the model's
// supported range, applying the zero/dynamic escape hatches that
// supplement the low/medium/high table for a raw numeric budget.
// budget == -1 means "dynamic".
func ClampBudget(info *ModelInfo, budget int) int {
	if info == nil || info.Thinking == nil {
		return budget
	}
	t := info.Thinking
	if budget == -1 {
		if t.DynamicAllowed {
			return -1
		}
		mid := (t.Min + t.Max) / 2
		if mid <= 0 && t.ZeroAllowed {
			return 0
		}
		if mid <= 0 {
			return t.Min
		}
		return mid
	}
	if budget == 0 {
		if t.ZeroAllowed {
			return 0
		}
		return t.Min
	}
	if budget < t.Min {
		return t.Min
	}
	if budget > t.Max {
		return t.Max
	}
	return budget
}
