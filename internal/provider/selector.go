package provider

import (
	"fmt"
	"strings"
)

// rule pairs a model-id predicate with the adapter it selects.
type rule struct {
	match   func(modelID string) bool
	adapter Adapter
}

// Selector classifies model ids and builds the matching provider call.
type Selector struct {
	rules []rule
}

// NewSelector wires the four adapters into the fixed precedence order:
//
//  1. contains "gemini"                        → Gemini
//  2. contains ":free", "openrouter" or "/"    → OpenRouter
//  3. contains "deepseek"                      → DeepSeek
//  4. anything else                            → Groq
//
// Order matters: "gemini/foo" is Gemini and "deepseek/x:free" is OpenRouter.
func NewSelector(gemini, openRouter, deepSeek, groq Adapter) *Selector {
	return &Selector{rules: []rule{
		{match: containsAny("gemini"), adapter: gemini},
		{match: containsAny(":free", "openrouter", "/"), adapter: openRouter},
		{match: containsAny("deepseek"), adapter: deepSeek},
		{match: func(string) bool { return true }, adapter: groq},
	}}
}

func containsAny(markers ...string) func(string) bool {
	return func(modelID string) bool {
		for _, m := range markers {
			if strings.Contains(modelID, m) {
				return true
			}
		}
		return false
	}
}

// Classify returns the adapter for a model id. The last rule always
// matches, so the result is never nil for a Selector built by NewSelector.
func (s *Selector) Classify(modelID string) Adapter {
	for _, r := range s.rules {
		if r.match(modelID) {
			return r.adapter
		}
	}
	return nil
}

// Select builds the provider call for one chat request. userText is
// expected to be non-empty and already trimmed.
func (s *Selector) Select(modelID, action, userText string) (*CallSpec, error) {
	adapter := s.Classify(modelID)
	if adapter == nil {
		return nil, fmt.Errorf("no provider for model %q", modelID)
	}

	req := adapter.NewRequest(modelID, SystemInstruction(action), userText)
	return adapter.Build(req)
}
