package provider

import "strings"

// Model families that reject the standard temperature parameter. Prefixes
// must match a whole leading segment ("o3", "o3-mini", "o3.5") so names like
// "gpt-4o" never match; tokens match anywhere in the lowercased name.
// Adding a family is a table edit, not a control-flow change.
var (
	reasoningPrefixes = []string{"o1", "o3", "o4"}
	reasoningTokens   = []string{"deepseek-r1", "qwq"}
)

// IsReasoningModel classifies model names that take reasoning controls
// instead of temperature.
func IsReasoningModel(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return false
	}
	for _, p := range reasoningPrefixes {
		if n == p || strings.HasPrefix(n, p+"-") || strings.HasPrefix(n, p+".") {
			return true
		}
	}
	for _, t := range reasoningTokens {
		if strings.Contains(n, t) {
			return true
		}
	}
	return false
}
