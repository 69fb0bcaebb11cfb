package approval

import (
	"regexp"
	"strings"

	"github.com/meow-stack/meowctl/internal/types"
)

var (
	highRiskPattern     = regexp.MustCompile(`(?i)\b(delete|remove|production|deploy|publish|release)\b`)
	criticalRiskPattern = regexp.MustCompile(`(?i)\b(database|payment|billing|security|admin|root)\b`)
	readLikePattern     = regexp.MustCompile(`(?i)\b(show|list|get|view|read|describe|inspect|check)\b`)
)

// InferRisk classifies a human step's risk level from its task and prompt
// text when the caller did not supply one explicitly. Critical
// beats high when both match; purely read-like verbs are low; anything
// else defaults to medium.
func InferRisk(task, prompt string) types.RiskLevel {
	text := strings.ToLower(task + " " + prompt)

	if criticalRiskPattern.MatchString(text) {
		return types.RiskCritical
	}
	if highRiskPattern.MatchString(text) {
		return types.RiskHigh
	}
	if readLikePattern.MatchString(text) {
		return types.RiskLow
	}
	return types.RiskMedium
}
