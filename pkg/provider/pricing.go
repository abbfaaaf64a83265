package provider

import "strings"

// Pricing in USD per 1M tokens, keyed by model-name substring. Used for
// the cost figure reported to the observability collaborator; unknown
// models report zero cost rather than guessing.
var modelPricing = []struct {
	marker      string
	inputPer1M  float64
	outputPer1M float64
}{
	{"opus", 15.00, 75.00},
	{"sonnet", 3.00, 15.00},
	{"haiku", 0.25, 1.25},
	{"gpt-4o-mini", 0.15, 0.60},
	{"gpt-4o", 2.50, 10.00},
	{"gpt-4", 30.00, 60.00},
	{"gpt-3.5", 0.50, 1.50},
	{"gemini-1.5-pro", 1.25, 5.00},
	{"gemini-1.5-flash", 0.075, 0.30},
	{"gemini-2", 0.10, 0.40},
}

// CalculateCost computes the USD cost of a call from its token usage.
func CalculateCost(model string, usage Usage) float64 {
	lower := strings.ToLower(model)
	for _, p := range modelPricing {
		if strings.Contains(lower, p.marker) {
			return float64(usage.InputTokens)/1_000_000*p.inputPer1M +
				float64(usage.OutputTokens)/1_000_000*p.outputPer1M
		}
	}
	return 0
}
