package agentloop

import "strings"

// fallbackPricing is consulted when no hook answers getModelPricing
// (spec.md §4.5 step 7: "estimating cost via getModelPricing or
// fallback table"). Prices are USD per million tokens, grounded on the
// teacher's internal/status/cost.go DefaultModelCosts table.
var fallbackPricing = map[string]map[string]modelPricing{
	"anthropic": {
		"claude-sonnet-4-20250514":  {Input: 3.0, Output: 15.0, CacheRead: 0.30},
		"claude-3-5-sonnet-latest":  {Input: 3.0, Output: 15.0, CacheRead: 0.30},
		"claude-3-5-haiku-latest":   {Input: 1.0, Output: 5.0, CacheRead: 0.10},
		"claude-3-opus-20240229":    {Input: 15.0, Output: 75.0, CacheRead: 1.50},
		"claude-opus-4-20250514":    {Input: 15.0, Output: 75.0, CacheRead: 1.50},
		"claude-3-haiku-20240307":   {Input: 0.25, Output: 1.25, CacheRead: 0.03},
	},
	"openai": {
		"gpt-4o":        {Input: 2.50, Output: 10.0, CacheRead: 1.25},
		"gpt-4o-mini":   {Input: 0.15, Output: 0.60, CacheRead: 0.075},
		"gpt-4-turbo":   {Input: 10.0, Output: 30.0},
		"gpt-4":         {Input: 30.0, Output: 60.0},
		"gpt-3.5-turbo": {Input: 0.50, Output: 1.50},
		"o1":            {Input: 15.0, Output: 60.0, CacheRead: 7.50},
		"o1-mini":       {Input: 3.0, Output: 12.0, CacheRead: 1.50},
	},
	"bedrock": {
		"anthropic.claude-3-sonnet-20240229-v1:0": {Input: 3.0, Output: 15.0},
		"anthropic.claude-3-haiku-20240307-v1:0":  {Input: 0.25, Output: 1.25},
		"anthropic.claude-3-opus-20240229-v1:0":   {Input: 15.0, Output: 75.0},
	},
}

type modelPricing struct {
	Input     float64
	Output    float64
	CacheRead float64
}

// lookupFallbackPricing resolves pricing by exact model id, falling back
// to the longest id in the provider's table that is a prefix of model or
// has model as its prefix.
func lookupFallbackPricing(provider, model string) (modelPricing, bool) {
	table, ok := fallbackPricing[strings.ToLower(provider)]
	if !ok {
		return modelPricing{}, false
	}
	if p, ok := table[model]; ok {
		return p, true
	}

	var best modelPricing
	bestLen := 0
	found := false
	for id, p := range table {
		if (strings.HasPrefix(model, id) || strings.HasPrefix(id, model)) && len(id) > bestLen {
			best = p
			bestLen = len(id)
			found = true
		}
	}
	return best, found
}
