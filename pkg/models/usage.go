package models

// UsageCounter is a per-(org, day) aggregate of model usage, updated by
// HookChain.recordLLMUsage.
type UsageCounter struct {
	OrgID        string  `json:"org_id"`
	Day          string  `json:"day"` // YYYY-MM-DD, UTC
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Usage is the token count of a single model call, as reported by a
// ModelClient's usage delta or estimated via the char/4 fallback.
type Usage struct {
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	CacheReadTokens  int `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int `json:"cache_write_tokens,omitempty"`
}

// Total returns the sum of all token kinds.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens + u.CacheReadTokens + u.CacheWriteTokens
}

// ModelPricing is the per-million-token price table for a model, returned
// by HookChain.getModelPricing or looked up in the built-in fallback table.
type ModelPricing struct {
	InputPerMillion      float64 `json:"input_per_million"`
	OutputPerMillion     float64 `json:"output_per_million"`
	CacheReadPerMillion  float64 `json:"cache_read_per_million,omitempty"`
	CacheWritePerMillion float64 `json:"cache_write_per_million,omitempty"`
}

// Estimate returns the USD cost of usage under this pricing.
func (p ModelPricing) Estimate(usage Usage) float64 {
	const million = 1_000_000
	return float64(usage.InputTokens)*p.InputPerMillion/million +
		float64(usage.OutputTokens)*p.OutputPerMillion/million +
		float64(usage.CacheReadTokens)*p.CacheReadPerMillion/million +
		float64(usage.CacheWriteTokens)*p.CacheWritePerMillion/million
}
