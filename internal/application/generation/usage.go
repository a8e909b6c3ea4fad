package generation

import "contentforge-ai-api/internal/provider"

// AggregateUsage 跨产出求和用量。
// 缺少用量的条目贡献零值，不报错。
func AggregateUsage(usages []*provider.Usage) provider.Usage {
	var total provider.Usage
	for _, u := range usages {
		if u == nil {
			continue
		}
		total.InputTokens += u.InputTokens
		total.OutputTokens += u.OutputTokens
		total.ReasoningTokens += u.ReasoningTokens
		total.ThinkingTokens += u.ThinkingTokens
		total.CacheCreationTokens += u.CacheCreationTokens
		total.CacheReadTokens += u.CacheReadTokens
		total.TotalTokens += u.TotalTokens
		total.CostUSD += u.CostUSD
	}
	return total
}
