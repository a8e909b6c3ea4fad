package llm

import "strings"

// modelRate 每百万 Token 的美元价格
type modelRate struct {
	InputPerM  float64
	OutputPerM float64
}

// modelRates 按模型名前缀的价格表，最长前缀优先。
// 价目与各家公开定价对齐，未知模型落到保守默认值。
var modelRates = map[string]modelRate{
	"gpt-4o-mini":       {0.15, 0.60},
	"gpt-4o":            {2.50, 10.00},
	"gpt-4.1-mini":      {0.40, 1.60},
	"gpt-4.1":           {2.00, 8.00},
	"o3-mini":           {1.10, 4.40},
	"o3":                {2.00, 8.00},
	"claude-opus":       {15.00, 75.00},
	"claude-sonnet":     {3.00, 15.00},
	"claude-haiku":      {0.80, 4.00},
	"gemini-2.5-pro":    {1.25, 10.00},
	"gemini-2.5-flash":  {0.30, 2.50},
	"gemini-2.0-flash":  {0.10, 0.40},
	"deepseek-reasoner": {0.55, 2.19},
	"deepseek-chat":     {0.27, 1.10},
	"sonar-pro":         {3.00, 15.00},
	"sonar":             {1.00, 1.00},
}

var defaultRate = modelRate{1.00, 3.00}

// rateFor 最长前缀匹配价格
func rateFor(model string) modelRate {
	model = strings.ToLower(model)
	best := ""
	rate := defaultRate
	for prefix, r := range modelRates {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
			rate = r
		}
	}
	return rate
}

// EstimateCost 按 Token 数估算花费 (USD)
func (c *EinoClient) EstimateCost(inputTokens, outputTokens int, model string) float64 {
	rate := rateFor(model)
	return float64(inputTokens)*rate.InputPerM/1_000_000 +
		float64(outputTokens)*rate.OutputPerM/1_000_000
}
