package ai

import "strings"

// ModelInfo holds the context window and list price of a chat model.
// Prices are illustrative and only feed the cost estimate in debug logs.
type ModelInfo struct {
	Name          string
	ContextTokens int     // approximate context window
	InputPerK     float64 // USD per 1K input tokens
	OutputPerK    float64 // USD per 1K output tokens
}

// DefaultContextTokens is assumed for models missing from the catalog.
const DefaultContextTokens = 8192

var models = map[string]ModelInfo{
	"gpt-4o-mini":   {Name: "gpt-4o-mini", ContextTokens: 128000, InputPerK: 0.00015, OutputPerK: 0.0006},
	"gpt-4o":        {Name: "gpt-4o", ContextTokens: 128000, InputPerK: 0.0025, OutputPerK: 0.01},
	"gpt-4.1-mini":  {Name: "gpt-4.1-mini", ContextTokens: 1047576, InputPerK: 0.0004, OutputPerK: 0.0016},
	"gpt-4.1":       {Name: "gpt-4.1", ContextTokens: 1047576, InputPerK: 0.002, OutputPerK: 0.008},
	"gpt-3.5-turbo": {Name: "gpt-3.5-turbo", ContextTokens: 16385, InputPerK: 0.0005, OutputPerK: 0.0015},
	// Common local (Ollama) tags
	"llama3:latest":           {Name: "llama3:latest", ContextTokens: 8192},
	"llama3.1:8b":             {Name: "llama3.1:8b", ContextTokens: 131072},
	"llama3.2:latest":         {Name: "llama3.2:latest", ContextTokens: 131072},
	"mistral:7b-instruct":     {Name: "mistral:7b-instruct", ContextTokens: 8192},
	"qwen2.5:7b":              {Name: "qwen2.5:7b", ContextTokens: 32768},
	"phi3:mini-4k-instruct":   {Name: "phi3:mini-4k-instruct", ContextTokens: 4096},
	"phi3:mini-128k-instruct": {Name: "phi3:mini-128k-instruct", ContextTokens: 128000},
}

// LookupModel returns ModelInfo and ok flag. Provider prefixes such as
// "openai/gpt-4o" resolve to the bare name.
func LookupModel(name string) (ModelInfo, bool) {
	if mi, ok := models[name]; ok {
		return mi, true
	}
	if i := strings.LastIndex(name, "/"); i >= 0 {
		mi, ok := models[name[i+1:]]
		return mi, ok
	}
	return ModelInfo{}, false
}

// ContextTokens returns the model's context window, or DefaultContextTokens.
func ContextTokens(model string) int {
	if mi, ok := LookupModel(model); ok && mi.ContextTokens > 0 {
		return mi.ContextTokens
	}
	return DefaultContextTokens
}

// EstimateCostUSD estimates total cost in USD for given tokens using model pricing.
// If the model is unknown, returns 0 and ok=false.
func EstimateCostUSD(model string, promptTokens, completionTokens int) (float64, bool) {
	mi, ok := LookupModel(model)
	if !ok {
		return 0, false
	}
	inCost := (float64(promptTokens) / 1000.0) * mi.InputPerK
	outCost := (float64(completionTokens) / 1000.0) * mi.OutputPerK
	return inCost + outCost, true
}
