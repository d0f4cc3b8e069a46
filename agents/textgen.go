package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/agentflow/agentflow/agent"
	"github.com/agentflow/agentflow/llm"
)

// TextGenAgent wraps an llm.ChatModel behind the Agent contract. The
// provider (openai | anthropic | google) is selected via
// agent_config.provider.
type TextGenAgent struct {
	model       llm.ChatModel
	modelName   string
	maxTokens   int
	temperature float64
}

// NewTextGenFactory builds a TextGenAgent from agent_config: "provider"
// (openai|anthropic|google, required), "api_key" (required), "model"
// (optional), "max_tokens" (default 2000), "temperature" (default 0.7).
func NewTextGenFactory() agent.Factory {
	return func(config map[string]any) (agent.Agent, error) {
		provider, _ := config["provider"].(string)
		apiKey, _ := config["api_key"].(string)
		modelName, _ := config["model"].(string)
		if apiKey == "" {
			return nil, fmt.Errorf("agents: text_generation requires agent_config.api_key")
		}

		var model llm.ChatModel
		switch provider {
		case "openai":
			model = llm.NewOpenAIChatModel(apiKey, modelName)
		case "anthropic":
			model = llm.NewAnthropicChatModel(apiKey, modelName)
		case "google":
			model = llm.NewGoogleChatModel(apiKey, modelName)
		default:
			return nil, fmt.Errorf("agents: text_generation unknown provider %q", provider)
		}

		maxTokens := 2000
		if mt, ok := config["max_tokens"].(float64); ok && mt > 0 {
			maxTokens = int(mt)
		}
		temperature := 0.7
		if t, ok := config["temperature"].(float64); ok {
			temperature = t
		}

		return &TextGenAgent{model: model, modelName: modelName, maxTokens: maxTokens, temperature: temperature}, nil
	}
}

func (a *TextGenAgent) ValidateInput(input map[string]any) bool {
	prompt, ok := input["prompt"].(string)
	if !ok || prompt == "" {
		return false
	}
	if mt, present := input["max_tokens"]; present {
		n, ok := mt.(float64)
		if !ok || n <= 0 || n > 4000 {
			return false
		}
	}
	if temp, present := input["temperature"]; present {
		t, ok := temp.(float64)
		if !ok || t < 0 || t > 2 {
			return false
		}
	}
	return true
}

func (a *TextGenAgent) EstimateCost(input map[string]any) agent.Cost {
	prompt, _ := input["prompt"].(string)
	maxTokens := a.maxTokens
	if mt, ok := input["max_tokens"].(float64); ok && mt > 0 {
		maxTokens = int(mt)
	}

	pricing, ok := llm.DefaultPricing[a.modelName]
	if !ok {
		return 0
	}
	inputTokens := llm.EstimateTokens(prompt)
	inputCost := float64(inputTokens) / 1_000_000 * pricing.InputPer1M
	outputCost := float64(maxTokens) / 1_000_000 * pricing.OutputPer1M
	return agent.NewCostFromUnits(inputCost + outputCost)
}

func (a *TextGenAgent) Run(ctx context.Context, input map[string]any, execCtx map[string]any) agent.Result {
	start := time.Now()
	prompt, _ := input["prompt"].(string)
	taskType, _ := input["task_type"].(string)

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPromptFor(taskType)},
		{Role: llm.RoleUser, Content: prompt},
	}

	out, err := a.model.Chat(ctx, messages, nil)
	if err != nil {
		return agent.Result{Success: false, ErrorMessage: err.Error()}
	}

	return agent.Result{
		Success: true,
		Data: map[string]any{
			"prompt":         prompt,
			"generated_text": out.Text,
			"task_type":      taskType,
		},
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		CostEstimate:    a.EstimateCost(input),
	}
}

func systemPromptFor(taskType string) string {
	switch taskType {
	case "summary":
		return "You are a precise summarization assistant. Produce accurate, concise summaries."
	case "creative":
		return "You are a creative writing assistant. Write engaging, imaginative content."
	case "business":
		return "You are a business writing assistant. Produce professional, formal documents."
	case "technical":
		return "You are a technical writing assistant. Produce accurate, clear technical documentation."
	default:
		return "You are a general-purpose writing assistant. Produce high-quality text for the user's request."
	}
}
