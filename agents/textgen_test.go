package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/agentflow/agentflow/llm"
)

func TestTextGenFactoryRequiresAPIKey(t *testing.T) {
	f := NewTextGenFactory()
	if _, err := f(map[string]any{"provider": "openai"}); err == nil {
		t.Fatal("expected error for missing api_key")
	}
}

func TestTextGenFactoryRejectsUnknownProvider(t *testing.T) {
	f := NewTextGenFactory()
	if _, err := f(map[string]any{"provider": "mystery", "api_key": "k"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestTextGenFactoryBuildsProviders(t *testing.T) {
	f := NewTextGenFactory()
	for _, provider := range []string{"openai", "anthropic", "google"} {
		if _, err := f(map[string]any{"provider": provider, "api_key": "k"}); err != nil {
			t.Errorf("provider %s: %v", provider, err)
		}
	}
}

func TestTextGenValidateInput(t *testing.T) {
	a := &TextGenAgent{modelName: "gpt-4o", maxTokens: 2000, temperature: 0.7}

	cases := []struct {
		name  string
		input map[string]any
		want  bool
	}{
		{"valid prompt", map[string]any{"prompt": "write a haiku"}, true},
		{"missing prompt", map[string]any{}, false},
		{"empty prompt", map[string]any{"prompt": ""}, false},
		{"non-string prompt", map[string]any{"prompt": 42}, false},
		{"valid max_tokens", map[string]any{"prompt": "p", "max_tokens": float64(500)}, true},
		{"zero max_tokens", map[string]any{"prompt": "p", "max_tokens": float64(0)}, false},
		{"oversized max_tokens", map[string]any{"prompt": "p", "max_tokens": float64(5000)}, false},
		{"valid temperature", map[string]any{"prompt": "p", "temperature": 1.5}, true},
		{"negative temperature", map[string]any{"prompt": "p", "temperature": -0.1}, false},
		{"too-hot temperature", map[string]any{"prompt": "p", "temperature": 2.5}, false},
	}
	for _, tc := range cases {
		if got := a.ValidateInput(tc.input); got != tc.want {
			t.Errorf("%s: ValidateInput = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestTextGenEstimateCost(t *testing.T) {
	a := &TextGenAgent{modelName: "gpt-4o", maxTokens: 1000, temperature: 0.7}

	cost := a.EstimateCost(map[string]any{"prompt": "write about Go concurrency patterns"})
	if cost <= 0 {
		t.Errorf("cost = %v, want positive for a priced model", cost)
	}

	// Same input, same cost.
	again := a.EstimateCost(map[string]any{"prompt": "write about Go concurrency patterns"})
	if cost != again {
		t.Errorf("cost not deterministic: %v vs %v", cost, again)
	}

	// A larger output budget costs more.
	bigger := a.EstimateCost(map[string]any{"prompt": "write about Go concurrency patterns", "max_tokens": float64(4000)})
	if bigger <= cost {
		t.Errorf("bigger budget cost %v not greater than %v", bigger, cost)
	}

	unknown := &TextGenAgent{modelName: "unpriced-model", maxTokens: 1000}
	if got := unknown.EstimateCost(map[string]any{"prompt": "p"}); got != 0 {
		t.Errorf("unknown model cost = %v, want 0", got)
	}
}

func TestTextGenRunUsesChatModel(t *testing.T) {
	mock := &llm.MockChatModel{Responses: []llm.ChatOut{{Text: "a precise summary"}}}
	a := &TextGenAgent{model: mock, modelName: "gpt-4o", maxTokens: 2000, temperature: 0.7}

	res := a.Run(context.Background(), map[string]any{
		"prompt":    "summarize the quarterly report",
		"task_type": "summary",
	}, nil)

	if !res.Success {
		t.Fatalf("Run failed: %s", res.ErrorMessage)
	}
	if res.Data["generated_text"] != "a precise summary" {
		t.Errorf("generated_text = %v", res.Data["generated_text"])
	}
	if res.Data["task_type"] != "summary" {
		t.Errorf("task_type = %v", res.Data["task_type"])
	}

	if mock.CallCount() != 1 {
		t.Fatalf("model called %d times, want 1", mock.CallCount())
	}
	call := mock.Calls[0]
	if len(call.Messages) != 2 || call.Messages[0].Role != llm.RoleSystem || call.Messages[1].Role != llm.RoleUser {
		t.Errorf("messages = %+v, want system prompt then user prompt", call.Messages)
	}
	if call.Messages[1].Content != "summarize the quarterly report" {
		t.Errorf("user content = %q", call.Messages[1].Content)
	}
}

func TestTextGenRunSurfacesModelError(t *testing.T) {
	mock := &llm.MockChatModel{Err: errors.New("model unavailable")}
	a := &TextGenAgent{model: mock, modelName: "gpt-4o", maxTokens: 2000}

	res := a.Run(context.Background(), map[string]any{"prompt": "p"}, nil)
	if res.Success {
		t.Fatal("expected failure result")
	}
	if res.ErrorMessage == "" {
		t.Error("expected error message from model")
	}
}
