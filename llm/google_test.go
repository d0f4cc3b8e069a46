package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
)

// mockGoogleClient satisfies googleClient for tests.
type mockGoogleClient struct {
	out   ChatOut
	err   error
	calls int
}

func (m *mockGoogleClient) generateContent(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	m.calls++
	return m.out, m.err
}

func TestNewGoogleChatModelDefaults(t *testing.T) {
	m := NewGoogleChatModel("test-key", "")
	if m.modelName != "gemini-2.5-flash" {
		t.Errorf("default model = %q", m.modelName)
	}
	if m.client == nil {
		t.Fatal("expected default client wired")
	}
}

func TestGoogleChatDelegatesToClient(t *testing.T) {
	mock := &mockGoogleClient{out: ChatOut{Text: "Done."}}
	m := &GoogleChatModel{modelName: "gemini-2.5-flash", client: mock}

	out, err := m.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out.Text != "Done." || mock.calls != 1 {
		t.Errorf("text=%q calls=%d", out.Text, mock.calls)
	}
}

func TestGoogleChatPropagatesClientError(t *testing.T) {
	wantErr := errors.New("quota exceeded")
	m := &GoogleChatModel{client: &mockGoogleClient{err: wantErr}}

	_, err := m.Chat(context.Background(), nil, nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want client error", err)
	}
}

func TestGoogleChatRejectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mock := &mockGoogleClient{}
	m := &GoogleChatModel{client: mock}
	if _, err := m.Chat(ctx, nil, nil); err == nil {
		t.Fatal("expected context error")
	}
	if mock.calls != 0 {
		t.Error("client called under cancelled context")
	}
}

func TestConvertGoogleType(t *testing.T) {
	cases := map[string]genai.Type{
		"string":  genai.TypeString,
		"number":  genai.TypeNumber,
		"integer": genai.TypeInteger,
		"boolean": genai.TypeBoolean,
		"array":   genai.TypeArray,
		"object":  genai.TypeObject,
		"mystery": genai.TypeUnspecified,
	}
	for in, want := range cases {
		if got := convertGoogleType(in); got != want {
			t.Errorf("convertGoogleType(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConvertGoogleSchema(t *testing.T) {
	schema := map[string]interface{}{
		"properties": map[string]interface{}{
			"query": map[string]interface{}{"type": "string", "description": "search terms"},
			"limit": map[string]interface{}{"type": "integer"},
		},
		"required": []interface{}{"query"},
	}
	converted := convertGoogleSchema(schema)
	if converted == nil || converted.Type != genai.TypeObject {
		t.Fatalf("converted = %+v", converted)
	}
	if converted.Properties["query"].Type != genai.TypeString {
		t.Errorf("query type = %v", converted.Properties["query"].Type)
	}
	if converted.Properties["query"].Description != "search terms" {
		t.Errorf("query description = %q", converted.Properties["query"].Description)
	}
	if len(converted.Required) != 1 || converted.Required[0] != "query" {
		t.Errorf("required = %v", converted.Required)
	}
}
