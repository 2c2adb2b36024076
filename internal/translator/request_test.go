package translator

import (
	"encoding/json"
	"testing"

	"github.com/kairos-labs/gca-proxy/internal/openai"
	"github.com/kairos-labs/gca-proxy/internal/sigcache"
)

func msg(role openai.Role, content string) openai.Message {
	b, _ := json.Marshal(content)
	return openai.Message{Role: role, Content: b}
}

func TestTranslateSimpleUserPrompt(t *testing.T) {
	tr := New(nil)
	req := &openai.ChatRequest{
		Model:    "gemini-2.5-pro",
		Messages: []openai.Message{msg(openai.RoleUser, "Hello world")},
	}

	got := tr.Translate("test", req)

	if got.Model != "gemini-2.5-pro" {
		t.Fatalf("model = %q", got.Model)
	}
	if len(got.Request.Contents) != 1 || got.Request.Contents[0].Role != "user" {
		t.Fatalf("contents = %+v", got.Request.Contents)
	}
	if got.Request.Contents[0].Parts[0].Text != "Hello world" {
		t.Fatalf("text = %q", got.Request.Contents[0].Parts[0].Text)
	}
	if got.Request.GenerationConfig.ThinkingConfig == nil ||
		got.Request.GenerationConfig.ThinkingConfig.ThinkingBudget != 8192 {
		t.Fatalf("thinkingConfig = %+v", got.Request.GenerationConfig.ThinkingConfig)
	}
	if got.Request.GenerationConfig.Temperature != 1.0 {
		t.Fatalf("temperature = %v", got.Request.GenerationConfig.Temperature)
	}
}

func TestSystemAndDeveloperMerge(t *testing.T) {
	tr := New(nil)
	req := &openai.ChatRequest{
		Model: "gemini-2.5-pro",
		Messages: []openai.Message{
			msg(openai.RoleSystem, "You are "),
			msg(openai.RoleDeveloper, "helpful"),
			msg(openai.RoleUser, "Hi"),
		},
	}

	got := tr.Translate("test", req)

	if got.Request.SystemInstruction == nil {
		t.Fatalf("expected systemInstruction")
	}
	if text := got.Request.SystemInstruction.Parts[0].Text; text != "You are helpful" {
		t.Fatalf("systemInstruction text = %q", text)
	}
	if len(got.Request.Contents) != 1 || got.Request.Contents[0].Role != "user" {
		t.Fatalf("contents = %+v", got.Request.Contents)
	}
}

func TestToolChoiceSpecificFunction(t *testing.T) {
	tr := New(nil)
	choice, _ := json.Marshal(map[string]any{
		"type":     "function",
		"function": map[string]any{"name": "f"},
	})
	req := &openai.ChatRequest{
		Model:      "gemini-2.5-pro",
		Messages:   []openai.Message{msg(openai.RoleUser, "x")},
		ToolChoice: choice,
	}

	got := tr.Translate("test", req)

	if got.Request.ToolConfig == nil {
		t.Fatalf("expected toolConfig")
	}
	cfg := got.Request.ToolConfig.FunctionCallingConfig
	if cfg.Mode != "ANY" || len(cfg.AllowedFunctionNames) != 1 || cfg.AllowedFunctionNames[0] != "f" {
		t.Fatalf("functionCallingConfig = %+v", cfg)
	}
}

func TestGroupedToolResponsesCoalesce(t *testing.T) {
	tr := New(nil)
	assistant := openai.Message{
		Role: openai.RoleAssistant,
		ToolCalls: []openai.ToolCall{
			{ID: "call_1", Function: openai.ToolCallFunc{Name: "f1", Arguments: "{}"}},
			{ID: "call_2", Function: openai.ToolCallFunc{Name: "f2", Arguments: "{}"}},
		},
	}
	tool1 := openai.Message{Role: openai.RoleTool, ToolCallID: "call_1", Content: mustJSON("r1")}
	tool2 := openai.Message{Role: openai.RoleTool, ToolCallID: "call_2", Content: mustJSON("r2")}

	req := &openai.ChatRequest{
		Model:    "gemini-2.5-pro",
		Messages: []openai.Message{assistant, tool1, tool2},
	}

	got := tr.Translate("test", req)

	if len(got.Request.Contents) != 2 {
		t.Fatalf("expected 2 contents entries, got %d: %+v", len(got.Request.Contents), got.Request.Contents)
	}
	modelTurn := got.Request.Contents[0]
	if modelTurn.Role != "model" || len(modelTurn.Parts) != 2 {
		t.Fatalf("model turn = %+v", modelTurn)
	}
	userTurn := got.Request.Contents[1]
	if userTurn.Role != "user" || len(userTurn.Parts) != 2 {
		t.Fatalf("user turn = %+v", userTurn)
	}
	if userTurn.Parts[0].FunctionResponse.Name != "f1" || userTurn.Parts[1].FunctionResponse.Name != "f2" {
		t.Fatalf("function names = %+v", userTurn.Parts)
	}
}

func TestSignatureRecoveryFromCache(t *testing.T) {
	store := sigcache.NewMemoryStore()
	cache := sigcache.New(store)
	defer cache.Destroy()
	if err := cache.Store("call_1", "sig123", "I should call a function"); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	tr := New(cache)
	assistant := openai.Message{
		Role:    openai.RoleAssistant,
		Content: mustJSON("<thinking>I should call a function</thinking>"),
		ToolCalls: []openai.ToolCall{
			{ID: "call_1", Function: openai.ToolCallFunc{Name: "f", Arguments: "{}"}},
		},
	}
	req := &openai.ChatRequest{Model: "gemini-2.5-pro", Messages: []openai.Message{assistant}}

	got := tr.Translate("test", req)

	if len(got.Request.Contents) != 1 {
		t.Fatalf("contents = %+v", got.Request.Contents)
	}
	turn := got.Request.Contents[0]
	if len(turn.Parts) != 2 {
		t.Fatalf("expected thought part + function call part, got %+v", turn.Parts)
	}
	thought := turn.Parts[0]
	if !thought.Thought || thought.ThoughtSignature != "sig123" || thought.Text != "I should call a function" {
		t.Fatalf("thought part = %+v", thought)
	}
	call := turn.Parts[1]
	if call.FunctionCall == nil || call.ThoughtSignature != "sig123" {
		t.Fatalf("function call part = %+v", call)
	}
}

func TestMissingParametersDefaultsToEmptyObject(t *testing.T) {
	tr := New(nil)
	req := &openai.ChatRequest{
		Model:    "gemini-2.5-pro",
		Messages: []openai.Message{msg(openai.RoleUser, "x")},
		Tools: []openai.Tool{
			{Type: "function", Function: openai.ToolFunction{Name: "f"}},
		},
	}

	got := tr.Translate("test", req)

	if len(got.Request.Tools) != 1 || len(got.Request.Tools[0].FunctionDeclarations) != 1 {
		t.Fatalf("tools = %+v", got.Request.Tools)
	}
	params := got.Request.Tools[0].FunctionDeclarations[0].Parameters
	if params == nil || len(params) != 0 {
		t.Fatalf("parameters = %+v", params)
	}
}

func TestEmptyMessagesYieldsEmptyContents(t *testing.T) {
	tr := New(nil)
	req := &openai.ChatRequest{Model: "gemini-2.5-pro"}

	got := tr.Translate("test", req)

	if len(got.Request.Contents) != 0 {
		t.Fatalf("contents = %+v", got.Request.Contents)
	}
	if got.Request.SystemInstruction != nil {
		t.Fatalf("expected no systemInstruction")
	}
}

func TestNonThinkingModelUnrecognizedEffortOmitsThinkingConfig(t *testing.T) {
	tr := New(nil)
	req := &openai.ChatRequest{
		Model:           "gemini-2.0-flash",
		Messages:        []openai.Message{msg(openai.RoleUser, "x")},
		ReasoningEffort: "ultra",
	}

	got := tr.Translate("test", req)

	if got.Request.GenerationConfig.ThinkingConfig != nil {
		t.Fatalf("expected no thinkingConfig, got %+v", got.Request.GenerationConfig.ThinkingConfig)
	}
}

func TestImageURLDroppedWhenNotDataURL(t *testing.T) {
	tr := New(nil)
	parts, _ := json.Marshal([]openai.ContentPart{
		{Type: "text", Text: "look"},
		{Type: "image_url", ImageURL: &openai.ImageURL{URL: "https://example.com/x.png"}},
	})
	req := &openai.ChatRequest{
		Model:    "gemini-2.5-pro",
		Messages: []openai.Message{{Role: openai.RoleUser, Content: parts}},
	}

	got := tr.Translate("test", req)

	if len(got.Request.Contents[0].Parts) != 1 {
		t.Fatalf("expected non-data image to be dropped, got %+v", got.Request.Contents[0].Parts)
	}
}

func mustJSON(s string) []byte {
	b, _ := json.Marshal(s)
	return b
}
