// Package translator implements the OpenAI chat-completion request to
// Gemini Code Assist request translation, the single left-to-right
// pass that builds systemInstruction, contents, tools, toolConfig and
// generationConfig from a caller-dialect ChatRequest.
package translator

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kairos-labs/gca-proxy/internal/geminiapi"
	"github.com/kairos-labs/gca-proxy/internal/openai"
	"github.com/kairos-labs/gca-proxy/internal/registry"
	"github.com/kairos-labs/gca-proxy/internal/schema"
	"github.com/kairos-labs/gca-proxy/internal/sigcache"
	"github.com/kairos-labs/gca-proxy/internal/util"
)

// thinkingTagRe captures the body of a <thinking>...</thinking> block
// embedded in assistant visible content.
var thinkingTagRe = regexp.MustCompile(`(?s)<thinking[^>]*>(.*?)</thinking>`)

// SignatureCache is the subset of sigcache.Cache the translator reads
// from during outbound signature recovery.
type SignatureCache interface {
	Get(id string) (sigcache.Entry, bool)
}

// Translator builds Gemini requests from caller-dialect chat requests. It
// is total and never fails; malformed input degrades gracefully.
type Translator struct {
	registry *registry.Registry
	cache    SignatureCache
}

// New constructs a Translator backed by the global model registry and
// the given signature cache, injected as a dependency rather than
// reached for as a package-level singleton.
func New(cache SignatureCache) *Translator {
	return &Translator{registry: registry.GetGlobalRegistry(), cache: cache}
}

// Translate converts a caller-dialect ChatRequest plus resolved
// project id into a Gemini Code Assist request.
func (t *Translator) Translate(project string, req *openai.ChatRequest) *geminiapi.Request {
	model := t.registry.ResolveModel(req.Model)
	effort := req.EffectiveEffort()

	systemInstruction := t.buildSystemInstruction(req.Messages)
	contents := t.buildContents(req.Messages)

	payload := geminiapi.Payload{
		Contents:          contents,
		SystemInstruction: systemInstruction,
		GenerationConfig:  t.buildGenerationConfig(model, effort, req),
	}

	if len(req.Tools) > 0 {
		payload.Tools = []geminiapi.Tool{buildTools(req.Tools)}
	}
	if tc := buildToolConfig(req.ToolChoice); tc != nil {
		payload.ToolConfig = tc
	}

	return &geminiapi.Request{
		Model:    model,
		Project:  project,
		Request:  payload,
		RawPatch: []byte(req.ProviderOptions),
	}
}

// buildSystemInstruction concatenates the text
// content of every system/developer message, in original order.
func (t *Translator) buildSystemInstruction(messages []openai.Message) *geminiapi.Content {
	var b strings.Builder
	found := false
	for _, m := range messages {
		if !m.IsSystemLike() {
			continue
		}
		found = true
		if s, ok := m.AsString(); ok {
			b.WriteString(s)
			continue
		}
		if parts, ok := m.AsParts(); ok {
			for _, p := range parts {
				if p.Type == "text" {
					b.WriteString(p.Text)
				}
			}
		}
		// Any other content type is ignored for system-like messages.
	}
	if !found {
		return nil
	}
	return &geminiapi.Content{Parts: []geminiapi.Part{{Text: b.String()}}}
}

// buildContents is the single left-to-right pass
// over non-system messages, coalescing consecutive tool messages and
// mapping user/assistant turns.
func (t *Translator) buildContents(messages []openai.Message) []geminiapi.Content {
	contents := make([]geminiapi.Content, 0, len(messages))
	// toolNames maps a tool_call_id to the function name that requested
	// it, built up as assistant messages are observed.
	toolNames := make(map[string]string)

	i := 0
	for i < len(messages) {
		m := messages[i]
		if m.IsSystemLike() {
			i++
			continue
		}

		if m.Role == openai.RoleAssistant {
			for _, tc := range m.ToolCalls {
				toolNames[tc.ID] = tc.Function.Name
			}
			contents = append(contents, t.buildAssistantTurn(m))
			i++
			continue
		}

		if m.Role == openai.RoleTool {
			j := i
			var parts []geminiapi.Part
			for j < len(messages) && messages[j].Role == openai.RoleTool {
				parts = append(parts, buildFunctionResponsePart(messages[j], toolNames))
				j++
			}
			contents = append(contents, geminiapi.Content{Role: "user", Parts: parts})
			i = j
			continue
		}

		// user (and any other non-system, non-assistant, non-tool role)
		contents = append(contents, buildUserTurn(m))
		i++
	}

	return contents
}

// buildFunctionResponsePart recovers the function
// name from the preceding assistant tool_calls, falling back to
// "unknown"; non-string tool content is JSON-serialized.
func buildFunctionResponsePart(m openai.Message, toolNames map[string]string) geminiapi.Part {
	name, ok := toolNames[m.ToolCallID]
	if !ok || name == "" {
		name = "unknown"
	}

	var resultText string
	if s, ok := m.AsString(); ok {
		resultText = s
	} else {
		resultText = m.Stringify()
	}

	return geminiapi.Part{
		FunctionResponse: &geminiapi.FunctionResponse{
			Name:     name,
			Response: map[string]interface{}{"result": resultText},
		},
	}
}

// buildUserTurn converts one user-role message into Gemini parts.
func buildUserTurn(m openai.Message) geminiapi.Content {
	if s, ok := m.AsString(); ok {
		return geminiapi.Content{Role: "user", Parts: []geminiapi.Part{{Text: s}}}
	}

	if parts, ok := m.AsParts(); ok {
		out := make([]geminiapi.Part, 0, len(parts))
		for _, p := range parts {
			switch p.Type {
			case "text":
				text := p.Text
				if !strings.HasSuffix(text, "\n") {
					text += "\n"
				}
				out = append(out, geminiapi.Part{Text: text})
			case "image_url":
				if p.ImageURL == nil {
					continue
				}
				if mime, data, ok := parseDataURL(p.ImageURL.URL); ok {
					out = append(out, geminiapi.Part{InlineData: &geminiapi.InlineData{MimeType: mime, Data: data}})
				}
				// Non-data URLs are silently dropped.
			}
		}
		return geminiapi.Content{Role: "user", Parts: out}
	}

	// Non-string, non-array content: stringify.
	return geminiapi.Content{Role: "user", Parts: []geminiapi.Part{{Text: m.Stringify()}}}
}

var dataURLRe = regexp.MustCompile(`^data:(image/[^;]+);base64,(.+)$`)

func parseDataURL(url string) (mime, data string, ok bool) {
	match := dataURLRe.FindStringSubmatch(url)
	if match == nil {
		return "", "", false
	}
	return match[1], match[2], true
}

// buildAssistantTurn converts one assistant-role message, recovering signature
// recovery, optional thought part, optional visible text part, and one
// FunctionCallPart per tool call.
func (t *Translator) buildAssistantTurn(m openai.Message) geminiapi.Content {
	thoughtSig, thoughtText, visibleContent := t.resolveReasoning(m)

	var parts []geminiapi.Part
	if thoughtText != "" {
		parts = append(parts, geminiapi.Part{Text: thoughtText, Thought: true, ThoughtSignature: thoughtSig})
	}
	if visibleContent != "" {
		parts = append(parts, geminiapi.Part{Text: visibleContent})
	}
	for _, tc := range m.ToolCalls {
		var args map[string]interface{}
		if tc.Function.Arguments != "" {
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		}
		if args == nil {
			args = map[string]interface{}{}
		}
		parts = append(parts, geminiapi.Part{
			FunctionCall:     &geminiapi.FunctionCall{Name: tc.Function.Name, Args: args},
			ThoughtSignature: thoughtSig,
		})
	}

	return geminiapi.Content{Role: "model", Parts: parts}
}

// resolveReasoning applies the three-way priority chain
// for (thoughtSignature, thoughtText). A <thinking> block in the visible
// string content is stripped from it when the result comes from the
// cache (b) or from the tag itself (c); with (a) the content is returned
// unchanged.
func (t *Translator) resolveReasoning(m openai.Message) (signature, thoughtText, visibleContent string) {
	content, _ := m.AsString()

	match := thinkingTagRe.FindStringSubmatchIndex(content)
	stripped := content
	if match != nil {
		stripped = content[:match[0]] + content[match[1]:]
	}

	// (a) message's own reasoning field aliases.
	if text, sig := m.NormalizedReasoning(); text != "" || sig != "" {
		return sig, text, content
	}

	// (b) cache lookup by any of the message's tool_call_ids; first hit wins.
	if t.cache != nil {
		for _, tc := range m.ToolCalls {
			if e, ok := t.cache.Get(tc.ID); ok {
				return e.Signature, e.ThoughtText, stripped
			}
		}
	}

	// (c) <thinking>...</thinking> embedded in visible string content.
	if match != nil {
		return "", content[match[2]:match[3]], stripped
	}

	return "", "", content
}

// buildTools converts the caller's tool definitions into Gemini
// functionDeclarations.
func buildTools(tools []openai.Tool) geminiapi.Tool {
	decls := make([]geminiapi.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		decls = append(decls, geminiapi.FunctionDeclaration{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			Parameters:  schema.ToGemini(tool.Function.Parameters),
		})
	}
	return geminiapi.Tool{FunctionDeclarations: decls}
}

// buildToolConfig converts tool_choice into Gemini's toolConfig. Returns nil when tool_choice
// was omitted.
func buildToolConfig(raw json.RawMessage) *geminiapi.ToolConfig {
	if len(raw) == 0 {
		return nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		switch asString {
		case "none":
			return &geminiapi.ToolConfig{FunctionCallingConfig: geminiapi.FunctionCallingConfig{Mode: "NONE"}}
		case "auto":
			return &geminiapi.ToolConfig{FunctionCallingConfig: geminiapi.FunctionCallingConfig{Mode: "AUTO"}}
		default:
			return nil
		}
	}

	var obj openai.ToolChoiceObject
	if err := json.Unmarshal(raw, &obj); err != nil || obj.Function.Name == "" {
		return nil
	}
	return &geminiapi.ToolConfig{
		FunctionCallingConfig: geminiapi.FunctionCallingConfig{
			Mode:                 "ANY",
			AllowedFunctionNames: []string{obj.Function.Name},
		},
	}
}

// buildGenerationConfig builds generationConfig, including the raw
// budget_tokens path.
func (t *Translator) buildGenerationConfig(model, effort string, req *openai.ChatRequest) *geminiapi.GenerationConfig {
	temperature := 1.0
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	cfg := &geminiapi.GenerationConfig{Temperature: temperature}

	isThinking := util.ModelSupportsThinking(model)
	budget, haveBudget := util.BudgetForEffort(effort)

	if !haveBudget {
		if raw, ok := req.EffectiveBudgetTokens(); ok {
			budget = util.NormalizeThinkingBudget(model, raw)
			haveBudget = true
		}
	}

	switch {
	case haveBudget:
		cfg.ThinkingConfig = &geminiapi.ThinkingConfig{ThinkingBudget: budget, IncludeThoughts: true}
	case isThinking:
		cfg.ThinkingConfig = &geminiapi.ThinkingConfig{ThinkingBudget: util.DefaultThinkingBudget, IncludeThoughts: true}
	}

	return cfg
}
