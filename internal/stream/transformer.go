// Package stream implements the streaming response transformer: the
// per-request state machine that consumes Gemini stream envelopes and
// emits OpenAI-dialect chunks, splicing embedded <thinking> markers out
// of visible prose and capturing thought signatures for later tool-call
// turns.
package stream

import (
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/kairos-labs/gca-proxy/internal/geminiapi"
	"github.com/kairos-labs/gca-proxy/internal/openai"
)

// marshalArgs serializes a function-call's args map back to the JSON
// string the OpenAI dialect expects in ToolCallFunc.Arguments.
func marshalArgs(args map[string]interface{}) (string, error) {
	b, err := sonic.Marshal(args)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

const (
	openTag  = "<thinking>"
	closeTag = "</thinking>"
)

// SignatureStore is the subset of sigcache.Cache the transformer writes
// to when it observes a function-call part.
type SignatureStore interface {
	Store(toolCallID, signature, thoughtText string) error
}

// Transformer holds the per-stream transformation state. It is single-threaded:
// one instance serves exactly one in-flight request and must not be
// shared across goroutines.
type Transformer struct {
	streamID string
	model    string
	created  int64
	cache    SignatureStore

	firstChunk              bool
	toolCallEmitted         bool
	usage                   *openai.Usage
	currentThoughtSignature string
	accumulatedThoughtText  strings.Builder

	insideThinkingTag bool
	thinkingTagBuffer string
}

// New constructs a Transformer for one stream. cache may be nil, in which
// case signature capture is a no-op (tests that don't exercise tool
// calls need not wire one).
func New(streamID, model string, created int64, cache SignatureStore) *Transformer {
	return &Transformer{
		streamID:   streamID,
		model:      model,
		created:    created,
		cache:      cache,
		firstChunk: true,
	}
}

// SkipRoleFrame marks the role as already sent on an earlier chunk (e.g. a
// fallback notice emitted ahead of this transformer's own output), so
// frame does not stamp delta.role on this transformer's first chunk too.
// Exactly one chunk per stream may carry delta.role="assistant".
func (t *Transformer) SkipRoleFrame() {
	t.firstChunk = false
}

// ProcessEnvelope applies the per-part processing rules, returning zero
// or more downstream chunks for this envelope's first candidate.
func (t *Transformer) ProcessEnvelope(env geminiapi.StreamEnvelope) []openai.ChunkResponse {
	if env.Response == nil {
		return nil
	}

	var out []openai.ChunkResponse

	if env.Response.UsageMetadata != nil {
		u := env.Response.UsageMetadata
		usage := &openai.Usage{
			PromptTokens:     u.PromptTokenCount,
			CompletionTokens: u.CandidatesTokenCount,
			TotalTokens:      u.PromptTokenCount + u.CandidatesTokenCount,
		}
		if u.ThoughtsTokenCount > 0 {
			usage.CompletionTokensDetails = &openai.CompletionTokensDetails{ReasoningTokens: u.ThoughtsTokenCount}
		}
		t.usage = usage
	}

	if len(env.Response.Candidates) == 0 {
		return out
	}

	for _, part := range env.Response.Candidates[0].Content.Parts {
		switch {
		case part.FunctionCall != nil:
			out = append(out, t.processFunctionCall(part)...)
		case part.Thought:
			out = append(out, t.processThoughtPart(part)...)
		default:
			out = append(out, t.processTextPart(part.Text)...)
		}
	}

	return out
}

// processThoughtPart handles a part carrying raw thought content.
func (t *Transformer) processThoughtPart(part geminiapi.Part) []openai.ChunkResponse {
	if part.ThoughtSignature != "" {
		t.currentThoughtSignature = part.ThoughtSignature
	}
	t.accumulatedThoughtText.WriteString(part.Text)
	return []openai.ChunkResponse{t.newThinkingChunk(part.Text)}
}

// processFunctionCall handles a part carrying a function-call invocation.
func (t *Transformer) processFunctionCall(part geminiapi.Part) []openai.ChunkResponse {
	if part.ThoughtSignature != "" && t.currentThoughtSignature == "" {
		t.currentThoughtSignature = part.ThoughtSignature
	}

	toolCallID := "call_" + uuid.NewString()
	t.toolCallEmitted = true

	if t.cache != nil && (t.currentThoughtSignature != "" || t.accumulatedThoughtText.Len() > 0) {
		_ = t.cache.Store(toolCallID, t.currentThoughtSignature, t.accumulatedThoughtText.String())
	}

	argsJSON := "{}"
	if part.FunctionCall.Args != nil {
		if b, err := marshalArgs(part.FunctionCall.Args); err == nil {
			argsJSON = b
		}
	}

	delta := &openai.Delta{
		ToolCalls: []openai.ToolCallDelta{{
			Index: 0,
			ID:    toolCallID,
			Type:  "function",
			Function: &openai.ToolCallFuncDelta{
				Name:      part.FunctionCall.Name,
				Arguments: argsJSON,
			},
		}},
	}
	return []openai.ChunkResponse{t.frame(delta, true)}
}

// processTextPart is the <thinking> splitter for a visible-text part.
func (t *Transformer) processTextPart(text string) []openai.ChunkResponse {
	text = t.thinkingTagBuffer + text
	t.thinkingTagBuffer = ""

	var out []openai.ChunkResponse
	for len(text) > 0 {
		if !t.insideThinkingTag {
			if idx := strings.Index(text, openTag); idx >= 0 {
				if idx > 0 {
					out = append(out, t.newContentChunk(text[:idx]))
				}
				t.insideThinkingTag = true
				text = text[idx+len(openTag):]
				continue
			}
			if k := longestSuffixPrefixOverlap(text, openTag); k > 0 {
				if rem := text[:len(text)-k]; rem != "" {
					out = append(out, t.newContentChunk(rem))
				}
				t.thinkingTagBuffer = text[len(text)-k:]
				return out
			}
			out = append(out, t.newContentChunk(text))
			return out
		}

		// insideThinkingTag
		if idx := strings.Index(text, closeTag); idx >= 0 {
			thoughtText := text[:idx]
			if thoughtText != "" {
				t.accumulatedThoughtText.WriteString(thoughtText)
				out = append(out, t.newThinkingChunk(thoughtText))
			}
			t.insideThinkingTag = false
			text = text[idx+len(closeTag):]
			continue
		}
		if k := longestSuffixPrefixOverlap(text, closeTag); k > 0 {
			thoughtText := text[:len(text)-k]
			if thoughtText != "" {
				t.accumulatedThoughtText.WriteString(thoughtText)
				out = append(out, t.newThinkingChunk(thoughtText))
			}
			t.thinkingTagBuffer = text[len(text)-k:]
			return out
		}
		t.accumulatedThoughtText.WriteString(text)
		out = append(out, t.newThinkingChunk(text))
		return out
	}
	return out
}

// longestSuffixPrefixOverlap returns the largest k (1 <= k < len(tag))
// such that the last k bytes of s equal the first k bytes of tag — the
// straddling check that keeps a <thinking> tag split across two chunks
// from leaking into visible content. Returns 0 if s ends with no proper
// prefix of tag.
func longestSuffixPrefixOverlap(s, tag string) int {
	maxK := len(tag) - 1
	if maxK > len(s) {
		maxK = len(s)
	}
	for k := maxK; k > 0; k-- {
		if strings.HasSuffix(s, tag[:k]) {
			return k
		}
	}
	return 0
}

// Finish builds the terminal chunk: exactly one per stream, with the
// correct finish_reason and usage if known.
func (t *Transformer) Finish() openai.ChunkResponse {
	finish := "stop"
	if t.toolCallEmitted {
		finish = "tool_calls"
	}
	chunk := t.frame(&openai.Delta{}, false)
	chunk.Choices[0].FinishReason = &finish
	chunk.Usage = t.usage
	return chunk
}

// newContentChunk builds a chunk carrying a visible-prose delta.
func (t *Transformer) newContentChunk(text string) openai.ChunkResponse {
	s := text
	return t.frame(&openai.Delta{Content: &s}, false)
}

// newThinkingChunk builds a chunk carrying a reasoning delta, attaching
// the current signature when one is known.
func (t *Transformer) newThinkingChunk(text string) openai.ChunkResponse {
	d := &openai.Delta{Thinking: text}
	if t.currentThoughtSignature != "" {
		d.Signature = t.currentThoughtSignature
	}
	return t.frame(d, false)
}

// frame applies first-chunk role framing and wraps delta in a complete
// ChunkResponse. isToolCall additionally nils out content on the first
// chunk when it is produced by a tool call.
func (t *Transformer) frame(delta *openai.Delta, isToolCall bool) openai.ChunkResponse {
	if t.firstChunk {
		delta.Role = "assistant"
		if isToolCall {
			delta.Content = nil
		}
		t.firstChunk = false
	}
	return openai.ChunkResponse{
		ID:      t.streamID,
		Object:  "chat.completion.chunk",
		Created: t.created,
		Model:   t.model,
		Choices: []openai.Choice{{Index: 0, Delta: delta, FinishReason: nil}},
	}
}
