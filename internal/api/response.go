package api

import (
	"strings"

	"github.com/kairos-labs/gca-proxy/internal/geminiapi"
	"github.com/kairos-labs/gca-proxy/internal/openai"
	"github.com/kairos-labs/gca-proxy/internal/stream"
)

// assembleResponse folds a single (non-streaming) envelope through the
// same transformer the streaming path uses, then collapses the
// resulting chunk deltas into one ChatResponse message. Reasoning
// deltas are excised from the folded content exactly as the streaming
// splitter excises them from content deltas; the non-streaming dialect
// carries no reasoning field.
func assembleResponse(streamID, model string, created int64, envelope geminiapi.StreamEnvelope, cache stream.SignatureStore) openai.ChatResponse {
	t := stream.New(streamID, model, created, cache)

	var content strings.Builder
	toolCalls := map[int]*openai.ToolCall{}
	var order []int

	fold := func(chunks []openai.ChunkResponse) {
		for _, chunk := range chunks {
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta == nil {
				continue
			}
			d := chunk.Choices[0].Delta
			if d.Content != nil {
				content.WriteString(*d.Content)
			}
			for _, tc := range d.ToolCalls {
				existing, seen := toolCalls[tc.Index]
				if !seen {
					existing = &openai.ToolCall{ID: tc.ID, Type: "function"}
					toolCalls[tc.Index] = existing
					order = append(order, tc.Index)
				}
				if tc.Function != nil {
					existing.Function.Name += tc.Function.Name
					existing.Function.Arguments += tc.Function.Arguments
				}
			}
		}
	}

	fold(t.ProcessEnvelope(envelope))
	finish := t.Finish()
	fold([]openai.ChunkResponse{finish})

	var calls []openai.ToolCall
	for _, idx := range order {
		calls = append(calls, *toolCalls[idx])
	}

	return openai.ChatResponse{
		ID:      streamID,
		Object:  "chat.completion",
		Created: created,
		Model:   model,
		Choices: []openai.Choice{{
			Index: 0,
			Message: &openai.RespMessage{
				Role:      "assistant",
				Content:   content.String(),
				ToolCalls: calls,
			},
			FinishReason: finish.Choices[0].FinishReason,
		}},
		Usage: finish.Usage,
	}
}
