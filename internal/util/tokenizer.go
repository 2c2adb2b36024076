package util

import (
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/kairos-labs/gca-proxy/internal/openai"
)

// ImageTokenCostOpenAI is the fixed approximate token cost for one inline
// image part, averaging OpenAI's high-res tiling cost (85 + 170*tiles).
const ImageTokenCostOpenAI = 255

var (
	tiktokenCacheMu sync.RWMutex
	tiktokenCache   = make(map[tokenizer.Encoding]tokenizer.Codec)
)

// EstimateTokens approximates the prompt and completion token counts of a
// request/response pair using tiktoken, for attaching a usage block when
// Gemini's usageMetadata is absent. It is an estimate, not an exact
// count: Gemini's own tokenizer is not exposed over this API.
func EstimateTokens(model string, req *openai.ChatRequest, completion string) (prompt, total int) {
	enc, err := codecFor(model)
	if err != nil {
		return 0, 0
	}

	const perMessageOverhead = 3
	for _, m := range req.Messages {
		prompt += perMessageOverhead
		prompt += countTokens(enc, string(m.Role))
		if text, ok := m.AsString(); ok {
			prompt += countTokens(enc, text)
			continue
		}
		if parts, ok := m.AsParts(); ok {
			for _, p := range parts {
				if p.Type == "text" {
					prompt += countTokens(enc, p.Text)
				} else if p.ImageURL != nil {
					prompt += ImageTokenCostOpenAI
				}
			}
		}
	}
	for _, tl := range req.Tools {
		prompt += countTokens(enc, tl.Function.Name) + countTokens(enc, tl.Function.Description) + 10
	}

	completionTokens := countTokens(enc, completion)
	return prompt, prompt + completionTokens
}

func countTokens(enc tokenizer.Codec, text string) int {
	if text == "" {
		return 0
	}
	ids, _, err := enc.Encode(text)
	if err != nil {
		return 0
	}
	return len(ids)
}

func codecFor(model string) (tokenizer.Codec, error) {
	encoding := encodingFor(model)

	tiktokenCacheMu.RLock()
	codec, ok := tiktokenCache[encoding]
	tiktokenCacheMu.RUnlock()
	if ok {
		return codec, nil
	}

	tiktokenCacheMu.Lock()
	defer tiktokenCacheMu.Unlock()
	if codec, ok := tiktokenCache[encoding]; ok {
		return codec, nil
	}

	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, err
	}
	tiktokenCache[encoding] = codec
	return codec, nil
}

// encodingFor picks the closest tiktoken encoding family for a Gemini
// model name. Gemini has no public BPE vocabulary exposed via this API,
// so o200k_base (the most modern, largest-vocabulary encoding available)
// is used as the approximation for every Gemini model except the
// flash-lite family, which uses cl100k_base.
func encodingFor(model string) tokenizer.Encoding {
	if strings.Contains(strings.ToLower(model), "flash-lite") {
		return tokenizer.Cl100kBase
	}
	return tokenizer.O200kBase
}
