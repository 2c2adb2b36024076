// Package geminiapi defines the wire schema for Google's Code Assist
// Gemini backend: the generateContent / streamGenerateContent request and
// response envelopes, and the Content/Part variant types.
package geminiapi

// Request is the Code Assist wrapper around a generateContent body: the
// handshake always carries the resolved project alongside the model and
// the actual Gemini request payload.
type Request struct {
	Model   string  `json:"model"`
	Project string  `json:"project,omitempty"`
	Request Payload `json:"request"`

	// RawPatch, when non-empty, is a caller-supplied JSON object merged
	// onto the marshaled body's "request" object before it is sent,
	// letting a caller set a field this struct has no typed member for.
	// Excluded from this struct's own JSON tag set since it is spliced
	// in after marshaling, not encoded as a struct field itself.
	RawPatch []byte `json:"-"`
}

// Payload is the inner Gemini-native request body.
type Payload struct {
	Contents          []Content         `json:"contents"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	Tools             []Tool            `json:"tools,omitempty"`
	ToolConfig        *ToolConfig       `json:"toolConfig,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

// Content is one conversation turn: a role plus its ordered parts.
type Content struct {
	Role  string `json:"role"` // "user" | "model"
	Parts []Part `json:"parts"`
}

// Part is a tagged-union content unit. Exactly one of the optional fields
// is populated depending on which Gemini part variant this represents;
// callers should branch on which field is non-nil/non-empty rather than
// probing a discriminator field, since the wire format has none.
type Part struct {
	Text             string            `json:"text,omitempty"`
	Thought          bool              `json:"thought,omitempty"`
	ThoughtSignature string            `json:"thoughtSignature,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
	InlineData       *InlineData       `json:"inlineData,omitempty"`
}

// FunctionCall is a model-issued tool invocation.
type FunctionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// FunctionResponse carries a tool's result back to the model.
type FunctionResponse struct {
	Name     string                 `json:"name"`
	Response map[string]interface{} `json:"response"`
}

// InlineData is a base64-encoded multimodal blob (e.g. an image).
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Tool wraps the set of callable functions exposed to the model.
type Tool struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations"`
}

// FunctionDeclaration describes one tool's name/description/parameters.
type FunctionDeclaration struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ToolConfig controls whether/which functions the model may call.
type ToolConfig struct {
	FunctionCallingConfig FunctionCallingConfig `json:"functionCallingConfig"`
}

// FunctionCallingConfig is Gemini's function-calling mode selector.
type FunctionCallingConfig struct {
	Mode                 string   `json:"mode"` // AUTO | ANY | NONE
	AllowedFunctionNames []string `json:"allowedFunctionNames,omitempty"`
}

// GenerationConfig carries sampling and thinking parameters.
type GenerationConfig struct {
	Temperature    float64         `json:"temperature"`
	ThinkingConfig *ThinkingConfig `json:"thinkingConfig,omitempty"`
}

// ThinkingConfig controls reasoning token budget and visibility.
type ThinkingConfig struct {
	ThinkingBudget  int  `json:"thinkingBudget"`
	IncludeThoughts bool `json:"includeThoughts"`
}

// StreamEnvelope is one parsed upstream SSE JSON payload.
type StreamEnvelope struct {
	Response *CandidateResponse `json:"response,omitempty"`
}

// CandidateResponse holds the candidates and usage metadata of one
// envelope.
type CandidateResponse struct {
	Candidates    []Candidate    `json:"candidates,omitempty"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
}

// Candidate holds one generation candidate's content.
type Candidate struct {
	Content Content `json:"content"`
}

// UsageMetadata is Gemini's token accounting block.
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	ThoughtsTokenCount   int `json:"thoughtsTokenCount,omitempty"`
}
