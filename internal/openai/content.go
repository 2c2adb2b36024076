package openai

import (
	"encoding/json"
	"strings"
)

// AsString returns the message content as a string if it was encoded as a
// bare JSON string, and ok=true. Non-string content (nil, array, object)
// yields ok=false.
func (m *Message) AsString() (s string, ok bool) {
	if len(m.Content) == 0 {
		return "", false
	}
	if err := json.Unmarshal(m.Content, &s); err != nil {
		return "", false
	}
	return s, true
}

// AsParts returns the message content as an ordered parts list if it was
// encoded as a JSON array, and ok=true.
func (m *Message) AsParts() (parts []ContentPart, ok bool) {
	if len(m.Content) == 0 {
		return nil, false
	}
	trimmed := strings.TrimSpace(string(m.Content))
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false
	}
	if err := json.Unmarshal(m.Content, &parts); err != nil {
		return nil, false
	}
	return parts, true
}

// Stringify degrades non-string, non-array content to its JSON text:
// a user message whose content is neither a string nor a part array
// falls back to stringification.
func (m *Message) Stringify() string {
	if len(m.Content) == 0 {
		return ""
	}
	return string(m.Content)
}

// IsToolMessage reports whether this is a tool-result message.
func (m *Message) IsToolMessage() bool { return m.Role == RoleTool }

// IsSystemLike reports whether this message merges into systemInstruction
// rather than contents.
func (m *Message) IsSystemLike() bool {
	return m.Role == RoleSystem || m.Role == RoleDeveloper
}
