// Package schema normalizes caller-supplied JSON Schema tool parameter
// definitions into the subset Gemini's functionDeclarations.parameters
// accepts.
package schema

// allowedKeys is the set of JSON Schema keywords Gemini's function
// declaration schema understands. Anything else (e.g. "$schema",
// "additionalProperties", "examples") is dropped rather than rejected,
// keeping the mapper total.
var allowedKeys = map[string]bool{
	"type":        true,
	"description": true,
	"properties":  true,
	"items":       true,
	"required":    true,
	"enum":        true,
	"format":      true,
	"nullable":    true,
}

// ToGemini recursively strips a JSON Schema object down to the keys
// Gemini accepts. A nil schema maps to an empty object; any non-nil
// object without a "type" (including an empty one) gets "type":"object".
func ToGemini(raw map[string]interface{}) map[string]interface{} {
	if raw == nil {
		return map[string]interface{}{}
	}
	return cleanObject(raw)
}

func cleanObject(raw map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		if !allowedKeys[k] {
			continue
		}
		switch k {
		case "properties":
			props, ok := v.(map[string]interface{})
			if !ok {
				continue
			}
			cleaned := make(map[string]interface{}, len(props))
			for name, propVal := range props {
				if propObj, ok := propVal.(map[string]interface{}); ok {
					cleaned[name] = cleanObject(propObj)
				} else {
					cleaned[name] = propVal
				}
			}
			out[k] = cleaned
		case "items":
			if itemsObj, ok := v.(map[string]interface{}); ok {
				out[k] = cleanObject(itemsObj)
			} else {
				out[k] = v
			}
		default:
			out[k] = v
		}
	}
	if _, ok := out["type"]; !ok {
		out["type"] = "object"
	}
	return out
}
