package gclient

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/kairos-labs/gca-proxy/internal/geminiapi"
)

// applyRawPatch splices a *geminiapi.Request's RawPatch object onto the
// already-marshaled body's "request" object, keeping whatever typed
// fields the translator built and overwriting only the keys the patch
// names. A patch that isn't a JSON object, or a marshaled body with no
// "request" object, leaves payload unchanged.
func applyRawPatch(payload []byte, body interface{}) []byte {
	req, ok := body.(*geminiapi.Request)
	if !ok || len(req.RawPatch) == 0 {
		return payload
	}
	patch := gjson.ParseBytes(req.RawPatch)
	if !patch.IsObject() {
		return payload
	}

	patched := payload
	patch.ForEach(func(key, value gjson.Result) bool {
		merged, err := sjson.SetRawBytes(patched, "request."+key.String(), []byte(value.Raw))
		if err != nil {
			return true
		}
		patched = merged
		return true
	})
	return patched
}
