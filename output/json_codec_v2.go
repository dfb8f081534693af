//go:build jsonv2

package output

import (
	"encoding/json/jsontext"
	jsonv2 "encoding/json/v2"
)

// jsonMarshal encodes one report line on a single line with map keys sorted,
// matching the encoding/json output.
func jsonMarshal(value any) ([]byte, error) {
	return jsonv2.Marshal(value, jsonv2.Deterministic(true), jsontext.Multiline(false))
}
