//go:build !jsonv2

package output

import "encoding/json"

// jsonMarshal encodes one report line.
func jsonMarshal(value any) ([]byte, error) {
	return json.Marshal(value)
}
