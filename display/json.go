package display

import "encoding/json"

// MarshalJSON is compact for scripts (SCHOLAR_OUTPUT=json) and indented
// for people.
func MarshalJSON(v interface{}) ([]byte, error) {
	if machineOutput() {
		return json.Marshal(v)
	}
	return json.MarshalIndent(v, "", "  ")
}
