package endpoint

import (
	"encoding/json"
	"net/http"
)

// JSONRenderer writes Value as JSON with Status (default 200).
//
// The encoding error, if any, is returned after the header has been written,
// so it can only be logged.
type JSONRenderer struct {
	Status int
	Value  any
}

func (jr *JSONRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json")
	status := jr.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(jr.Value)
}
