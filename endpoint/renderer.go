package endpoint

import "net/http"

// StringRenderer writes Body with Status (default 200). ContentType defaults
// to "text/plain; charset=utf-8" unless a processor already set one.
type StringRenderer struct {
	Status      int
	Body        string
	ContentType string
}

func (sr *StringRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	if w.Header().Get("Content-Type") == "" {
		ct := sr.ContentType
		if ct == "" {
			ct = "text/plain; charset=utf-8"
		}
		w.Header().Set("Content-Type", ct)
	}
	status := sr.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if sr.Body == "" {
		return nil
	}
	_, err := w.Write([]byte(sr.Body))
	return err
}

// NoContentRenderer writes Status (default 204) and no body.
type NoContentRenderer struct {
	Status int
}

func (nr *NoContentRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	status := nr.Status
	if status == 0 {
		status = http.StatusNoContent
	}
	w.WriteHeader(status)
	return nil
}
