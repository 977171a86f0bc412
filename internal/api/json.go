package api

import (
	"encoding/json"
	"net/http"
)

// Problem represents an RFC7807 problem details response body. Code
// carries the solver's structural error code when one applies.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Code     string `json:"code,omitempty"`
	Action   string `json:"action,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

func writeStructuralProblem(w http.ResponseWriter, instance, code, detail, action string) {
	writeJSON(w, http.StatusBadRequest, Problem{
		Type:     "about:blank",
		Title:    "Invalid problem",
		Status:   http.StatusBadRequest,
		Detail:   detail,
		Instance: instance,
		Code:     code,
		Action:   action,
	})
}
