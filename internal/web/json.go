package web

import (
	"encoding/json"
	"net/http"
)

// LogsJSON is the JSON representation of the recent debug lines.
type LogsJSON struct {
	Lines []string `json:"lines"`
}

// CommandJSON is the response to a submitted command.
type CommandJSON struct {
	Accepted bool   `json:"accepted"`
	Command  string `json:"command,omitempty"`
	Error    string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	data, _ := json.MarshalIndent(v, "", "  ")
	w.Write(data)
}
