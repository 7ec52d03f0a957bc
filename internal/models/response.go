package models

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes v as the JSON response body with the given status code.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the terse {"error": code} body devices get on failures.
// Diagnostic detail never goes here, only to the logs.
func WriteError(w http.ResponseWriter, status int, code string) {
	WriteJSON(w, status, map[string]string{"error": code})
}
