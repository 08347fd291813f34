// Package httpkit holds the small HTTP conventions shared by the coordinator
// and bank-participant servers: the JSON response envelope, the common
// middleware stack, and a development TLS certificate generator.
package httpkit

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Envelope is the standard response shape for every RPC-surface operation.
type Envelope struct {
	OK      bool        `json:"ok"`
	Result  interface{} `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
	Code    int         `json:"code,omitempty"`
}

// WriteJSON writes an arbitrary JSON body with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		fmt.Printf("error encoding JSON response: %v\n", err)
	}
}

// WriteError writes a {ok:false, error, message, code} envelope.
func WriteError(w http.ResponseWriter, statusCode int, errorType, message string) {
	WriteJSON(w, statusCode, Envelope{
		OK:      false,
		Error:   errorType,
		Message: message,
		Code:    statusCode,
	})
}

// WriteSuccess writes a {ok:true, result} envelope with status 200.
func WriteSuccess(w http.ResponseWriter, result interface{}) {
	WriteJSON(w, http.StatusOK, Envelope{OK: true, Result: result})
}
