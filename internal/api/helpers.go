package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"intakeflow/pkg/schema"
)

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFlowError maps a FlowError code to an HTTP status and writes the
// structured error body. Non-FlowErrors become 500s.
func writeFlowError(w http.ResponseWriter, err error) {
	var flowErr *schema.FlowError
	if !errors.As(err, &flowErr) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusInternalServerError
	switch flowErr.Code {
	case schema.ErrCodeNotFound:
		status = http.StatusNotFound
	case schema.ErrCodeValidation, schema.ErrCodeCycleDetected, schema.ErrCodeCompile:
		status = http.StatusUnprocessableEntity
	case schema.ErrCodeInvalidTransition:
		status = http.StatusConflict
	}
	writeJSON(w, status, flowErr)
}

// pathID parses the {id} path segment as an int64, or writes a 400.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id: "+r.PathValue("id"))
		return 0, false
	}
	return id, true
}

// queryInt extracts an integer query param with a default value.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
