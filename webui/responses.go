package webui

import (
	"encoding/json"
	"net/http"

	"imagesynth/imagegen"
)

// Error codes returned in the "code" field. They follow imagegen.ErrorKind
// except for path violations, which the front end reports as INVALID_PATH.
const (
	CodeInvalidPath  = "INVALID_PATH"
	CodeBadRequest   = "BAD_REQUEST"
	CodeShuttingDown = "SHUTTING_DOWN"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg, Code: code})
}

// statusForKind maps the error taxonomy onto HTTP status codes.
func statusForKind(kind imagegen.ErrorKind) int {
	switch kind {
	case imagegen.KindValidation, imagegen.KindPathSecurity:
		return http.StatusBadRequest
	case imagegen.KindNotFound:
		return http.StatusNotFound
	case imagegen.KindProviderQuota, imagegen.KindProviderRateLimit:
		return http.StatusTooManyRequests
	case imagegen.KindProviderFatal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func codeForKind(kind imagegen.ErrorKind) string {
	if kind == imagegen.KindPathSecurity {
		return CodeInvalidPath
	}
	return string(kind)
}

// writeKindError reports err using its ErrorKind.
func writeKindError(w http.ResponseWriter, err error) {
	kind := imagegen.KindOf(err)
	writeError(w, statusForKind(kind), codeForKind(kind), err.Error())
}
