package httpapi

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/stagepass"
)

// Error is the JSON error body.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

const (
	codeBadRequest = "bad_request"
	codeNotFound   = "not_found"
)

// StatusFor maps an engine error kind to its HTTP status.
func StatusFor(kind stagepass.Kind) int {
	switch kind {
	case stagepass.KindValidation, stagepass.KindInvalidOrExpired:
		return http.StatusBadRequest
	case stagepass.KindInvalidCredentials, stagepass.KindInvalidToken, stagepass.KindReuseDetected:
		return http.StatusUnauthorized
	case stagepass.KindEmailNotVerified:
		return http.StatusForbidden
	case stagepass.KindDuplicateEmail:
		return http.StatusConflict
	case stagepass.KindAccountLocked:
		return http.StatusLocked
	case stagepass.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // client may have gone away
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

// writeEngineError renders err. Internal errors never expose their cause.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	kind := stagepass.KindOf(err)
	status := StatusFor(kind)
	body := Error{Status: status, Code: kind.String(), Message: stagepass.ErrInternal.Message}

	var e *stagepass.Error
	if errors.As(err, &e) && kind != stagepass.KindInternal {
		body.Message = e.Message
		body.Field = e.Field
		if kind == stagepass.KindReuseDetected {
			body.Message = "invalid token, please log in again"
		}
		if !e.Until.IsZero() {
			w.Header().Set("Retry-After", retryAfter(e.Until, s.now()))
		}
	}
	writeJSON(w, status, body)
}

func retryAfter(until, now time.Time) string {
	secs := math.Ceil(until.Sub(now).Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(int(secs))
}
