package web

// errors.go provides unified error response handling for the web layer.
//
// Every error goes through core.MapError, so the client sees a coded message
// with a suggested action while the log keeps the technical error. API routes
// answer JSON; pages answer an HTML alert.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/fleetsync/internal/core"
	"github.com/JonMunkholm/fleetsync/internal/web/templates"
)

var errNoFile = errors.New("no file provided")

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string       `json:"error"`
	Message string       `json:"message"`
	Action  string       `json:"action,omitempty"`
	Code    string       `json:"code"`
	Report  *core.Report `json:"report,omitempty"`
}

// statusFor picks the HTTP status for an error by its code.
func statusFor(err error) int {
	switch core.MapError(err).Code {
	case "RUN001":
		return http.StatusTooManyRequests
	case "RUN003", "RUN004":
		return http.StatusNotFound
	case "FILE001":
		return http.StatusRequestEntityTooLarge
	case "FILE002", "FILE003", "FILE004", "FILE005", "FILE006", "VAL001":
		return http.StatusBadRequest
	case "STORE001":
		return http.StatusUnprocessableEntity
	case "STORE002", "STORE004":
		return http.StatusBadGateway
	case "STORE003":
		return http.StatusGatewayTimeout
	case "RUN002":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the user-facing message with the status
// statusFor picks. A partial report is included when the run had started.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, report *core.Report) {
	userMsg := core.MapError(err)
	status := statusFor(err)

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "30")
	}
	if wantsJSON(r) {
		respondErrorJSON(w, userMsg, status, report)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.ErrorPage(userMsg.Message, userMsg.Action, userMsg.Code).Render(r.Context(), w); err != nil {
		slog.Error("render error page", "error", err)
	}
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, statusCode int, report *core.Report) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
		Report:  report,
	})
}

// wantsJSON checks if the client prefers JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	// API routes default to JSON
	return strings.HasPrefix(r.URL.Path, "/api/")
}
