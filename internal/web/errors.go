package web

// errors.go provides unified error response handling for the web layer.
//
// The error flow:
//  1. Handler gets an error from core.Service
//  2. Calls s.respondError(w, r, err)
//  3. statusFor picks the HTTP status from the error chain
//  4. core.MapError supplies the user-facing message, action and code
//  5. The technical error is logged with the request id; the client only
//     sees the mapped message

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/bulkimport/internal/core"
	"github.com/JonMunkholm/bulkimport/internal/logging"
	"github.com/JonMunkholm/bulkimport/internal/web/templates"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`

	// Expired tells the client to restart the import from the upload step.
	Expired bool `json:"expired,omitempty"`
}

var errRateLimited = errors.New("rate limit exceeded")

var rateLimitMessage = core.MapError(errRateLimited)

// Route errors never reach core, so their messages live here.
var (
	notFoundMessage = core.UserMessage{
		Message: "Page not found.",
		Action:  "Check the address or return to the importer",
		Code:    "WEB404",
	}
	methodNotAllowedMessage = core.UserMessage{
		Message: "This action is not supported here.",
		Action:  "Return to the importer and try again",
		Code:    "WEB405",
	}
)

// inputErrors are the caller's fault and map to 400.
var inputErrors = []error{
	core.ErrNoFile,
	core.ErrNotTabular,
	core.ErrFileTooLarge,
	core.ErrMissingHeaderRow,
	core.ErrMissingRequiredColumn,
	core.ErrEmptyDataset,
	core.ErrInvalidCSV,
	core.ErrInvalidToken,
}

// statusFor maps an error chain to an HTTP status.
func statusFor(err error) int {
	for _, target := range inputErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}

	switch {
	case errors.Is(err, core.ErrJobExpired):
		return http.StatusGone
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyChunks):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the user-facing error for it.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	writeUserError(w, r, userMsg, status, errors.Is(err, core.ErrJobExpired))
}

// writeUserError writes msg as JSON for API clients and as an HTML page
// for browsers.
func writeUserError(w http.ResponseWriter, r *http.Request, msg core.UserMessage, status int, expired bool) {
	if wantsJSON(r) {
		respondErrorJSON(w, msg, status, expired)
		return
	}
	renderErrorPage(w, r, msg, status)
}

// handleNotFound answers requests for unknown routes.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	logging.FromContext(r.Context()).Debug("route not found", "path", r.URL.Path, "method", r.Method)
	writeUserError(w, r, notFoundMessage, http.StatusNotFound, false)
}

// handleMethodNotAllowed answers requests whose route exists under another method.
func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	logging.FromContext(r.Context()).Debug("method not allowed", "path", r.URL.Path, "method", r.Method)
	writeUserError(w, r, methodNotAllowedMessage, http.StatusMethodNotAllowed, false)
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, status int, expired bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
		Expired: expired,
	}); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

// renderErrorPage renders the error alert inside the page layout.
func renderErrorPage(w http.ResponseWriter, r *http.Request, msg core.UserMessage, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.ErrorPage(msg.Message, msg.Action, msg.Code).Render(r.Context(), w); err != nil {
		slog.Error("render error page", "error", err)
	}
}

// wantsJSON checks if the client prefers a JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	return strings.HasPrefix(r.URL.Path, "/api/")
}
