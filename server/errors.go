package server

import (
	"errors"
	"net/http"

	"github.com/bennhub/playwright-command-center/supervisor"
)

// apiError is an error the client caused or can act on. Anything else is
// reported as a generic internal error.
type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string { return e.message }

func badRequest(msg string) error { return &apiError{status: http.StatusBadRequest, message: msg} }

func conflict(msg string) error { return &apiError{status: http.StatusConflict, message: msg} }

func notFound(msg string) error { return &apiError{status: http.StatusNotFound, message: msg} }

const (
	msgInvalidSpec     = "Invalid spec path."
	msgInvalidProject  = "Invalid project."
	msgInvalidPresets  = "Invalid command selection."
	msgNoSpecs         = "Select at least one spec."
	msgBusy            = "A test is already running. Stop it or wait for completion."
	msgIdle            = "No running test to stop."
	msgNoLastFailed    = "No failed run to rerun."
	msgNotFound        = "Not found"
	msgInternal        = "internal server error"
	msgInvalidBody     = "Invalid JSON body."
	msgPathEscapesRoot = "Invalid path."
)

// translate maps supervisor sentinels onto API errors.
func translate(err error) error {
	switch {
	case errors.Is(err, supervisor.ErrBusy):
		return conflict(msgBusy)
	case errors.Is(err, supervisor.ErrIdle):
		return conflict(msgIdle)
	case errors.Is(err, supervisor.ErrNoPresets):
		return badRequest(msgInvalidPresets)
	default:
		return err
	}
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *apiError
	if errors.As(translate(err), &apiErr) {
		s.writeJSON(w, apiErr.status, errorResponse{OK: false, Error: apiErr.message})
		return
	}
	s.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")
	s.writeJSON(w, http.StatusInternalServerError, errorResponse{OK: false, Error: msgInternal})
}
