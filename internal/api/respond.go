package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/chis/embedlab/internal/codec"
	"github.com/chis/embedlab/internal/output"
	"github.com/chis/embedlab/internal/session"
	"github.com/chis/embedlab/internal/vfs"
)

// Error kinds reported in the response envelope.
const (
	KindBadRequest     = "bad_request"
	KindNotFound       = "not_found"
	KindDuplicate      = "duplicate_filename"
	KindLastFile       = "last_file"
	KindInvariant      = "invariant_violation"
	KindMalformedToken = "malformed_token"
	KindDecode         = "decode_error"
	KindUnavailable    = "unavailable"
	KindInternal       = "internal"
)

var (
	errNoStorage         = errors.New("catalog storage not available")
	errChallengeNotFound = errors.New("challenge not found")
)

// RespondError writes an error response with the specified HTTP status code.
func RespondError(w http.ResponseWriter, statusCode int, kind string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	output.WriteJSONError(w, kind, err)
}

// RespondBadRequest writes a 400 Bad Request error response
func RespondBadRequest(w http.ResponseWriter, err error) {
	RespondError(w, http.StatusBadRequest, KindBadRequest, err)
}

// RespondNotFound writes a 404 Not Found error response
func RespondNotFound(w http.ResponseWriter, err error) {
	RespondError(w, http.StatusNotFound, KindNotFound, err)
}

// RespondInternalError writes a 500 Internal Server Error response
func RespondInternalError(w http.ResponseWriter, err error) {
	RespondError(w, http.StatusInternalServerError, KindInternal, err)
}

// RespondSuccess writes a 200 OK response with data
func RespondSuccess(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	output.WriteJSONData(w, data)
}

// RespondCreated writes a 201 Created response with data
func RespondCreated(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	output.WriteJSONData(w, data)
}

// RespondNoContent writes a 204 No Content response
func RespondNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// errorStatus maps domain errors to an HTTP status and error kind.
func errorStatus(err error) (int, string) {
	var decodeErr *codec.DecodeError
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, vfs.ErrNotFound),
		errors.Is(err, errChallengeNotFound):
		return http.StatusNotFound, KindNotFound
	case errors.Is(err, vfs.ErrDuplicateFilename):
		return http.StatusConflict, KindDuplicate
	case errors.Is(err, vfs.ErrLastFile):
		return http.StatusConflict, KindLastFile
	case errors.Is(err, vfs.ErrInvariant):
		return http.StatusUnprocessableEntity, KindInvariant
	case errors.Is(err, codec.ErrMalformedToken):
		return http.StatusBadRequest, KindMalformedToken
	case errors.As(err, &decodeErr):
		return http.StatusBadRequest, KindDecode
	case errors.Is(err, errNoStorage):
		return http.StatusServiceUnavailable, KindUnavailable
	default:
		return http.StatusInternalServerError, KindInternal
	}
}

// RespondDomainError maps err to its status code and writes it.
func RespondDomainError(w http.ResponseWriter, err error) {
	status, kind := errorStatus(err)
	RespondError(w, status, kind, err)
}

// decodeJSONRequest decodes a JSON request body into v. An empty body leaves
// v unchanged when allowEmpty is set. On failure it writes a 400 and returns
// false.
func decodeJSONRequest(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}
	RespondBadRequest(w, fmt.Errorf("invalid request body: %w", err))
	return false
}

// validateRequired checks that a required parameter is not empty.
// Returns true if valid, false if empty (and writes error response).
func validateRequired(w http.ResponseWriter, name, value string) bool {
	if value == "" {
		RespondBadRequest(w, fmt.Errorf("%s is required", name))
		return false
	}
	return true
}
