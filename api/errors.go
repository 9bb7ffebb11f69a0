package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jmcleod/opweb/forum"
	"github.com/jmcleod/opweb/storage"
)

// Error codes returned in ErrorResponse.Error.
const (
	codeMissingFields      = "missing_fields"
	codeInvalidBody        = "invalid_body"
	codeBodyTooLarge       = "body_too_large"
	codeCaptchaInvalid     = "captcha_invalid"
	codeInvalidCredentials = "invalid_credentials"
	codeAuthRequired       = "auth_required"
	codeForbidden          = "forbidden"
	codeNicknameRequired   = "nickname_required"
	codeNicknameTaken      = "nickname_taken"
	codeTitleRequired      = "title_required"
	codeNotFound           = "not_found"
	codeDataCorrupt        = "data_corrupt"
	codeInternal           = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, ErrorResponse{Error: code})
}

// mapError writes the response for an error returned by the forum layer.
// Storage and integrity failures are logged and hidden behind a generic
// code.
func (a *API) mapError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, forum.ErrNicknameRequired):
		writeError(w, http.StatusBadRequest, codeNicknameRequired)
	case errors.Is(err, forum.ErrPasswordRequired):
		writeError(w, http.StatusBadRequest, codeMissingFields)
	case errors.Is(err, forum.ErrTitleRequired):
		writeError(w, http.StatusBadRequest, codeTitleRequired)
	case errors.Is(err, forum.ErrNicknameTaken):
		writeError(w, http.StatusConflict, codeNicknameTaken)
	case errors.Is(err, forum.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, codeInvalidCredentials)
	case errors.Is(err, forum.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound)
	case errors.Is(err, storage.ErrCorrupt):
		a.logger.Error("document integrity failure", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, codeDataCorrupt)
	default:
		a.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal)
	}
}
