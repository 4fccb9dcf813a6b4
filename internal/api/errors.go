package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"monarchmail-be/internal/apperr"
	"monarchmail-be/internal/logger"
	"monarchmail-be/internal/utils"
	"monarchmail-be/internal/wizard"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type requestError struct{ msg string }

func (e *requestError) Error() string       { return "api: " + e.msg }
func (e *requestError) Kind() string        { return apperr.KindValidation }
func (e *requestError) UserMessage() string { return e.msg }

var errBadBody = &requestError{"Invalid request body."}

type errorResponse struct {
	Error  string              `json:"error"`
	Kind   string              `json:"kind"`
	Fields []wizard.FieldError `json:"fields,omitempty"`
}

// writeError renders err through the taxonomy. Only unclassified failures
// are logged at error level; the rest are the caller's mistake.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	body := errorResponse{
		Error: apperr.UserMessage(err),
		Kind:  apperr.Kind(err),
	}

	var verr *wizard.ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Fields
	}

	log := logger.FromCtx(r.Context()).With(
		zap.String("path", r.URL.Path),
		zap.String("kind", body.Kind),
		zap.Error(err),
	)
	if status >= http.StatusInternalServerError {
		log.Error("request failed")
	} else {
		log.Info("request rejected")
	}

	utils.WriteJSON(w, status, body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errBadBody
	}
	return nil
}

func owner(r *http.Request) string {
	return utils.GetUserEmailFromContext(r.Context())
}
