package http

import (
	"net/http"

	"github.com/aukilabs/fieldofview/scene"
	"github.com/aukilabs/fieldofview/visibility"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/segmentio/encoding/json"
)

const (
	ErrTypeBadRequest = "bad-request"

	contentTypeJSON = "application/json"
	contentTypeYAML = "application/yaml"
)

// ErrorResponse is the body of a failed API call.
type ErrorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}

// RespondJSON writes v as a JSON body with the given status code.
func RespondJSON(w http.ResponseWriter, statusCode int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		RespondError(w, errors.New("encoding response failed").Wrap(err))
		return
	}

	w.Header().Set(HeaderContentType, contentTypeJSON)
	w.WriteHeader(statusCode)
	w.Write(b)
}

// RespondError writes err with the status code that matches its type.
func RespondError(w http.ResponseWriter, err error) {
	statusCode := statusCodeOf(err)
	if statusCode == http.StatusInternalServerError {
		logs.WithTag("status", statusCode).Error(err)
	}

	b, _ := json.Marshal(ErrorResponse{
		Error: errorMessage(err, statusCode),
		Type:  errors.Type(err),
	})

	w.Header().Set(HeaderContentType, contentTypeJSON)
	w.WriteHeader(statusCode)
	w.Write(b)
}

func statusCodeOf(err error) int {
	switch {
	case errors.IsType(err, scene.ErrTypeSceneNotFound):
		return http.StatusNotFound

	case errors.IsType(err, scene.ErrTypeInvalidSceneDocument),
		errors.IsType(err, visibility.ErrTypeInvalidViewConfig),
		errors.IsType(err, ErrTypeBadRequest):
		return http.StatusBadRequest

	case errors.IsType(err, ErrTypeUnauthorized):
		return http.StatusUnauthorized

	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error, statusCode int) string {
	if statusCode == http.StatusInternalServerError {
		return http.StatusText(statusCode)
	}
	return err.Error()
}

func badRequest(msg string, err error) error {
	e := errors.New(msg).WithType(ErrTypeBadRequest)
	if err != nil {
		return e.Wrap(err)
	}
	return e
}
