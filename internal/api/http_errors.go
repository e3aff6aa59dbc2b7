package api

import (
	"errors"
	"net/http"

	"github.com/flowcanvas/flowrefine/internal/core"
)

// errorBody is the wire form of a refinement error.
type errorBody struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Guidance  string                 `json:"guidance,omitempty"`
	Retryable bool                   `json:"retryable"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

func errorBodyFor(err *core.DomainError) *errorBody {
	if err == nil {
		return nil
	}
	return &errorBody{
		Code:      err.Code,
		Message:   err.Message,
		Guidance:  core.UserGuidance(err.Code),
		Retryable: err.Retryable,
		Details:   err.Details,
	}
}

// httpStatusForCode maps a public refinement code to a status.
func httpStatusForCode(code string) int {
	switch code {
	case core.CodeValidationError, core.CodeProhibitedNodeType:
		return http.StatusUnprocessableEntity
	case core.CodeParseError:
		return http.StatusBadGateway
	case core.CodeTimeout:
		return http.StatusGatewayTimeout
	case core.CodeCommandNotFound:
		return http.StatusServiceUnavailable
	case core.CodeCancelled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func httpStatusForDomainError(err error) (int, bool) {
	var domErr *core.DomainError
	if !errors.As(err, &domErr) || domErr == nil {
		return 0, false
	}

	switch domErr.Category {
	case core.ErrCatValidation:
		return http.StatusUnprocessableEntity, true
	case core.ErrCatNotFound:
		return http.StatusNotFound, true
	case core.ErrCatTimeout:
		return http.StatusGatewayTimeout, true
	case core.ErrCatState:
		return http.StatusConflict, true
	default:
		return http.StatusInternalServerError, true
	}
}

// respondStoreError reports a history store failure.
func respondStoreError(w http.ResponseWriter, err error) {
	if status, ok := httpStatusForDomainError(err); ok {
		respondError(w, status, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}
