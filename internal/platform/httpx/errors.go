package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/projtrack/projtrack/internal/shared"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("permission denied")
	ErrUnauthorized = errors.New("not logged in")
)

// RespondError maps domain errors to failed envelopes. Unknown errors become
// a 500 without detail.
func RespondError(w http.ResponseWriter, err error) {
	status, message := Classify(err)
	Fail(w, status, message)
}

// Classify returns the status code and client message for err.
func Classify(err error) (int, string) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return http.StatusBadRequest, validationMessage(verrs)
	case errors.Is(err, ErrNotFound), errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, "resource not found"
	case errors.Is(err, ErrDuplicate), errors.Is(err, shared.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, ErrValidation), errors.Is(err, shared.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ErrForbidden), errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden, ErrForbidden.Error()
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, ErrUnauthorized.Error()
	case errors.Is(err, shared.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid username or password"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func validationMessage(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "oneof":
			parts = append(parts, field+" must be one of: "+fe.Param())
		case "min", "max", "gte", "lte", "gt", "lt":
			parts = append(parts, field+" is out of range")
		default:
			parts = append(parts, field+" is invalid")
		}
	}
	return strings.Join(parts, "; ")
}
