package fhir

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/emr/fhir2/internal/platform/db"
)

var (
	// ErrNotFound means no resource exists with the requested id.
	ErrNotFound = errors.New("resource not found")
	// ErrGone means the resource existed but has been deleted (voided).
	ErrGone = errors.New("resource deleted")
	// ErrInvalid covers malformed bodies, failed validation and bad search parameters.
	ErrInvalid = errors.New("invalid request")
	// ErrIDMismatch is returned by update when the body id differs from the URL id.
	ErrIDMismatch = errors.New("resource id mismatch")
	// ErrVersionConflict is returned when If-Match does not match the current version.
	ErrVersionConflict = errors.New("version conflict")
	// ErrUnsupportedMediaType is returned for PATCH bodies of an unknown type.
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	// ErrPatchFailed is returned when a syntactically valid patch cannot be applied.
	ErrPatchFailed = errors.New("patch failed")
)

// Invalidf wraps ErrInvalid with a formatted message.
func Invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// WriteError wraps a failed insert or update. A foreign key violation means
// the body referenced a resource that does not exist, which is the
// client's fault.
func WriteError(op string, err error) error {
	if db.IsForeignKeyViolation(err) {
		return Invalidf("%s: referenced resource does not exist", op)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorStatus maps a service error to its HTTP status and OperationOutcome.
// resourceType and id are used for the not-found and gone diagnostics.
func ErrorStatus(err error, resourceType, id string) (int, *OperationOutcome) {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, NotFoundOutcome(resourceType, id)
	case errors.Is(err, ErrGone):
		return http.StatusGone, GoneOutcome(resourceType, id)
	case errors.Is(err, ErrIDMismatch), errors.Is(err, ErrInvalid):
		return http.StatusBadRequest, ValidationOutcome(err.Error())
	case errors.Is(err, ErrVersionConflict):
		return http.StatusConflict, ConflictOutcome(err.Error())
	case errors.Is(err, ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType, NotSupportedOutcome(err.Error())
	case errors.Is(err, ErrPatchFailed):
		return http.StatusUnprocessableEntity, ErrorOutcome(err.Error())
	default:
		return http.StatusInternalServerError, InternalErrorOutcome(err.Error())
	}
}
