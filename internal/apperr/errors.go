package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors, compared with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidState      = errors.New("invalid state")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrPaymentFailed     = errors.New("payment failed")
	ErrConflict          = errors.New("conflict")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidInput      = errors.New("invalid input")
)

// Error carries the failing operation and a client-facing message alongside
// the sentinel kind it wraps.
type Error struct {
	Op      string // e.g. "refund.Approve"
	Kind    error  // one of the sentinels above
	ID      string // optional id of the entity involved
	Message string
	Err     error // underlying cause, if any
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Kind != nil {
		msg = e.Kind.Error()
	}
	if e.ID != "" {
		msg = fmt.Sprintf("%s [%s]: %s", e.Op, e.ID, msg)
	} else if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// New builds an *Error of the given kind.
func New(op string, kind error, format string, args ...interface{}) *Error {
	return &Error{Op: op, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFound is shorthand for a missing entity.
func NotFound(op, entity string, id interface{}) *Error {
	return &Error{
		Op:      op,
		Kind:    ErrNotFound,
		ID:      fmt.Sprint(id),
		Message: fmt.Sprintf("%s not found", entity),
	}
}

// Message returns the client-facing text for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if IsClientError(err) {
		return err.Error()
	}
	return "internal server error"
}

// HTTPStatus maps an error to the status code the API answers with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrEmptyCart),
		errors.Is(err, ErrPaymentFailed),
		errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// IsClientError reports whether err is a validation or lifecycle failure
// rather than an unexpected one.
func IsClientError(err error) bool {
	status := HTTPStatus(err)
	return status >= 400 && status < 500
}
