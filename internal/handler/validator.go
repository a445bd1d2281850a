package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// RequestValidator plugs go-playground/validator into echo.
type RequestValidator struct {
	v *validator.Validate
}

func NewValidator() *RequestValidator {
	return &RequestValidator{v: validator.New(validator.WithRequiredStructEnabled())}
}

func (rv *RequestValidator) Validate(i interface{}) error {
	if err := rv.v.Struct(i); err != nil {
		return &validationError{err: err}
	}
	return nil
}

type validationError struct {
	err error
}

func (e *validationError) Error() string { return "invalid request" }

func (e *validationError) Unwrap() error { return e.err }

// details maps json field names to the failed rule.
func (e *validationError) details() map[string]string {
	var fields validator.ValidationErrors
	if !errors.As(e.err, &fields) {
		return nil
	}
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		out[jsonPath(f.Namespace())] = f.Tag()
	}
	return out
}

// jsonPath turns "createBookingRequest.SeatIDs[0]" into "SeatIDs[0]".
func jsonPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

// bind decodes the body into dst and validates it.
func bind(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return &validationError{err: err}
	}
	return c.Validate(dst)
}
