package handler

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// Validator plugs go-playground/validator into echo as e.Validator.
// Field names in errors are the json names the client sent.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

func (cv *Validator) Validate(i interface{}) error {
	return cv.v.Struct(i)
}

// ValidationError lists the offending fields of a request body.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string { return e.Message }

func newValidationError(errs validator.ValidationErrors) *ValidationError {
	fields := make(map[string]string, len(errs))
	missing := false
	for _, fe := range errs {
		switch fe.Tag() {
		case "required":
			missing = true
			fields[fe.Field()] = fmt.Sprintf("%s is required", fe.Field())
		case "email":
			fields[fe.Field()] = fmt.Sprintf("%s must be a valid email", fe.Field())
		case "oneof":
			fields[fe.Field()] = fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
		default:
			fields[fe.Field()] = fmt.Sprintf("%s validation failed on '%s' tag", fe.Field(), fe.Tag())
		}
	}
	msg := "invalid fields"
	if missing {
		msg = "missing required fields"
	}
	return &ValidationError{Message: msg, Fields: fields}
}

// bind decodes the body into req and validates it.  When ok is false a
// 400 response has already been written and the handler returns err.
func bind(c echo.Context, req interface{}) (ok bool, err error) {
	if err := c.Bind(req); err != nil {
		return false, c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(req); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			verr := newValidationError(ve)
			return false, c.JSON(http.StatusBadRequest, echo.Map{"error": verr.Message, "fields": verr.Fields})
		}
		return false, c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	return true, nil
}
