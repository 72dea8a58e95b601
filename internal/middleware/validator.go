package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/autopoint-backend/internal/utils"
)

// Validator adapts go-playground/validator to echo. Failures become 422
// with "<field>: <cause>" for the first failing field, where field is the
// JSON name.
type Validator struct{ v *validator.Validate }

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form", "query"} {
			name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return utils.ValidPhone(fl.Field().String())
	})
	return &Validator{v: v}
}

func (cv *Validator) Validate(i any) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, describe(verrs[0]))
	}
	return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	if ns := fe.Namespace(); strings.Count(ns, ".") > 1 {
		// drop the root struct name, keep nested path
		_, field, _ = strings.Cut(ns, ".")
	}
	var cause string
	switch fe.Tag() {
	case "required", "required_without":
		cause = "field required"
	case "min":
		cause = minCause(fe)
	case "max":
		cause = maxCause(fe)
	case "len":
		cause = "must have length " + fe.Param()
	case "gte":
		cause = "must be greater than or equal to " + fe.Param()
	case "lte":
		cause = "must be less than or equal to " + fe.Param()
	case "gt":
		cause = "must be greater than " + fe.Param()
	case "lt":
		cause = "must be less than " + fe.Param()
	case "oneof":
		cause = "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "numeric":
		cause = "must contain digits only"
	case "email":
		cause = "must be a valid email address"
	case "url":
		cause = "must be a valid URL"
	case "phone":
		cause = "must be a phone number in +998XXXXXXXXX format"
	case "latitude":
		cause = "must be a latitude between -90 and 90"
	case "longitude":
		cause = "must be a longitude between -180 and 180"
	default:
		cause = "failed on " + fe.Tag()
	}
	return field + ": " + cause
}

func minCause(fe validator.FieldError) string {
	switch fe.Kind() {
	case reflect.String:
		return "must have at least " + fe.Param() + " characters"
	case reflect.Slice, reflect.Map, reflect.Array:
		return "must have at least " + fe.Param() + " items"
	}
	return "must be greater than or equal to " + fe.Param()
}

func maxCause(fe validator.FieldError) string {
	switch fe.Kind() {
	case reflect.String:
		return "must have at most " + fe.Param() + " characters"
	case reflect.Slice, reflect.Map, reflect.Array:
		return "must have at most " + fe.Param() + " items"
	}
	return "must be less than or equal to " + fe.Param()
}
