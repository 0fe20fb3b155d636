package handler

import (
    "errors"
    "fmt"
    "reflect"
    "strings"

    "github.com/go-playground/validator/v10"
)

// RequestValidator plugs go-playground/validator into echo so handlers can
// call c.Validate on bound request bodies.
type RequestValidator struct {
    v *validator.Validate
}

// NewRequestValidator returns a validator that reports fields by their
// json names.
func NewRequestValidator() *RequestValidator {
    v := validator.New(validator.WithRequiredStructEnabled())
    v.RegisterTagNameFunc(jsonFieldName)
    return &RequestValidator{v: v}
}

// Validate implements echo.Validator.
func (rv *RequestValidator) Validate(i interface{}) error {
    return rv.v.Struct(i)
}

// validationMessage renders the first failed rule as a short sentence.
func validationMessage(err error) string {
    var ve validator.ValidationErrors
    if !errors.As(err, &ve) || len(ve) == 0 {
        return "invalid request body"
    }
    fe := ve[0]
    switch fe.Tag() {
    case "required":
        return fmt.Sprintf("%s is required", fe.Field())
    case "min", "gte":
        return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
    case "max", "lte":
        return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
    }
    return fmt.Sprintf("%s is invalid", fe.Field())
}

func jsonFieldName(fld reflect.StructField) string {
    name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
    if name == "-" || name == "" {
        return fld.Name
    }
    return name
}
