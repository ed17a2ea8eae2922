package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their wire name
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func describeValidation(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		switch fe.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", fe.Field()))
		case "email":
			messages = append(messages, fmt.Sprintf("%s must be a valid email address", fe.Field()))
		case "number":
			messages = append(messages, fmt.Sprintf("%s must contain digits only", fe.Field()))
		case "min":
			messages = append(messages, fmt.Sprintf("%s must be at least %s characters long", fe.Field(), fe.Param()))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s characters long", fe.Field(), fe.Param()))
		case "gt":
			messages = append(messages, fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param()))
		case "lte":
			messages = append(messages, fmt.Sprintf("%s must not exceed %s", fe.Field(), fe.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return strings.Join(messages, "; ")
}
