package services

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var botIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("botid", func(fl validator.FieldLevel) bool {
		id := fl.Field().String()
		return botIDPattern.MatchString(id) && id != "." && id != ".."
	})
	return v
}

func validationMessage(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		msg := e.Field() + ": failed " + e.Tag()
		if e.Param() != "" {
			msg += "=" + e.Param()
		}
		parts = append(parts, msg)
	}
	return "invalid request: " + strings.Join(parts, ", ")
}
