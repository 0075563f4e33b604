// Package validation wraps go-playground/validator with the project's custom
// tags and domain-error translation.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	dErrors "campusgate/pkg/domain-errors"
)

// MaxBodySize caps admin API request bodies.
const MaxBodySize = 64 * 1024

// MaxTenantKeyLength is the DNS label limit.
const MaxTenantKeyLength = 63

// tenantKeyPattern is a lowercase DNS label: letters, digits and inner hyphens.
var tenantKeyPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

var defaultValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("tenantkey", func(fl validator.FieldLevel) bool {
		return IsTenantKey(fl.Field().String())
	})
	return v
}

// IsTenantKey reports whether s is a well-formed tenant key (a lowercase DNS label).
func IsTenantKey(s string) bool {
	return len(s) <= MaxTenantKeyLength && tenantKeyPattern.MatchString(s)
}

// Validate validates a struct using the default validator and returns a domain error.
func Validate(req any) error {
	if err := defaultValidator.Struct(req); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			// Non-struct targets carry no tags to check.
			return nil
		}
		return dErrors.New(dErrors.CodeValidation, ErrorMessage(err))
	}
	return nil
}

// ErrorMessage converts a validator error into a human-readable message
// naming the first failing field by its JSON name.
func ErrorMessage(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return "invalid request body"
	}

	fe := validationErrs[0]
	field := fe.Field()
	if field == "" {
		field = fe.StructField()
	}

	switch fe.ActualTag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "notblank":
		return fmt.Sprintf("%s must not be blank", field)
	case "tenantkey":
		return fmt.Sprintf("%s must be a lowercase DNS label", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
