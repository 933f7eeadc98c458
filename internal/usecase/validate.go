// Package usecase contains application use cases.
package usecase

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/runoshun/capsule/internal/domain"
)

// inputValidate checks use case inputs. Initialized in init() with the
// domain-specific tags.
var inputValidate *validator.Validate

func init() {
	inputValidate = validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their json name, matching the HTTP payloads.
	inputValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	mustRegister(inputValidate, "status", validateStatus)
	mustRegister(inputValidate, "priority", validatePriority)
	mustRegister(inputValidate, "notblank", validateNotBlank)
}

// mustRegister panics when tag cannot be registered.
func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("usecase: register %q validation: %v", tag, err))
	}
}

// validateStatus accepts an empty status or a canonical one.
func validateStatus(fl validator.FieldLevel) bool {
	s := domain.Status(fl.Field().String())
	return s == "" || s.IsValid()
}

func validatePriority(fl validator.FieldLevel) bool {
	return domain.Priority(fl.Field().String()).IsValid()
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// validateInput runs the struct tags of in and converts the first failure
// into a domain error.
func validateInput(in any) error {
	err := inputValidate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate input: %w", err)
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "status":
		return &domain.ValidationError{Field: fe.Field(), Reason: fmt.Sprintf("invalid status %q", fe.Value()), Err: domain.ErrInvalidStatus}
	case "priority":
		return &domain.ValidationError{Field: fe.Field(), Reason: fmt.Sprintf("invalid priority %q", fe.Value()), Err: domain.ErrInvalidPriority}
	case "notblank", "required":
		switch fe.Field() {
		case "title":
			return domain.NewFieldError(fe.Field(), domain.ErrEmptyTitle)
		case "text":
			return domain.NewFieldError(fe.Field(), domain.ErrEmptyMessage)
		}
	}
	return domain.NewValidationError(fe.Field(), reason(fe))
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte", "min":
		return "must be at least " + fe.Param()
	case "lte", "max":
		return "must be at most " + fe.Param()
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
