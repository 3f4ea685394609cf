package qpuserver

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	backendNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)
)

type validationRule struct {
	tag string
	fn  func(fl validator.FieldLevel) bool
}

// requestValidator wraps the validator with the rules of the QPU API.
type requestValidator struct {
	validator *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New()
	for _, rule := range jobValidationRules() {
		_ = v.RegisterValidation(rule.tag, rule.fn)
	}
	return &requestValidator{validator: v}
}

func jobValidationRules() []validationRule {
	return []validationRule{
		{tag: "backend_name", fn: backendNameValidator},
		{tag: "openqasm", fn: openQASMValidator},
	}
}

// Struct validates s and turns the first failing rule into a readable message.
func (v *requestValidator) Struct(s any) error {
	err := v.validator.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return err
	}
	fe := validationErrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", fe.Field())
	case "min", "max", "eq":
		return fmt.Errorf("%s must be %s %s, got %v", fe.Field(), fe.Tag(), fe.Param(), fe.Value())
	default:
		return fmt.Errorf("%s is not a valid %s", fe.Field(), fe.Tag())
	}
}

func backendNameValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return backendNameRegex.MatchString(val)
}

// openQASMValidator accepts OpenQASM 2 programs which measure something.
func openQASMValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return strings.HasPrefix(strings.TrimSpace(val), "OPENQASM 2.0;") && strings.Contains(val, "measure ")
}
