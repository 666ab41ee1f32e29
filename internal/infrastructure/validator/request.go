package validator

import (
	"errors"
	"fmt"
	"strings"

	playground "github.com/go-playground/validator/v10"

	"docgen/internal/domain/entity"
)

// RequestValidator enforces the `validate` struct tags on incoming generation requests.
type RequestValidator struct {
	validate *playground.Validate
}

func NewRequestValidator() *RequestValidator {
	v := playground.New()
	_ = v.RegisterValidation("nonblank", validateNonBlank)
	return &RequestValidator{validate: v}
}

func validateNonBlank(fl playground.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// Validate returns entity.ErrInvalidInput naming the first offending field.
func (v *RequestValidator) Validate(req entity.GenerationRequest) error {
	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs playground.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Errorf("%w: %s failed %q", entity.ErrInvalidInput, strings.ToLower(fe.Field()), fe.Tag())
	}
	return fmt.Errorf("%w: %w", entity.ErrInvalidInput, err)
}
