// Package validation builds field-by-field form checks that collapse into a
// single VALIDATION_FAILED AppError.
package validation

import (
	"fmt"
	"net/mail"
	"strings"

	errors "github.com/frahmantamala/sss-portal/internal"
)

type ValidatorFunc func(any) *errors.AppError

type FieldValidator struct {
	FieldName  string
	Value      any
	Validators []ValidatorFunc
}

type ValidationBuilder struct {
	fields []*FieldValidator
}

func NewValidator() *ValidationBuilder {
	return &ValidationBuilder{}
}

func (v *ValidationBuilder) Field(name string, value any) *FieldValidator {
	fv := &FieldValidator{FieldName: name, Value: value}
	v.fields = append(v.fields, fv)
	return fv
}

// Rule records a whole-form check that is not tied to one value.
func (v *ValidationBuilder) Rule(field string, ok bool, message string, code errors.ErrorCode) {
	v.Field(field, nil).Custom(func(any) *errors.AppError {
		if ok {
			return nil
		}
		return errors.NewValidationFieldError(field, message, code)
	})
}

func (fv *FieldValidator) add(check func(any) (bool, string), code errors.ErrorCode) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value any) *errors.AppError {
		if ok, msg := check(value); !ok {
			return errors.NewValidationFieldError(fv.FieldName, msg, code)
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) Required() *FieldValidator {
	return fv.add(func(value any) (bool, string) {
		msg := fmt.Sprintf("%s is required", fv.FieldName)
		switch v := value.(type) {
		case string:
			return strings.TrimSpace(v) != "", msg
		case *string:
			return v != nil && strings.TrimSpace(*v) != "", msg
		}
		return true, ""
	}, errors.ErrCodeValidationFailed)
}

func (fv *FieldValidator) MinLength(min int, code errors.ErrorCode) *FieldValidator {
	return fv.add(func(value any) (bool, string) {
		v, _ := value.(string)
		return len(v) >= min, fmt.Sprintf("%s must be at least %d characters", fv.FieldName, min)
	}, code)
}

func (fv *FieldValidator) MaxLength(max int) *FieldValidator {
	return fv.add(func(value any) (bool, string) {
		v, _ := value.(string)
		return len(v) <= max, fmt.Sprintf("%s must not exceed %d characters", fv.FieldName, max)
	}, errors.ErrCodeValidationFailed)
}

// Email accepts a bare address; display names are rejected.
func (fv *FieldValidator) Email() *FieldValidator {
	return fv.add(func(value any) (bool, string) {
		v, _ := value.(string)
		if v == "" {
			return true, ""
		}
		addr, err := mail.ParseAddress(v)
		return err == nil && addr.Address == v, fmt.Sprintf("%s must be a valid email address", fv.FieldName)
	}, errors.ErrCodeInvalidEmail)
}

func (fv *FieldValidator) Equals(other string, message string, code errors.ErrorCode) *FieldValidator {
	return fv.add(func(value any) (bool, string) {
		v, ok := value.(string)
		return !ok || v == other, message
	}, code)
}

func (fv *FieldValidator) Custom(validator ValidatorFunc) *FieldValidator {
	fv.Validators = append(fv.Validators, validator)
	return fv
}

// Validate runs every field and reports the first failure of each.
func (v *ValidationBuilder) Validate() *errors.AppError {
	var failures []errors.ValidationError

	for _, field := range v.fields {
		for _, validator := range field.Validators {
			err := validator(field.Value)
			if err == nil {
				continue
			}
			if details, ok := err.Details.(errors.ValidationErrors); ok {
				failures = append(failures, details.Errors...)
			} else {
				failures = append(failures, errors.ValidationError{
					Field:   field.FieldName,
					Message: err.Message,
					Code:    string(err.Code),
				})
			}
			break
		}
	}

	if len(failures) == 0 {
		return nil
	}
	return errors.NewValidationError("Validation failed", errors.ErrCodeValidationFailed).
		WithDetails(errors.ValidationErrors{Errors: failures})
}
