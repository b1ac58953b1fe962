package service

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/TooLazyToCreate/blood-connect/internal/model"
	"github.com/go-playground/validator/v10"
)

const (
	msgRequiredFields = "All required fields must be provided"
	msgInvalidEmail   = "Invalid email format"
	msgInvalidBlood   = "Invalid blood group"
)

var mailboxPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// json tag names in messages, same as the request bodies
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return strings.ToLower(fld.Name)
		}
		return name
	})
	_ = v.RegisterValidation("mailbox", func(fl validator.FieldLevel) bool {
		return mailboxPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("bloodgroup", func(fl validator.FieldLevel) bool {
		return isBloodGroup(fl.Field().String())
	})
	return v
}

// validateStruct runs the struct tags of i and collapses the result into a
// single ValidationError. Missing fields win over format problems.
func validateStruct(i any) error {
	err := validate.Struct(i)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return newError(ErrInternal, genericServerMessage, err)
	}
	for _, fe := range errs {
		if fe.Tag() == "required" {
			return newError(ErrValidation, msgRequiredFields, err)
		}
	}
	switch fe := errs[0]; fe.Tag() {
	case "mailbox":
		return newError(ErrValidation, msgInvalidEmail, err)
	case "bloodgroup":
		return newError(ErrValidation, msgInvalidBlood, err)
	case "gte":
		return newError(ErrValidation, fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param()), err)
	default:
		return newError(ErrValidation, fmt.Sprintf("%s failed validation for %s", fe.Field(), fe.Tag()), err)
	}
}

func isBloodGroup(s string) bool {
	return slices.Contains(model.BloodGroups, s)
}

func trim(fields ...*string) {
	for _, f := range fields {
		*f = strings.TrimSpace(*f)
	}
}
