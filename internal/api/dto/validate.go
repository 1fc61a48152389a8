package dto

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/pwd-registry/support-desk/pkg/util/errorutil"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		switch name {
		case "-":
			return ""
		case "":
			return field.Name
		}
		return name
	})
	// enum_list accepts a comma separated list whose items all belong to the space separated param.
	_ = v.RegisterValidation("enum_list", func(fl validator.FieldLevel) bool {
		allowed := strings.Fields(fl.Param())
		for _, item := range splitList(fl.Field().String()) {
			found := false
			for _, a := range allowed {
				if item == a {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	})
	return v
}

// Validate checks a request against its validate tags and reports failures per field.
func Validate(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = append(fields[fe.Field()], message(fe))
	}
	return apperrors.NewValidationError("The given data was invalid.", fields)
}

func message(fe validator.FieldError) string {
	field := strings.ReplaceAll(fe.Field(), "_", " ")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", field)
	case "email":
		return fmt.Sprintf("The %s must be a valid email address.", field)
	case "max":
		return fmt.Sprintf("The %s must not be greater than %s characters.", field, fe.Param())
	case "min":
		return fmt.Sprintf("The %s must be at least %s.", field, fe.Param())
	case "oneof", "enum_list":
		return fmt.Sprintf("The selected %s is invalid.", field)
	default:
		return fmt.Sprintf("The %s field is invalid.", field)
	}
}
