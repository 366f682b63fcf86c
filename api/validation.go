package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/warp/actuals-engine/actuals"
)

// CategoryValidator accepts only the closed category set.
var CategoryValidator = func(fl validator.FieldLevel) bool {
	return actuals.Category(fl.Field().String()).Valid()
}

// NewValidator returns a validator with the custom tags used by the DTOs.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("category", CategoryValidator)
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var fieldMessages = map[string]string{
	"required": "is required",
	"datetime": "must be a date in YYYY-MM-DD format",
	"category": "must be one of Project, Operations, Admin/Others",
	"min":      "must not be empty",
}

// validationDetails converts validator errors into one message per field.
func validationDetails(err error) []map[string]string {
	details := make([]map[string]string, 0)

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return details
	}
	for _, e := range verrs {
		msg, ok := fieldMessages[e.Tag()]
		if !ok {
			msg = fmt.Sprintf("failed %q check", e.Tag())
		}
		details = append(details, map[string]string{e.Field(): msg})
	}
	return details
}
