package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// check validates v against its `validate` tags and reports the first failing
// field as a KindInvalid error.
func check(op string, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		fe := ves[0]
		return E(KindInvalid, op, fmt.Errorf("%s is invalid (%s)", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return E(KindInvalid, op, err)
}

func errBlank(field string) error {
	return fmt.Errorf("%s must not be blank", field)
}
