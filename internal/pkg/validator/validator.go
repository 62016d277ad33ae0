package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// FieldErrors maps field name to the failed validation tag. It satisfies
// error so form validation failures can short-circuit before any network
// call is made.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	fields := make([]string, 0, len(f))
	for name, tag := range f {
		fields = append(fields, fmt.Sprintf("%s (%s)", name, tag))
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// Validate checks struct fields against their validate tags and returns
// FieldErrors, or nil when the value is valid.
func Validate(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	errs := make(FieldErrors)
	for _, fe := range err.(validator.ValidationErrors) {
		errs[fe.Field()] = fe.Tag()
	}
	return errs
}
