package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signupForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
}

func TestValidatePasses(t *testing.T) {
	err := Validate(signupForm{Email: "a@b.com", Password: "secret1"})
	assert.NoError(t, err)
}

func TestValidateReportsEachField(t *testing.T) {
	err := Validate(signupForm{Email: "not-an-email", Password: "abc"})
	require.Error(t, err)

	fields, ok := err.(FieldErrors)
	require.True(t, ok)
	assert.Equal(t, "email", fields["Email"])
	assert.Equal(t, "min", fields["Password"])
}

func TestFieldErrorsMessageIsStable(t *testing.T) {
	errs := FieldErrors{"B": "required", "A": "email"}
	assert.Equal(t, "validation failed: A (email), B (required)", errs.Error())
}
