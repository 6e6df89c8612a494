package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	type signup struct {
		Email    string `validate:"required,email"`
		Password string `validate:"required,min=8"`
		Name     string `validate:"max=4"`
	}

	t.Run("valid payload", func(t *testing.T) {
		err := Validate(signup{Email: "a@example.com", Password: "longenough"})
		assert.NoError(t, err)
	})

	t.Run("detail maps fields to messages", func(t *testing.T) {
		err := Validate(signup{Email: "not-an-email", Password: "short", Name: "too long"})
		require.Error(t, err)

		detail, ok := ValidationDetail(err).(map[string]string)
		require.True(t, ok)
		assert.Equal(t, "invalid email format", detail["Email"])
		assert.Equal(t, "must be at least 8 characters", detail["Password"])
		assert.Equal(t, "must be at most 4 characters", detail["Name"])
	})

	t.Run("non-validator error passes through", func(t *testing.T) {
		detail := ValidationDetail(assert.AnError)
		assert.Equal(t, assert.AnError.Error(), detail)
	})
}
