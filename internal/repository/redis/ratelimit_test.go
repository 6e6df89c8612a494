package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	resetAt := time.Now().Truncate(time.Minute).Add(time.Minute)

	t.Run("within window", func(t *testing.T) {
		d := decide(5, 60, 10, resetAt)

		assert.True(t, d.Allowed)
		assert.Equal(t, 70, d.Limit)
		assert.Equal(t, 65, d.Remaining)
		assert.Equal(t, resetAt, d.ResetAt)
	})

	t.Run("burst absorbed at the ceiling", func(t *testing.T) {
		d := decide(70, 60, 10, resetAt)

		assert.True(t, d.Allowed)
		assert.Equal(t, 0, d.Remaining)
	})

	t.Run("denied over the ceiling", func(t *testing.T) {
		d := decide(71, 60, 10, resetAt)

		assert.False(t, d.Allowed)
		assert.Equal(t, 0, d.Remaining)
	})
}
