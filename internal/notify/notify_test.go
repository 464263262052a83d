package notify

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	base := errors.New("connection reset")

	assert.True(t, IsRetryable(Temporary(base)))
	assert.True(t, IsRetryable(fmt.Errorf("smtp: %w", Temporary(base))))
	assert.False(t, IsRetryable(base))
	assert.Nil(t, Temporary(nil))
	assert.ErrorIs(t, Temporary(base), base)
}

func TestBackoffGrowsAndIsCapped(t *testing.T) {
	base := 100 * time.Millisecond
	max := time.Second

	first := Backoff(1, base, max)
	assert.GreaterOrEqual(t, first, base)
	assert.Less(t, first, base+base/5+time.Nanosecond)

	third := Backoff(3, base, max)
	assert.GreaterOrEqual(t, third, 400*time.Millisecond)

	capped := Backoff(20, base, max)
	assert.GreaterOrEqual(t, capped, max)
	assert.LessOrEqual(t, capped, max+max/5)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "hello", Preview("hello", 10))
	assert.Equal(t, "hel...", Preview("hello world", 6))
	assert.Equal(t, "при...", Preview("привет мир", 6))
}
