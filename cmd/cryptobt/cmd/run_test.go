package cmd

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCleanShutdown(t *testing.T) {
	t.Parallel()

	assert.True(t, isCleanShutdown(nil))
	assert.True(t, isCleanShutdown(context.Canceled))
	assert.True(t, isCleanShutdown(fmt.Errorf("feed: %w", context.Canceled)))

	assert.False(t, isCleanShutdown(errors.New("stream closed unexpectedly")))
	assert.False(t, isCleanShutdown(context.DeadlineExceeded))
}
