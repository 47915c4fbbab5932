package worker

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestWaitReturnsNilAfterDuration(t *testing.T) {
	t.Parallel()

	start := time.Now()
	err := Wait(context.Background(), 10*time.Millisecond)
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestWaitReturnsImmediatelyForNonPositiveDuration(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Wait(context.Background(), 0))
}

func TestWaitReturnsErrorWhenContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Wait(ctx, time.Second)
	assert.Error(t, err)
}

func TestRecoverPanicSwallowsPanic(t *testing.T) {
	t.Parallel()

	logger := zerolog.Nop()

	func() {
		defer RecoverPanic(&logger, "test operation")
		panic("boom")
	}()
}

func TestRecoverPanicToleratesNilLogger(t *testing.T) {
	t.Parallel()

	func() {
		defer RecoverPanic(nil, "test operation")
		panic("boom")
	}()
}
