package broker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = RetryPolicy{Initial: time.Millisecond, Max: 2 * time.Millisecond}

func TestDeliverRetriesUntilHandled(t *testing.T) {
	calls := 0
	handler := func(ctx context.Context, msg kafka.Message) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	}

	require.NoError(t, fastRetry.Deliver(context.Background(), handler, kafka.Message{Offset: 4}))
	assert.Equal(t, 3, calls)
}

func TestDeliverSkipsMalformedMessage(t *testing.T) {
	calls := 0
	handler := func(ctx context.Context, msg kafka.Message) error {
		calls++
		return fmt.Errorf("%w: bad json", ErrMalformedMessage)
	}

	require.NoError(t, fastRetry.Deliver(context.Background(), handler, kafka.Message{}))
	assert.Equal(t, 1, calls)
}

func TestDeliverStopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	handler := func(ctx context.Context, msg kafka.Message) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.New("database unavailable")
	}

	err := fastRetry.Deliver(ctx, handler, kafka.Message{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, calls)
}
