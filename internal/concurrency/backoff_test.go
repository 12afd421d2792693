package concurrency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffGrowsAndResets(t *testing.T) {
	b := NewBackoff(time.Microsecond, 4*time.Microsecond)
	defer b.Stop()
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		assert.NoError(t, b.Wait(ctx, nil))
	}
	assert.Equal(t, 4*time.Microsecond, b.cur)
	b.Reset()
	assert.Equal(t, time.Microsecond, b.cur)
}

func TestBackoffWakeAndCancel(t *testing.T) {
	b := NewBackoff(time.Hour, time.Hour)
	defer b.Stop()

	wake := make(chan struct{}, 1)
	wake <- struct{}{}
	assert.NoError(t, b.Wait(context.Background(), wake))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.Wait(ctx, nil), context.Canceled)
}

func TestBackoffClampsBounds(t *testing.T) {
	b := NewBackoff(0, -1)
	defer b.Stop()
	assert.Equal(t, time.Microsecond, b.min)
	assert.Equal(t, time.Microsecond, b.max)
}
