// ABOUTME: Tests for the circuit breaker state machine
// ABOUTME: Exercises open-on-failures, rejection while open and half-open recovery

package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRemote = errors.New("remote failure")

func failingOp(ctx context.Context) error { return errRemote }
func okOp(ctx context.Context) error      { return nil }

func TestBreakerOpensAfterFailureThreshold(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
		MaxRequests:      1,
	}, nil)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, failingOp), errRemote)
	}
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(ctx, okOp)
	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
}

func TestBreakerStaysClosedOnSuccesses(t *testing.T) {
	cb := NewCircuitBreaker(nil, nil)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, cb.Execute(ctx, okOp))
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
		MaxRequests:      1,
	}, nil)

	ctx := context.Background()
	require.Error(t, cb.Execute(ctx, failingOp))
	require.NoError(t, cb.Execute(ctx, okOp))
	require.Error(t, cb.Execute(ctx, failingOp))

	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          10 * time.Millisecond,
		MaxRequests:      2,
	}, nil)

	ctx := context.Background()
	require.Error(t, cb.Execute(ctx, failingOp))
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, cb.Execute(ctx, okOp))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(ctx, okOp))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          10 * time.Millisecond,
		MaxRequests:      2,
	}, nil)

	ctx := context.Background()
	require.Error(t, cb.Execute(ctx, failingOp))
	time.Sleep(20 * time.Millisecond)

	require.Error(t, cb.Execute(ctx, failingOp))
	assert.Equal(t, StateOpen, cb.State())
}

func TestBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
		MaxRequests:      1,
	}, nil)

	require.Error(t, cb.Execute(context.Background(), failingOp))
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Execute(context.Background(), okOp))
}
