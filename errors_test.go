package gauntlet

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCategoryPredicates(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name string
		err  error
		is   func(error) bool
	}{
		{"runtime", NewRuntimeError(base), IsRuntimeError},
		{"invocation", NewInvocationError(base), IsInvocationError},
		{"timeout", NewTimeoutError(base), IsTimeoutError},
		{"distribution timeout", NewDistributionTimeoutError(base), IsDistributionTimeoutError},
		{"broker unavailable", NewBrokerUnavailableError(base), IsBrokerUnavailableError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.is(tt.err))
			assert.True(t, tt.is(fmt.Errorf("outer: %w", tt.err)), "predicate must see through wrapping")
			assert.ErrorIs(t, tt.err, base, "category must unwrap to its cause")
			assert.False(t, tt.is(base), "bare cause is not the category")
			assert.False(t, tt.is(nil))
		})
	}
}

func TestErrorCategoriesAreDistinct(t *testing.T) {
	base := errors.New("boom")
	assert.False(t, IsRuntimeError(NewInvocationError(base)))
	assert.False(t, IsInvocationError(NewTimeoutError(base)))
	assert.False(t, IsTimeoutError(NewDistributionTimeoutError(base)))
	assert.False(t, IsDistributionTimeoutError(NewBrokerUnavailableError(base)))
	assert.False(t, IsBrokerUnavailableError(NewRuntimeError(base)))
}

func TestErrorCategoryMessages(t *testing.T) {
	base := errors.New("boom")
	assert.Contains(t, NewInvocationError(base).Error(), "agent invocation error: boom")
	assert.Contains(t, NewTimeoutError(base).Error(), "timed out: boom")
	assert.Contains(t, NewDistributionTimeoutError(base).Error(), "distribution timeout: boom")
	assert.Contains(t, NewBrokerUnavailableError(base).Error(), "broker unavailable: boom")
}
