package service

import (
	"testing"

	"github.com/ayo6706/payment-bridge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to  domain.Status
		overwrite bool
		immutable bool
	}{
		{domain.StatusPending, domain.StatusProcessing, true, true},
		{domain.StatusPending, domain.StatusFailed, true, true},
		{domain.StatusPending, domain.StatusCompleted, true, true},
		{domain.StatusProcessing, domain.StatusCompleted, true, true},
		{domain.StatusProcessing, domain.StatusFailed, true, true},
		{domain.StatusProcessing, domain.StatusPending, false, false},
		{domain.StatusCompleted, domain.StatusFailed, true, false},
		{domain.StatusFailed, domain.StatusCompleted, true, false},
		{domain.StatusCompleted, domain.StatusProcessing, false, false},
		{domain.StatusFailed, domain.StatusPending, false, false},
		{domain.StatusCompleted, domain.StatusCompleted, true, true},
		{domain.StatusPending, domain.StatusPending, true, true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.overwrite, canTransition(TerminalOverwrite, tc.from, tc.to))
			assert.Equal(t, tc.immutable, canTransition(TerminalImmutable, tc.from, tc.to))
		})
	}
}

func TestParseTerminalPolicy(t *testing.T) {
	p, err := ParseTerminalPolicy("")
	require.NoError(t, err)
	assert.Equal(t, TerminalOverwrite, p)

	p, err = ParseTerminalPolicy(" Immutable ")
	require.NoError(t, err)
	assert.Equal(t, TerminalImmutable, p)

	_, err = ParseTerminalPolicy("strict")
	assert.Error(t, err)
}
