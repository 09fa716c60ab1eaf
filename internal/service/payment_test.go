package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedProvider_Approves(t *testing.T) {
	provider := NewSimulatedProvider(0)

	receipt, err := provider.Charge(context.Background(), 2499, "tok")
	require.NoError(t, err)
	assert.True(t, receipt.Success)
	assert.Equal(t, "simulated", receipt.Provider)
	assert.True(t, strings.HasPrefix(receipt.Reference, "TXN-"))
}

func TestSimulatedProvider_Decline(t *testing.T) {
	provider := NewSimulatedProvider(0)
	provider.DeclineWith("test decline")

	_, err := provider.Charge(context.Background(), 100, "tok")

	var decline *DeclineError
	require.ErrorAs(t, err, &decline)
	assert.Equal(t, "test decline", decline.Reason)
}

func TestSimulatedProvider_HonorsCancellation(t *testing.T) {
	provider := NewSimulatedProvider(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := provider.Charge(ctx, 100, "tok")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
