package simple

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPolicyWait(t *testing.T) {
	t.Parallel()

	p := New()
	require.NoError(t, p.Wait(context.Background(), "https://acme.example"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, p.Wait(ctx, "https://acme.example"), context.Canceled)
}
