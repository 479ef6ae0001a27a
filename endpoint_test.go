package querycache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointDefaultsAndOverrides(t *testing.T) {
	p := &counter{fn: func(int) (string, error) { return "x", nil }}
	ep, err := NewEndpoint(p.produce, Options[int, string]{}, WithStaleTime(time.Minute))
	require.NoError(t, err)
	defer ep.Close(context.Background())
	ctx := context.Background()

	require.NoError(t, ep.Prefetch(ctx, 1))
	require.NoError(t, ep.Prefetch(ctx, 1))
	assert.Equal(t, 1, p.calls(), "endpoint default stale time applies")

	require.NoError(t, ep.Prefetch(ctx, 1, WithStaleTime(0)))
	assert.Equal(t, 2, p.calls(), "per-call option wins")

	q := ep.Use()
	v, err := await(t, q.SetArgAsync(1))
	require.NoError(t, err)
	assert.Equal(t, "x", v)
	assert.Equal(t, 2, p.calls())
}

func TestEndpointDelegates(t *testing.T) {
	boom := errors.New("boom")
	p := &counter{fn: func(a int) (string, error) {
		if a < 0 {
			return "", boom
		}
		return "x", nil
	}}
	ep, err := NewEndpoint(p.produce, Options[int, string]{StaleTime: NeverStale})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = await(t, ep.PrefetchAsync(-1))
	assert.ErrorIs(t, err, boom)

	q := ep.Use()
	_, _ = await(t, q.SetArgAsync(1))
	ep.UpdateQueryData(1, "manual")
	assert.Equal(t, "manual", q.Data())

	ep.Invalidate(1)
	info, _ := ep.Cache().Info(1)
	assert.True(t, info.Stale)

	_, _ = await(t, ep.PrefetchAsync(2))
	ep.InvalidateAll()
	info, _ = ep.Cache().Info(2)
	assert.True(t, info.Stale)

	require.NoError(t, ep.Close(ctx))
	assert.ErrorIs(t, ep.Prefetch(ctx, 3), ErrClosed)
}

func TestNewEndpointPropagatesOptionErrors(t *testing.T) {
	_, err := NewEndpoint[int, string](nil, Options[int, string]{})
	assert.Error(t, err)
}
