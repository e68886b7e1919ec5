package aggregation_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/illmade-knight/go-pacsflow/pkg/aggregation"
	"github.com/illmade-knight/go-pacsflow/pkg/cache"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate(t *testing.T) *aggregation.Gate {
	t.Helper()
	g, err := aggregation.NewGate(cache.NewInMemoryStore[string, string](0), "last", zerolog.Nop())
	require.NoError(t, err)
	return g
}

func TestGate_SuppressesUnchangedBatch(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(t)

	forward, err := g.ShouldForward(ctx, []byte(`[{"a":1}]`))
	require.NoError(t, err)
	assert.True(t, forward)

	forward, err = g.ShouldForward(ctx, []byte(`[{"a":1}]`))
	require.NoError(t, err)
	assert.False(t, forward)

	forward, err = g.ShouldForward(ctx, []byte(`[{"a":2}]`))
	require.NoError(t, err)
	assert.True(t, forward)

	// Comparison is against the last forwarded batch only.
	forward, err = g.ShouldForward(ctx, []byte(`[{"a":1}]`))
	require.NoError(t, err)
	assert.True(t, forward)
}

func TestGate_ConcurrentComparisonsForwardOnce(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(t)

	var forwarded atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := g.ShouldForward(ctx, []byte(`[{"same":true}]`))
			assert.NoError(t, err)
			if ok {
				forwarded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), forwarded.Load())
}

func TestGate_Revert(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(t)
	batch := []byte(`[{"a":1}]`)

	forward, err := g.ShouldForward(ctx, batch)
	require.NoError(t, err)
	require.True(t, forward)

	require.NoError(t, g.Revert(ctx, batch))

	forward, err = g.ShouldForward(ctx, batch)
	require.NoError(t, err)
	assert.True(t, forward, "reverted batch must be forwarded again")

	// Revert of a batch that is no longer the snapshot is ignored.
	require.NoError(t, g.Revert(ctx, []byte(`[{"other":1}]`)))
	forward, err = g.ShouldForward(ctx, batch)
	require.NoError(t, err)
	assert.False(t, forward)
}

func TestNewGate_Validation(t *testing.T) {
	_, err := aggregation.NewGate(nil, "k", zerolog.Nop())
	assert.Error(t, err)
	_, err = aggregation.NewGate(cache.NewInMemoryStore[string, string](0), "", zerolog.Nop())
	assert.Error(t, err)
}
