package correlation

import (
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"orderbridge/internal/metrics"
)

func mustNewIndex(t *testing.T, opts ...Option) *Index {
	t.Helper()
	ix, err := New(opts...)
	require.NoError(t, err)
	return ix
}

func TestResolve_CurrentGeneration(t *testing.T) {
	ix := mustNewIndex(t)
	ix.BeginGeneration("chat-1")
	ix.Record("chat-1", "m1", "o1")
	ix.Record("chat-1", "m2", "o2")

	got, ok := ix.Resolve("chat-1", "m1")
	require.True(t, ok)
	require.Equal(t, "o1", got)

	got, ok = ix.Resolve("chat-1", "m2")
	require.True(t, ok)
	require.Equal(t, "o2", got)
}

func TestBeginGeneration_DiscardsPrevious(t *testing.T) {
	ix := mustNewIndex(t)
	first := ix.BeginGeneration("chat-1")
	ix.Record("chat-1", "m1", "o1")

	second := ix.BeginGeneration("chat-1")
	require.Greater(t, second, first)
	require.Equal(t, second, ix.Generation("chat-1"))

	_, ok := ix.Resolve("chat-1", "m1")
	require.False(t, ok)
}

func TestBeginGeneration_DoesNotMutateOldGeneration(t *testing.T) {
	ix := mustNewIndex(t)
	ix.BeginGeneration("chat-1")
	ix.Record("chat-1", "m1", "o1")
	old, ok := ix.chats.Peek("chat-1")
	require.True(t, ok)

	ix.BeginGeneration("chat-1")
	ix.Record("chat-1", "m2", "o2")

	require.Equal(t, map[string]string{"m1": "o1"}, old.entries)
}

func TestResolve_IsIdempotent(t *testing.T) {
	ix := mustNewIndex(t)
	gen := ix.BeginGeneration("chat-1")
	ix.Record("chat-1", "m1", "o1")

	a, okA := ix.Resolve("chat-1", "m1")
	b, okB := ix.Resolve("chat-1", "m1")
	require.Equal(t, a, b)
	require.Equal(t, okA, okB)
	require.Equal(t, gen, ix.Generation("chat-1"))
	require.Equal(t, 1, ix.Len())
}

func TestResolve_Misses(t *testing.T) {
	ix := mustNewIndex(t)
	_, ok := ix.Resolve("unknown", "m1")
	require.False(t, ok)

	ix.BeginGeneration("chat-1")
	ix.Record("chat-1", "m1", "o1")
	_, ok = ix.Resolve("chat-1", "m9")
	require.False(t, ok)
	_, ok = ix.Resolve("chat-2", "m1")
	require.False(t, ok, "generations are scoped per chat")
	require.Zero(t, ix.Generation("chat-2"))
}

func TestRecord_WithoutGenerationOpensOne(t *testing.T) {
	ix := mustNewIndex(t)
	ix.Record("chat-1", "m1", "o1")
	got, ok := ix.Resolve("chat-1", "m1")
	require.True(t, ok)
	require.Equal(t, "o1", got)
	require.NotZero(t, ix.Generation("chat-1"))
}

func TestGenerationsAreIndependentAcrossChats(t *testing.T) {
	ix := mustNewIndex(t)
	ix.BeginGeneration("chat-1")
	ix.Record("chat-1", "m1", "o1")
	ix.BeginGeneration("chat-2")
	ix.Record("chat-2", "m1", "o7")

	ix.BeginGeneration("chat-2")

	got, ok := ix.Resolve("chat-1", "m1")
	require.True(t, ok)
	require.Equal(t, "o1", got)
	_, ok = ix.Resolve("chat-2", "m1")
	require.False(t, ok)
}

func TestMaxChats_EvictsOldestListing(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	ix := mustNewIndex(t, WithMaxChats(2), WithMetrics(m))

	ix.BeginGeneration("chat-1")
	ix.Record("chat-1", "m1", "o1")
	ix.BeginGeneration("chat-2")
	ix.Record("chat-2", "m1", "o2")

	// Resolving does not refresh recency; chat-1 is still the oldest listing.
	_, _ = ix.Resolve("chat-1", "m1")
	ix.BeginGeneration("chat-3")

	require.Equal(t, 2, ix.Len())
	_, ok := ix.Resolve("chat-1", "m1")
	require.False(t, ok)
	got, ok := ix.Resolve("chat-2", "m1")
	require.True(t, ok)
	require.Equal(t, "o2", got)
	require.Equal(t, float64(1), testutil.ToFloat64(m.ChatsEvicted))
	require.Equal(t, float64(2), testutil.ToFloat64(m.ChatsTracked))
}

func TestConcurrentListingsAndReactions(t *testing.T) {
	ix := mustNewIndex(t)
	var wg sync.WaitGroup
	for c := 0; c < 8; c++ {
		chatID := fmt.Sprintf("chat-%d", c)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				ix.BeginGeneration(chatID)
				ix.Record(chatID, "m", fmt.Sprintf("o%d", i))
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, _ = ix.Resolve(chatID, "m")
			}
		}()
	}
	wg.Wait()

	for c := 0; c < 8; c++ {
		got, ok := ix.Resolve(fmt.Sprintf("chat-%d", c), "m")
		require.True(t, ok)
		require.Equal(t, "o99", got)
	}
}
