package ringbuffer_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenzoki/mcpbroker/internal/ringbuffer"
)

func TestPushPopFIFO(t *testing.T) {
	r := ringbuffer.New[int](4)
	for _, v := range []int{1, 2, 3} {
		require.True(t, r.Push(v))
	}

	var out int
	for _, want := range []int{1, 2, 3} {
		require.True(t, r.Pop(&out))
		assert.Equal(t, want, out)
	}
	assert.True(t, r.Empty())
}

func TestFullAfterNPushes(t *testing.T) {
	r := ringbuffer.New[int](3)
	for i := 0; i < 3; i++ {
		require.True(t, r.Push(i))
	}
	assert.True(t, r.Full())
	assert.False(t, r.Push(99))

	var out int
	require.True(t, r.Pop(&out))
	assert.False(t, r.Full())
	assert.True(t, r.Push(99))
}

func TestPopOnEmptyFails(t *testing.T) {
	r := ringbuffer.New[string](2)
	var out string
	assert.False(t, r.Pop(&out))
	assert.Equal(t, "", out)
}

func TestPushOnFullLeavesBufferUnchanged(t *testing.T) {
	r := ringbuffer.New[int](1)
	require.True(t, r.Push(7))
	assert.False(t, r.Push(8))

	var out int
	require.True(t, r.Pop(&out))
	assert.Equal(t, 7, out)
}

// TestSPSCFidelity mirrors the broker spec's S5 scenario: a strict SPSC run
// of K distinct pushes paired with K pops must yield exactly the pushed
// sequence in FIFO order, with no loss and no duplication.
func TestSPSCFidelity(t *testing.T) {
	const k = 100_000
	r := ringbuffer.New[int](32)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < k; i++ {
			for !r.Push(i) {
				// retry-on-full
			}
		}
	}()

	got := make([]int, 0, k)
	go func() {
		defer wg.Done()
		var v int
		for len(got) < k {
			if r.Pop(&v) {
				got = append(got, v)
			}
		}
	}()

	wg.Wait()
	require.Len(t, got, k)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestCapacityExactlyN(t *testing.T) {
	r := ringbuffer.New[int](5)
	assert.Equal(t, 5, r.Capacity())
	count := 0
	for r.Push(count) {
		count++
	}
	assert.Equal(t, 5, count)
}
