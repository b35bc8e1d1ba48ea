package server

import (
	"sync"
	"testing"

	"netpump/transport"

	"github.com/stretchr/testify/assert"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a, b, c := transport.NewAddr("a", 1), transport.NewAddr("b", 2), transport.NewAddr("c", 3)

	assert.True(t, r.Add(b))
	assert.True(t, r.Add(a))
	assert.True(t, r.Add(c))
	assert.False(t, r.Add(a))

	assert.Equal(t, 3, r.Len())
	assert.True(t, r.Has(a))
	assert.Equal(t, []transport.Addr{b, a, c}, r.Snapshot())

	assert.True(t, r.Remove(a))
	assert.False(t, r.Remove(a))
	assert.False(t, r.Has(a))
	assert.Equal(t, []transport.Addr{b, c}, r.Snapshot())
}

func TestRegistrySnapshotIsCopy(t *testing.T) {
	r := NewRegistry()
	r.Add(transport.NewAddr("a", 1))

	snapshot := r.Snapshot()
	r.Add(transport.NewAddr("b", 2))
	snapshot[0] = transport.Addr{}

	assert.Len(t, snapshot, 1)
	assert.Equal(t, []transport.Addr{{Host: "a", Port: 1}, {Host: "b", Port: 2}}, r.Snapshot())
}

func TestRegistryConcurrent(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			addr := transport.NewAddr("host", uint16(i))
			r.Add(addr)
			r.Snapshot()
			if i%2 == 0 {
				r.Remove(addr)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 16, r.Len())
}
