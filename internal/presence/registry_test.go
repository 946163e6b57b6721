package presence

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRegistryEdges(t *testing.T) {
	r := NewRegistry()
	user := uuid.New()
	conn1 := uuid.New()
	conn2 := uuid.New()

	t.Run("first connection is the online edge", func(t *testing.T) {
		assert.True(t, r.RegisterConnection(user, conn1))
		assert.True(t, r.IsOnline(user))
	})

	t.Run("second connection is not an edge", func(t *testing.T) {
		assert.False(t, r.RegisterConnection(user, conn2))
		assert.Equal(t, 2, r.ConnectionCount(user))
	})

	t.Run("re-registering a known connection is not an edge", func(t *testing.T) {
		assert.False(t, r.RegisterConnection(user, conn1))
		assert.Equal(t, 2, r.ConnectionCount(user))
	})

	t.Run("dropping one of two connections keeps the user online", func(t *testing.T) {
		assert.False(t, r.UnregisterConnection(user, conn1))
		assert.True(t, r.IsOnline(user))
	})

	t.Run("dropping the last connection is the offline edge", func(t *testing.T) {
		assert.True(t, r.UnregisterConnection(user, conn2))
		assert.False(t, r.IsOnline(user))
		assert.Equal(t, 0, r.ConnectionCount(user))
	})

	t.Run("unknown connection is a no-op", func(t *testing.T) {
		assert.False(t, r.UnregisterConnection(user, uuid.New()))
		assert.False(t, r.UnregisterConnection(uuid.New(), uuid.New()))
	})
}

func TestRegistryConcurrentSpan(t *testing.T) {
	// Many connections for the same user registering and unregistering
	// concurrently must produce exactly one online edge and one offline
	// edge overall.
	r := NewRegistry()
	user := uuid.New()

	const conns = 64
	connIDs := make([]uuid.UUID, conns)
	for i := range connIDs {
		connIDs[i] = uuid.New()
	}

	var onlineEdges, offlineEdges int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, connID := range connIDs {
		wg.Add(1)
		go func(connID uuid.UUID) {
			defer wg.Done()
			if r.RegisterConnection(user, connID) {
				mu.Lock()
				onlineEdges++
				mu.Unlock()
			}
		}(connID)
	}
	wg.Wait()

	assert.Equal(t, 1, onlineEdges)
	assert.Equal(t, conns, r.ConnectionCount(user))

	for _, connID := range connIDs {
		wg.Add(1)
		go func(connID uuid.UUID) {
			defer wg.Done()
			if r.UnregisterConnection(user, connID) {
				mu.Lock()
				offlineEdges++
				mu.Unlock()
			}
		}(connID)
	}
	wg.Wait()

	assert.Equal(t, 1, offlineEdges)
	assert.False(t, r.IsOnline(user))
}
