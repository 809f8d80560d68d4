package registry_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlink/internal/protocol"
	"github.com/chatlink/internal/registry"
	"github.com/chatlink/internal/testutil"
)

func TestRegisterReplacesWithoutClosing(t *testing.T) {
	reg := registry.New()
	first, second := testutil.NewConn(), testutil.NewConn()

	assert.Nil(t, reg.Register(1, first))
	replaced := reg.Register(1, second)
	assert.Same(t, first, replaced)
	assert.False(t, first.Closed())

	got, ok := reg.Lookup(1)
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, reg.Len())
}

func TestUnregisterIsCompareAndDelete(t *testing.T) {
	reg := registry.New()
	stale, current := testutil.NewConn(), testutil.NewConn()
	reg.Register(1, stale)
	reg.Register(1, current)

	assert.False(t, reg.Unregister(1, stale))
	_, ok := reg.Lookup(1)
	assert.True(t, ok)

	assert.True(t, reg.Unregister(1, current))
	_, ok = reg.Lookup(1)
	assert.False(t, ok)
	assert.False(t, reg.Unregister(1, current))
}

func TestSendToMissingOrFullConn(t *testing.T) {
	reg := registry.New()
	assert.False(t, reg.Send(9, protocol.Status{UserID: 1}))

	c := testutil.NewConn()
	reg.Register(9, c)
	assert.True(t, reg.Send(9, protocol.Status{UserID: 1}))

	c.SetFull(true)
	assert.False(t, reg.Send(9, protocol.Status{UserID: 1}))
	assert.Len(t, c.Frames(), 1)
}

func TestMulticastSkipsBadRecipients(t *testing.T) {
	for _, threshold := range []int{1000, 2} {
		reg := registry.New().WithFanout(threshold, 3)
		conns := make(map[int64]*testutil.Conn)
		for id := int64(1); id <= 10; id++ {
			conns[id] = testutil.NewConn()
			reg.Register(id, conns[id])
		}
		conns[3].Close()
		conns[4].SetFull(true)

		n := reg.Multicast([]int64{1, 2, 3, 4, 5, 5, 6, 7, 8, 9, 10, 11}, protocol.GroupDeleted{GroupID: 1})
		assert.Equal(t, 8, n, "threshold %d", threshold)
		assert.Len(t, conns[5].Frames(), 1)
		assert.Empty(t, conns[3].Frames())
	}
}

func TestBroadcastReachesEveryone(t *testing.T) {
	reg := registry.New().WithFanout(4, 2)
	var conns []*testutil.Conn
	for id := int64(1); id <= 20; id++ {
		c := testutil.NewConn()
		conns = append(conns, c)
		reg.Register(id, c)
	}
	assert.Equal(t, 20, reg.Broadcast(protocol.Status{UserID: 1, IsOnline: true}))
	for _, c := range conns {
		assert.Len(t, testutil.FramesOf[protocol.Status](c), 1)
	}
	assert.Len(t, reg.All(), 20)
}

func TestConcurrentRegisterUnregister(t *testing.T) {
	reg := registry.New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			c := testutil.NewConn()
			reg.Register(id%5, c)
			reg.Broadcast(protocol.Status{UserID: id})
			reg.Unregister(id%5, c)
		}(int64(i))
	}
	wg.Wait()
	assert.LessOrEqual(t, reg.Len(), 5)
}
