package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_FIFOOrder(t *testing.T) {
	buffer := NewBuffer(5, NewSignal())

	for i := 1; i <= 5; i++ {
		require.NoError(t, buffer.Put(Frame{Seq: uint64(i)}))
	}
	assert.Equal(t, 5, buffer.Len())

	for i := 1; i <= 5; i++ {
		frame, err := buffer.Get(time.Second)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), frame.Seq)
	}
	assert.Equal(t, 0, buffer.Len())
}

func TestBuffer_DefaultCapacity(t *testing.T) {
	buffer := NewBuffer(0, NewSignal())
	assert.Equal(t, DefaultBufferCapacity, buffer.Cap())
}

func TestBuffer_GetTimeout(t *testing.T) {
	buffer := NewBuffer(2, NewSignal())

	start := time.Now()
	_, err := buffer.Get(20 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestBuffer_PutBlocksWhenFull(t *testing.T) {
	buffer := NewBuffer(2, NewSignal())

	require.NoError(t, buffer.Put(Frame{Seq: 1}))
	require.NoError(t, buffer.Put(Frame{Seq: 2}))

	unblocked := make(chan error, 1)
	go func() {
		unblocked <- buffer.Put(Frame{Seq: 3})
	}()

	// The third put must not complete while the buffer is full.
	select {
	case err := <-unblocked:
		t.Fatalf("put completed on a full buffer: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	frame, err := buffer.Get(time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), frame.Seq)

	select {
	case err := <-unblocked:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("put did not unblock after a get")
	}
}

func TestBuffer_PutAfterShutdown(t *testing.T) {
	shutdown := NewSignal()
	buffer := NewBuffer(2, shutdown)

	shutdown.Set()
	assert.ErrorIs(t, buffer.Put(Frame{Seq: 1}), ErrClosed)
}

func TestBuffer_ShutdownUnblocksPut(t *testing.T) {
	shutdown := NewSignal()
	buffer := NewBuffer(1, shutdown)

	require.NoError(t, buffer.Put(Frame{Seq: 1}))

	unblocked := make(chan error, 1)
	go func() {
		unblocked <- buffer.Put(Frame{Seq: 2})
	}()

	time.Sleep(20 * time.Millisecond)
	shutdown.Set()

	select {
	case err := <-unblocked:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("put did not unblock on shutdown")
	}
}

func TestBuffer_DrainsAfterShutdown(t *testing.T) {
	shutdown := NewSignal()
	buffer := NewBuffer(3, shutdown)

	require.NoError(t, buffer.Put(Frame{Seq: 1}))
	require.NoError(t, buffer.Put(Frame{Seq: 2}))

	shutdown.Set()

	// Frames enqueued before the signal are still delivered, in order.
	frame, err := buffer.Get(time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), frame.Seq)

	frame, err = buffer.Get(time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), frame.Seq)

	_, err = buffer.Get(time.Second)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSignal_SetOnce(t *testing.T) {
	signal := NewSignal()
	assert.False(t, signal.IsSet())

	signal.Set()
	signal.Set() // idempotent
	assert.True(t, signal.IsSet())

	select {
	case <-signal.Done():
	default:
		t.Fatal("done channel not closed after set")
	}
}
