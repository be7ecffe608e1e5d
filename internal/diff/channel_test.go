package diff

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelFIFO(t *testing.T) {
	tx, rx := NewChannel[int]()
	for i := 0; i < 5; i++ {
		require.NoError(t, tx.Send(Event[int]{Key: i, Added: i%2 == 0}))
	}
	assert.Equal(t, 5, rx.Len())

	for i := 0; i < 5; i++ {
		ev, status := rx.TryRecv()
		require.Equal(t, Received, status)
		assert.Equal(t, i, ev.Key)
		assert.Equal(t, i%2 == 0, ev.Added)
	}
	_, status := rx.TryRecv()
	assert.Equal(t, Empty, status)
}

func TestDrainEmptyChannelReturnsImmediately(t *testing.T) {
	_, rx := NewChannel[string]()
	calls := 0

	open := Drain(rx, func(Event[string]) { calls++ })

	assert.True(t, open)
	assert.Zero(t, calls)
}

func TestDrainReportsDisconnectAfterPending(t *testing.T) {
	tx, rx := NewChannel[string]()
	require.NoError(t, tx.Send(Event[string]{Key: "a", Added: true}))
	tx.Close()

	var got []string
	open := Drain(rx, func(ev Event[string]) { got = append(got, ev.Key) })

	assert.False(t, open)
	assert.Equal(t, []string{"a"}, got)

	_, status := rx.TryRecv()
	assert.Equal(t, Disconnected, status)
}

func TestDrainNilReceiver(t *testing.T) {
	var rx *Receiver[string]
	assert.False(t, Drain(rx, func(Event[string]) { t.Fatal("apply called") }))
}

func TestSendAfterReceiverClosed(t *testing.T) {
	tx, rx := NewChannel[string]()
	require.NoError(t, tx.Send(Event[string]{Key: "a"}))

	rx.Close()

	assert.ErrorIs(t, tx.Send(Event[string]{Key: "b"}), ErrChannelClosed)
	assert.Equal(t, 0, rx.Len())
}

func TestConcurrentSendAndDrain(t *testing.T) {
	tx, rx := NewChannel[int]()
	const n = 1000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			_ = tx.Send(Event[int]{Key: i, Added: true})
		}
		tx.Close()
	}()

	var got []int
	for Drain(rx, func(ev Event[int]) { got = append(got, ev.Key) }) {
	}
	wg.Wait()

	require.Len(t, got, n)
	for i, k := range got {
		assert.Equal(t, i, k)
	}
}

func TestRecvStatusString(t *testing.T) {
	assert.Equal(t, "received", Received.String())
	assert.Equal(t, "empty", Empty.String())
	assert.Equal(t, "disconnected", Disconnected.String())
}
