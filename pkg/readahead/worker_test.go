package readahead

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storememory "github.com/dlogio/dlog/pkg/segmentstore/memory"
)

func TestWorkerPrefetchesAppendedEntries(t *testing.T) {
	store := storememory.New()
	ctx := context.Background()
	handle, err := store.Create(ctx, "1")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := handle.Append(ctx, []byte{byte(i)})
		require.NoError(t, err)
	}

	w := New(handle, 0, Config{PollInterval: 5 * time.Millisecond}, nil)
	w.Start(ctx)
	defer w.Stop()

	deadline := time.After(time.Second)
	for {
		if data, ok := w.Get(4); ok {
			assert.Equal(t, []byte{4}, data)
			break
		}
		select {
		case <-deadline:
			t.Fatal("read-ahead worker never cached the last entry")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestWorkerGrowsBatchOnSuccessiveFullFills(t *testing.T) {
	store := storememory.New()
	ctx := context.Background()
	handle, err := store.Create(ctx, "1")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := handle.Append(ctx, []byte{byte(i)})
		require.NoError(t, err)
	}

	w := New(handle, 0, Config{InitialBatch: 2, MaxBatch: 4, PollInterval: time.Hour}, nil)
	w.poll(ctx)
	assert.Equal(t, int64(4), w.batch)
	w.poll(ctx)
	assert.Equal(t, int64(4), w.batch)
}

func TestWaitForEntryUnblocksOnArrival(t *testing.T) {
	store := storememory.New()
	ctx := context.Background()
	handle, err := store.Create(ctx, "1")
	require.NoError(t, err)

	w := New(handle, 0, Config{PollInterval: 5 * time.Millisecond}, nil)
	w.Start(ctx)
	defer w.Stop()

	resultCh := make(chan []byte, 1)
	go func() {
		data, ok := w.WaitForEntry(context.Background(), 0)
		if ok {
			resultCh <- data
		}
	}()

	time.Sleep(10 * time.Millisecond)
	_, err = handle.Append(ctx, []byte("hello"))
	require.NoError(t, err)

	select {
	case data := <-resultCh:
		assert.Equal(t, []byte("hello"), data)
	case <-time.After(time.Second):
		t.Fatal("WaitForEntry never unblocked")
	}
}

func TestWaitForEntryRespectsCancellation(t *testing.T) {
	store := storememory.New()
	ctx := context.Background()
	handle, err := store.Create(ctx, "1")
	require.NoError(t, err)

	w := New(handle, 0, Config{PollInterval: time.Hour}, nil)

	cctx, cancel := context.WithCancel(ctx)
	doneCh := make(chan bool, 1)
	go func() {
		_, ok := w.WaitForEntry(cctx, 0)
		doneCh <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case ok := <-doneCh:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("WaitForEntry never returned after cancellation")
	}
}
