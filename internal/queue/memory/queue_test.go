package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/chiripo-news/internal/news"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan news.QueueItem, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- item
	}()

	item := news.QueueItem{JobID: "job-1", Kind: news.JobKindRefresh}
	require.NoError(t, q.Enqueue(context.Background(), item))
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		require.Equal(t, item, got)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return job")
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	qDequeue := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := qDequeue.Dequeue(ctx)
	require.EqualError(t, err, "dequeue canceled: context canceled")

	qEnqueue := NewQueue(1)
	require.NoError(t, qEnqueue.Enqueue(context.Background(), news.QueueItem{JobID: "primed"}))
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	require.EqualError(t, qEnqueue.Enqueue(ctx, news.QueueItem{}), "enqueue canceled: context canceled")
}

func TestQueueTryEnqueueFull(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	require.NoError(t, q.TryEnqueue(news.QueueItem{JobID: "a"}))
	require.ErrorIs(t, q.TryEnqueue(news.QueueItem{JobID: "b"}), ErrFull)
	require.ErrorIs(t, q.TryEnqueue(news.QueueItem{JobID: "b"}), news.ErrQueueFull)
	require.Equal(t, 1, q.Len())
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	q.Close()
	_, err := q.Dequeue(context.Background())
	require.EqualError(t, err, "queue closed")
	require.EqualError(t, q.TryEnqueue(news.QueueItem{JobID: "late"}), "queue closed")
	// closing twice is a no-op
	q.Close()
}
