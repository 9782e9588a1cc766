package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPostedTasksRunInOrder(t *testing.T) {
	q := New(16)
	var got []int
	for i := 0; i < 10; i++ {
		i := i
		q.Post(func() { got = append(got, i) })
	}
	q.Drain()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	q := New(16)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(done)
	}()

	ran := make(chan struct{})
	q.Post(func() { close(ran) })
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPostFromManyGoroutines(t *testing.T) {
	q := New(256)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	var mu sync.Mutex
	count := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Post(func() {
				mu.Lock()
				count++
				mu.Unlock()
			})
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 100
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDrainOnEmptyQueue(t *testing.T) {
	q := New(4)
	q.Drain() // must not block
}
