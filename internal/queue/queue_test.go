package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityQueue_SmallestFirst(t *testing.T) {
	pq := NewPriorityQueue[string]()
	pq.Enqueue("textures.pak", 900<<20)
	pq.Enqueue("config.json", 2<<10)
	pq.Enqueue("app.bin", 40<<20)

	v, ok := pq.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, "config.json", v)

	v, ok = pq.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, "app.bin", v)

	v, ok = pq.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, "textures.pak", v)

	_, ok = pq.Dequeue()
	assert.False(t, ok)
}

func TestPriorityQueue_TiesKeepInsertionOrder(t *testing.T) {
	pq := NewPriorityQueue[string]()
	for _, name := range []string{"d", "a", "c", "b"} {
		pq.Enqueue(name, 7)
	}
	pq.Enqueue("first", 1)

	assert.Equal(t, []string{"first", "d", "a", "c", "b"}, pq.Drain())
	assert.Equal(t, 0, pq.Len())
}

func TestPriorityQueue_ConcurrentEnqueue(t *testing.T) {
	pq := NewPriorityQueue[int]()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			pq.Enqueue(v, int64(v))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, pq.Len())
	all := pq.Drain()
	for i := range all {
		assert.Equal(t, i, all[i])
	}
}
