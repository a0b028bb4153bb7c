package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIterator_SortIsStable(t *testing.T) {
	type item struct {
		key, order int
	}
	in := []item{{2, 0}, {1, 1}, {2, 2}, {1, 3}}

	out := From(in).Sort(func(a, b item) bool { return a.key < b.key }).Collect()
	assert.Equal(t, []item{{1, 1}, {1, 3}, {2, 0}, {2, 2}}, out)
}

func TestIterator_PullStopsEarly(t *testing.T) {
	next, stop := From([]int{1, 2, 3}).Pull()
	v, ok := next()
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	stop()

	_, ok = next()
	assert.False(t, ok)
}

func TestPriorityQueue_PopsHighestFirst(t *testing.T) {
	pq := NewPriorityQueue[string]()
	pq.Enqueue("low", 1)
	pq.Enqueue("high", 10)
	pq.Enqueue("mid", 5)

	top, ok := pq.Peek()
	assert.True(t, ok)
	assert.Equal(t, "high", top)

	var got []string
	for pq.Len() > 0 {
		v, _ := pq.Dequeue()
		got = append(got, v)
	}
	assert.Equal(t, []string{"high", "mid", "low"}, got)

	_, ok = pq.Dequeue()
	assert.False(t, ok)
}
