package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFIFOAndCapacity(t *testing.T) {
	q := New[int](2)
	require.True(t, q.Push(1))
	require.True(t, q.Push(2))
	require.False(t, q.Push(3))
	require.Equal(t, 2, q.Len())

	v, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, 1, v)

	q.PushFront(7)
	require.Equal(t, []int{7, 2}, q.Drain())
	_, ok = q.Pop()
	require.False(t, ok)
}

func TestNotifyCoalesces(t *testing.T) {
	q := New[string](0)
	q.Push("a")
	q.Push("b")
	select {
	case <-q.NotifyCh():
	default:
		t.Fatal("no notification")
	}
	select {
	case <-q.NotifyCh():
		t.Fatal("notifications must coalesce")
	default:
	}
	require.Equal(t, 2, q.Len())
}

func TestConcurrentPushPop(t *testing.T) {
	q := New[int](1000)
	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				q.Push(i*100 + j)
			}
		}()
	}
	wg.Wait()
	seen := map[int]bool{}
	for {
		v, ok := q.Pop()
		if !ok {
			break
		}
		seen[v] = true
	}
	require.Len(t, seen, 400)
}
