package queue

import "sync"

// Queue — потокобезопасная FIFO-очередь ограниченной ёмкости с каналом
// уведомлений. Уведомления схлопываются: после NotifyCh нужно забирать
// элементы, пока Pop не вернёт false.
type Queue[T any] struct {
	cap    int
	items  []T
	mu     sync.Mutex
	notify chan struct{}
}

func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 20
	}
	return &Queue[T]{cap: capacity, items: make([]T, 0, capacity), notify: make(chan struct{}, 1)}
}

// Push добавляет элемент в конец. При заполненной очереди возвращает false.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	if len(q.items) == q.cap {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.wake()
	return true
}

// PushFront возвращает элемент в голову очереди (повтор). Ёмкость не проверяется.
func (q *Queue[T]) PushFront(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	copy(q.items[1:], q.items)
	q.items[0] = v
	q.mu.Unlock()
	q.wake()
}

func (q *Queue[T]) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop забирает первый элемент.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return v, true
}

// Drain возвращает все элементы и очищает очередь.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	out := make([]T, len(q.items))
	copy(out, q.items)
	q.items = q.items[:0]
	q.mu.Unlock()
	return out
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	l := len(q.items)
	q.mu.Unlock()
	return l
}

func (q *Queue[T]) NotifyCh() <-chan struct{} { return q.notify }
