package memory

import (
	"context"
	"sync"

	"github.com/scriptgate/scriptgate/service/messaging"
)

// List is an in-memory messaging.OrderedList: one ordered slice per key.
// Individual operations are atomic under a single mutex, matching the
// guarantee the durable substrate is assumed to provide per push/remove.
type List[T any] struct {
	mu    sync.Mutex
	lists map[string][]*T
}

// NewList creates an empty per-key ordered list.
func NewList[T any]() *List[T] {
	return &List[T]{lists: make(map[string][]*T)}
}

// Push appends t to key's list, or inserts at the front when head is true.
func (l *List[T]) Push(_ context.Context, key string, t *T, head bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if head {
		l.lists[key] = append([]*T{t}, l.lists[key]...)
	} else {
		l.lists[key] = append(l.lists[key], t)
	}
	return nil
}

// Pop removes and returns the first element, or nil when the list is empty.
func (l *List[T]) Pop(_ context.Context, key string) (*T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := l.lists[key]
	if len(items) == 0 {
		return nil, nil
	}
	head := items[0]
	l.lists[key] = items[1:]
	return head, nil
}

// Remove deletes the first element matching the predicate.
func (l *List[T]) Remove(_ context.Context, key string, match func(*T) bool) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := l.lists[key]
	for i, item := range items {
		if match(item) {
			l.lists[key] = append(items[:i:i], items[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// Items returns a snapshot of key's list in order.
func (l *List[T]) Items(_ context.Context, key string) ([]*T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*T, len(l.lists[key]))
	copy(out, l.lists[key])
	return out, nil
}

// ensure List implements messaging.OrderedList
var _ messaging.OrderedList[any] = (*List[any])(nil)
