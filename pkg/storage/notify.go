package storage

// listeners is a small subscription list used for change notifications.
type listeners[T any] struct {
	next    int
	entries []listener[T]
}

type listener[T any] struct {
	id int
	fn func(T)
}

func (l *listeners[T]) add(fn func(T)) func() {
	if fn == nil {
		return func() {}
	}
	l.next++
	id := l.next
	l.entries = append(l.entries, listener[T]{id: id, fn: fn})
	return func() {
		for i, e := range l.entries {
			if e.id == id {
				l.entries = append(l.entries[:i], l.entries[i+1:]...)
				return
			}
		}
	}
}

func (l *listeners[T]) emit(v T) {
	if len(l.entries) == 0 {
		return
	}
	// copy so handlers may unsubscribe while being notified
	entries := append([]listener[T](nil), l.entries...)
	for _, e := range entries {
		e.fn(v)
	}
}
