package sqlite

import "sync"

// orderLocks hands out one mutex per order id and forgets it once no caller
// holds or waits for it.
type orderLocks struct {
	mu    sync.Mutex
	locks map[int64]*orderLock
}

type orderLock struct {
	sync.Mutex
	refs int
}

func newOrderLocks() *orderLocks {
	return &orderLocks{locks: make(map[int64]*orderLock)}
}

// lock blocks until the order is free and returns the matching unlock.
func (l *orderLocks) lock(id int64) (unlock func()) {
	l.mu.Lock()
	ol, ok := l.locks[id]
	if !ok {
		ol = new(orderLock)
		l.locks[id] = ol
	}
	ol.refs++
	l.mu.Unlock()

	ol.Lock()
	return func() {
		ol.Unlock()

		l.mu.Lock()
		ol.refs--
		if ol.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
