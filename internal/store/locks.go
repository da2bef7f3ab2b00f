package store

import (
	"context"
	"sync"
)

// DocLocks serializes work per document ID within one process. The zero
// value is ready to use.
type DocLocks struct {
	mu    sync.Mutex
	locks map[string]*docLock
}

type docLock struct {
	held chan struct{}
	refs int
}

func NewDocLocks() *DocLocks {
	return &DocLocks{locks: make(map[string]*docLock)}
}

// Lock blocks until documentID is free or ctx ends. The returned func
// releases the lock and is safe to call more than once.
func (l *DocLocks) Lock(ctx context.Context, documentID string) (func(), error) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*docLock)
	}
	dl, ok := l.locks[documentID]
	if !ok {
		dl = &docLock{held: make(chan struct{}, 1)}
		l.locks[documentID] = dl
	}
	dl.refs++
	l.mu.Unlock()

	select {
	case dl.held <- struct{}{}:
	case <-ctx.Done():
		l.release(documentID, dl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-dl.held
			l.release(documentID, dl)
		})
	}, nil
}

// release drops a reference; the entry goes away with its last user.
func (l *DocLocks) release(documentID string, dl *docLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	dl.refs--
	if dl.refs <= 0 {
		delete(l.locks, documentID)
	}
}

func (l *DocLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
