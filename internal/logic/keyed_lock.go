package logic

import "sync"

// keyedMutex 按 key 加锁，不同 key 互不阻塞
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

func (k *keyedMutex) acquire(key string) *keyedEntry {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	return e
}

func (k *keyedMutex) release(key string, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
}

// Lock 加锁并返回解锁函数
func (k *keyedMutex) Lock(key string) func() {
	e := k.acquire(key)
	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.release(key, e)
	}
}

// TryLock 尝试加锁，已被占用时返回 false
func (k *keyedMutex) TryLock(key string) (func(), bool) {
	e := k.acquire(key)
	if !e.mu.TryLock() {
		k.release(key, e)
		return nil, false
	}
	return func() {
		e.mu.Unlock()
		k.release(key, e)
	}, true
}
