package lifecycle

import "sync"

// keyedMutex serializes work per project id in arrival order. A turn is
// reserved when work is submitted, not when it starts, so operations sent
// back to back for one project run in the order they were sent.
type keyedMutex struct {
	mu     sync.Mutex
	queues map[string][]*turn
}

// turn is one reserved slot in a key's queue. ready is closed once every
// earlier turn for the key has been released.
type turn struct {
	k        *keyedMutex
	key      string
	ready    chan struct{}
	released sync.Once
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{queues: make(map[string][]*turn)}
}

// Reserve appends a turn for key without blocking.
func (k *keyedMutex) Reserve(key string) *turn {
	t := &turn{k: k, key: key, ready: make(chan struct{})}

	k.mu.Lock()
	defer k.mu.Unlock()
	q := k.queues[key]
	if len(q) == 0 {
		close(t.ready)
	}
	k.queues[key] = append(q, t)
	return t
}

// Lock reserves a turn for key, waits for it and returns its release.
func (k *keyedMutex) Lock(key string) (unlock func()) {
	t := k.Reserve(key)
	<-t.ready
	return t.Release
}

// Release hands key to the next turn. Releasing a turn that never became
// ready withdraws it from the queue.
func (t *turn) Release() {
	t.released.Do(func() {
		k := t.k
		k.mu.Lock()
		defer k.mu.Unlock()

		q := k.queues[t.key]
		for i, queued := range q {
			if queued != t {
				continue
			}
			q = append(q[:i:i], q[i+1:]...)
			if i == 0 && len(q) > 0 {
				close(q[0].ready)
			}
			break
		}
		if len(q) == 0 {
			delete(k.queues, t.key)
		} else {
			k.queues[t.key] = q
		}
	})
}

// Held reports whether any turn for key is held or waiting.
func (k *keyedMutex) Held(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.queues[key]) > 0
}
