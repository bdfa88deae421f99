package sessions

import (
	"container/list"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// lockTable hands out in-process mutexes keyed by absolute file path,
// bounded by an LRU so a long-running gateway doesn't accumulate one
// mutex per session file forever. Only the metadata sidecar update
// additionally takes an OS-level advisory lock (flock) on its file.
type lockTable struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List
	capacity int
}

type lockEntry struct {
	key string
	mu  *sync.Mutex
}

func newLockTable(capacity int) *lockTable {
	return &lockTable{
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		capacity: capacity,
	}
}

// get returns the mutex for key, creating one if absent and evicting the
// least-recently-used entry if the table is at capacity.
func (t *lockTable) get(key string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.entries[key]; ok {
		t.order.MoveToFront(el)
		return el.Value.(*lockEntry).mu
	}

	entry := &lockEntry{key: key, mu: &sync.Mutex{}}
	el := t.order.PushFront(entry)
	t.entries[key] = el

	if t.order.Len() > t.capacity {
		oldest := t.order.Back()
		if oldest != nil {
			t.order.Remove(oldest)
			delete(t.entries, oldest.Value.(*lockEntry).key)
		}
	}
	return entry.mu
}

// fileLock wraps an open file descriptor holding an exclusive flock for
// the metadata read-modify-write cycle; Unlock releases it and closes
// the descriptor.
type fileLock struct {
	f *os.File
}

func acquireFileLock(path string) (*fileLock, error) {
	f, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, err
	}
	return &fileLock{f: f}, nil
}

func (l *fileLock) Unlock() error {
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	l.f.Close()
	return err
}
