package chat

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 64

// stripedMutex serialises work per key without keeping a lock per row
type stripedMutex struct {
	locks [lockStripes]sync.Mutex
}

func (s *stripedMutex) lock(id uint) func() {
	m := &s.locks[id%lockStripes]
	m.Lock()
	return m.Unlock
}

func (s *stripedMutex) lockKey(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.lock(uint(h.Sum32()))
}
