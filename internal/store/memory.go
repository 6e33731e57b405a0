package store

import (
	"sync"

	"github.com/google/btree"
)

const btreeDegree = 16

// Memory is the in-process backend: one btree of members per series
// key. It is the reference implementation for the Store contract and
// the default backend for tests.
type Memory struct {
	mu     sync.RWMutex
	series map[string]*btree.BTreeG[string]
	hashes map[string]map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		series: make(map[string]*btree.BTreeG[string]),
		hashes: make(map[string]map[string]string),
	}
}

func (m *Memory) tree(key string, create bool) *btree.BTreeG[string] {
	t, ok := m.series[key]
	if !ok && create {
		t = btree.NewG(btreeDegree, func(a, b string) bool { return a < b })
		m.series[key] = t
	}
	return t
}

func (m *Memory) Add(key string, member []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tree(key, true).ReplaceOrInsert(string(member))
	return nil
}

func (m *Memory) AddBatch(key string, members [][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tree(key, true)
	for _, member := range members {
		t.ReplaceOrInsert(string(member))
	}
	return nil
}

func (m *Memory) Rem(key string, members ...[]byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tree(key, false)
	if t == nil {
		return 0, nil
	}
	removed := 0
	for _, member := range members {
		if _, ok := t.Delete(string(member)); ok {
			removed++
		}
	}
	if t.Len() == 0 {
		delete(m.series, key)
	}
	return removed, nil
}

func (m *Memory) RangeByLex(key, min, max string, rev bool, offset, count int) ([][]byte, error) {
	r, err := parseRange(min, max)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	t := m.tree(key, false)
	if t == nil {
		return nil, nil
	}
	var out [][]byte
	skipped := 0
	visit := func(member string) bool {
		if !r.contains(member) {
			// Ascending iteration can stop at the first member past
			// the max bound; descending at the first below the min.
			if !rev && !r.belowMax(member) {
				return false
			}
			if rev && !r.aboveMin(member) {
				return false
			}
			return true
		}
		if skipped < offset {
			skipped++
			return true
		}
		if count == 0 {
			return false
		}
		out = append(out, []byte(member))
		return count < 0 || len(out) < count
	}
	if rev {
		t.Descend(visit)
	} else {
		t.Ascend(visit)
	}
	return out, nil
}

func (m *Memory) LexCount(key, min, max string) (int, error) {
	r, err := parseRange(min, max)
	if err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	t := m.tree(key, false)
	if t == nil {
		return 0, nil
	}
	n := 0
	t.Ascend(func(member string) bool {
		if r.contains(member) {
			n++
		} else if !r.belowMax(member) {
			return false
		}
		return true
	})
	return n, nil
}

func (m *Memory) RemRangeByLex(key, min, max string) (int, error) {
	r, err := parseRange(min, max)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tree(key, false)
	if t == nil {
		return 0, nil
	}
	var victims []string
	t.Ascend(func(member string) bool {
		if r.contains(member) {
			victims = append(victims, member)
		} else if !r.belowMax(member) {
			return false
		}
		return true
	})
	for _, member := range victims {
		t.Delete(member)
	}
	if t.Len() == 0 {
		delete(m.series, key)
	}
	return len(victims), nil
}

func (m *Memory) Card(key string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t := m.tree(key, false)
	if t == nil {
		return 0, nil
	}
	return t.Len(), nil
}

func (m *Memory) HSet(key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (m *Memory) HGetAll(key string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.hashes[key]))
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) Type() string { return "memory" }

func (m *Memory) Close() error { return nil }
