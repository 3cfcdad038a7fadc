package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/chorus/internal/store"
)

type entry struct {
	value     string
	expiresAt time.Time // zero = no expiry
	timer     *time.Timer
}

// MemStore is the in-process fallback backend. All state lives in two
// mutex-guarded maps; entry expiry is enforced by deferred timers plus a
// read-time check (a timer that has not fired yet must not resurrect an
// already-expired entry).
type MemStore struct {
	mu   sync.Mutex
	kv   map[string]*entry
	sets map[string]map[string]float64
	// set-level TTL timers, keyed like kv
	setTimers map[string]*time.Timer
}

func New() *MemStore {
	return &MemStore{
		kv:        make(map[string]*entry),
		sets:      make(map[string]map[string]float64),
		setTimers: make(map[string]*time.Timer),
	}
}

func (m *MemStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.kv[key]; ok && old.timer != nil {
		old.timer.Stop()
	}

	e := &entry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
		e.timer = time.AfterFunc(ttl, func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if cur, ok := m.kv[key]; ok && cur == e {
				delete(m.kv, key)
			}
		})
	}
	m.kv[key] = e
	return nil
}

func (m *MemStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.kv[key]
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.IsZero() && !time.Now().Before(e.expiresAt) {
		// Timer has not fired yet; treat as gone.
		delete(m.kv, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *MemStore) ZAdd(ctx context.Context, key, member string, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]float64)
		m.sets[key] = set
	}
	set[member] = score
	return nil
}

func (m *MemStore) ZRangeWithScores(ctx context.Context, key string) ([]store.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.sets[key]
	if !ok {
		return nil, nil
	}
	members := make([]store.Member, 0, len(set))
	for name, score := range set {
		members = append(members, store.Member{Member: name, Score: score})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Score < members[j].Score })
	return members, nil
}

func (m *MemStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.kv[key]; ok {
		if e.timer != nil {
			e.timer.Stop()
		}
		e.expiresAt = time.Now().Add(ttl)
		e.timer = time.AfterFunc(ttl, func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if cur, ok := m.kv[key]; ok && cur == e {
				delete(m.kv, key)
			}
		})
		return nil
	}
	if _, ok := m.sets[key]; ok {
		if t, ok := m.setTimers[key]; ok {
			t.Stop()
		}
		m.setTimers[key] = time.AfterFunc(ttl, func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.sets, key)
			delete(m.setTimers, key)
		})
	}
	return nil
}

func (m *MemStore) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		m.deleteLocked(key)
	}
	return nil
}

func (m *MemStore) DeleteByPrefix(ctx context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.kv {
		if strings.HasPrefix(key, prefix) {
			m.deleteLocked(key)
		}
	}
	for key := range m.sets {
		if strings.HasPrefix(key, prefix) {
			m.deleteLocked(key)
		}
	}
	return nil
}

func (m *MemStore) deleteLocked(key string) {
	if e, ok := m.kv[key]; ok {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(m.kv, key)
	}
	if _, ok := m.sets[key]; ok {
		if t, ok := m.setTimers[key]; ok {
			t.Stop()
			delete(m.setTimers, key)
		}
		delete(m.sets, key)
	}
}

func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.kv {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	for _, t := range m.setTimers {
		t.Stop()
	}
	m.kv = make(map[string]*entry)
	m.sets = make(map[string]map[string]float64)
	m.setTimers = make(map[string]*time.Timer)
	return nil
}
