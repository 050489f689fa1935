package kv

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

var errNotInteger = errors.New("kv: value is not an integer")

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu      sync.Mutex
	strings map[string]string
	zsets   map[string]map[string]float64 // key -> member -> score
	expires map[string]time.Time
	now     func() time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock creates an in-memory store that evaluates TTLs against now.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		strings: make(map[string]string),
		zsets:   make(map[string]map[string]float64),
		expires: make(map[string]time.Time),
		now:     now,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evict(key)

	val, ok := m.strings[key]
	if !ok {
		return "", ErrNil
	}

	return val, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.remove(key)
	m.strings[key] = value

	if ttl > 0 {
		m.expires[key] = m.now().Add(ttl)
	}

	return nil
}

func (m *MemoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		m.remove(key)
	}

	return nil
}

func (m *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evict(key)

	var current int64

	if val, ok := m.strings[key]; ok {
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, errNotInteger
		}

		current = n
	}

	current++
	// INCR keeps an existing TTL.
	m.strings[key] = strconv.FormatInt(current, 10)

	return current, nil
}

func (m *MemoryStore) ZAdd(_ context.Context, key string, score float64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evict(key)

	set, ok := m.zsets[key]
	if !ok {
		delete(m.strings, key)

		set = make(map[string]float64)
		m.zsets[key] = set
	}

	set[member] = score

	return nil
}

func (m *MemoryStore) ZRemRangeByScore(_ context.Context, key, minBound, maxBound string) error {
	lo, loExcl, err := parseBound(minBound)
	if err != nil {
		return err
	}

	hi, hiExcl, err := parseBound(maxBound)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.evict(key)

	set, ok := m.zsets[key]
	if !ok {
		return nil
	}

	for member, score := range set {
		aboveLo := score > lo || (!loExcl && score == lo)
		belowHi := score < hi || (!hiExcl && score == hi)

		if aboveLo && belowHi {
			delete(set, member)
		}
	}

	if len(set) == 0 {
		m.remove(key)
	}

	return nil
}

func (m *MemoryStore) ZCard(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evict(key)

	return int64(len(m.zsets[key])), nil
}

func (m *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evict(key)

	if !m.exists(key) {
		return nil
	}

	if ttl <= 0 {
		m.remove(key)

		return nil
	}

	m.expires[key] = m.now().Add(ttl)

	return nil
}

func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// TTL returns the remaining time to live of key, or -1 when the key has no
// expiry and -2 when it does not exist, mirroring redis.
func (m *MemoryStore) TTL(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evict(key)

	if !m.exists(key) {
		return -2
	}

	deadline, ok := m.expires[key]
	if !ok {
		return -1
	}

	return deadline.Sub(m.now())
}

func (m *MemoryStore) exists(key string) bool {
	if _, ok := m.strings[key]; ok {
		return true
	}

	_, ok := m.zsets[key]

	return ok
}

func (m *MemoryStore) evict(key string) {
	deadline, ok := m.expires[key]
	if ok && !m.now().Before(deadline) {
		m.remove(key)
	}
}

func (m *MemoryStore) remove(key string) {
	delete(m.strings, key)
	delete(m.zsets, key)
	delete(m.expires, key)
}

func parseBound(bound string) (float64, bool, error) {
	switch bound {
	case "-inf":
		return math.Inf(-1), false, nil
	case "+inf", "inf":
		return math.Inf(1), false, nil
	}

	exclusive := strings.HasPrefix(bound, "(")

	v, err := strconv.ParseFloat(strings.TrimPrefix(bound, "("), 64)
	if err != nil {
		return 0, false, fmt.Errorf("kv: invalid score bound %q: %w", bound, err)
	}

	return v, exclusive, nil
}

// Compile-time check.
var _ Store = (*MemoryStore)(nil)
