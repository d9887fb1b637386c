package cache

import (
	"sort"
	"sync"
)

// MemoryCache implements GenericCache in process memory
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemory creates an empty in-memory cache
func NewMemory() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string][]byte),
	}
}

func (m *MemoryCache) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryCache) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryCache) Init() error {
	return nil
}

// MemoryStorage keeps generations in memory; nothing survives a restart
type MemoryStorage struct {
	mu          sync.Mutex
	generations map[string]*MemoryCache
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		generations: make(map[string]*MemoryCache),
	}
}

func (s *MemoryStorage) Open(name string) (GenericCache, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.generations[name]
	if !ok {
		c = NewMemory()
		s.generations[name] = c
	}
	return c, nil
}

func (s *MemoryStorage) Has(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.generations[name]
	return ok, nil
}

func (s *MemoryStorage) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.generations))
	for name := range s.generations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStorage) Delete(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.generations[name]; !ok {
		return false, nil
	}
	delete(s.generations, name)
	return true, nil
}

func (s *MemoryStorage) Close() error {
	return nil
}
