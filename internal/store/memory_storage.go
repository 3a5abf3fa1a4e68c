package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/storage/memory/v2"
)

// MemoryStorage is a process local Storage for single instance deployments
// and development. Values are JSON encoded.
type MemoryStorage struct {
	mu      sync.Mutex
	backend *memory.Storage
}

func (s *MemoryStorage) Get(ctx context.Context, key string, val any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := s.backend.Get(key)
	if err != nil {
		return err
	}
	if raw == nil {
		return ErrNotFound
	}
	return json.Unmarshal(raw, val)
}

func (s *MemoryStorage) Set(ctx context.Context, key string, val any, expiresIn time.Duration) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}
	if expiresIn < 0 {
		expiresIn = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Set(key, raw, expiresIn)
}

// Delete removes the key and reports ErrNotFound if it was absent or expired.
// The lookup and the removal happen under one lock.
func (s *MemoryStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := s.backend.Get(key)
	if err != nil {
		return err
	}
	if raw == nil {
		return ErrNotFound
	}
	return s.backend.Delete(key)
}

// load reads key into val. The caller holds the lock.
func (s *MemoryStorage) load(key string, val any) (bool, error) {
	raw, err := s.backend.Get(key)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	return true, json.Unmarshal(raw, val)
}

func (s *MemoryStorage) SetIf(ctx context.Context, key string, val any, expiresIn time.Duration, update func(exists bool) bool) (bool, error) {
	if expiresIn < 0 {
		expiresIn = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	exists, err := s.load(key, val)
	if err != nil {
		return false, err
	}
	if !update(exists) {
		return false, nil
	}
	raw, err := json.Marshal(val)
	if err != nil {
		return false, err
	}
	return true, s.backend.Set(key, raw, expiresIn)
}

func (s *MemoryStorage) DeleteIf(ctx context.Context, key string, val any, match func() bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exists, err := s.load(key, val)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	if !match() {
		return ErrNotMatched
	}
	return s.backend.Delete(key)
}

func (s *MemoryStorage) Close() error {
	return s.backend.Close()
}

func NewMemoryStorage(gcInterval time.Duration) *MemoryStorage {
	return &MemoryStorage{
		backend: memory.New(memory.Config{GCInterval: gcInterval}),
	}
}
