package repository

import (
	"context"
	"sync"

	"go-banking-client/internal/model"
)

// MemoryRecordStore is a process-local RecordStore. The error fields let tests
// inject storage failures.
type MemoryRecordStore struct {
	mu        sync.Mutex
	records   map[string][]byte
	getErr    error
	putErr    error
	deleteErr error
	gets      int
	puts      int
	deletes   int
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{records: map[string][]byte{}}
}

func (s *MemoryRecordStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gets++
	if s.getErr != nil {
		return nil, s.getErr
	}

	value, ok := s.records[key]
	if !ok {
		return nil, model.ErrRecordNotFound
	}
	return append([]byte(nil), value...), nil
}

func (s *MemoryRecordStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.puts++
	if s.putErr != nil {
		return s.putErr
	}

	s.records[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryRecordStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deletes++
	if s.deleteErr != nil {
		return s.deleteErr
	}

	delete(s.records, key)
	return nil
}

func (s *MemoryRecordStore) Close() error {
	return nil
}

func (s *MemoryRecordStore) FailGet(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getErr = err
}

func (s *MemoryRecordStore) FailPut(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putErr = err
}

func (s *MemoryRecordStore) FailDelete(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteErr = err
}

// Has reports whether key is present, bypassing injected errors.
func (s *MemoryRecordStore) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[key]
	return ok
}

func (s *MemoryRecordStore) Counts() (gets, puts, deletes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets, s.puts, s.deletes
}
