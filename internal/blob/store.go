// Package blob holds generated video payloads in process memory and hands
// out dereferenceable ids for them. Handles live until explicitly released;
// discarding a chat session releases the handles its messages own.
package blob

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Blob struct {
	ID        string
	Data      []byte
	MIMEType  string
	CreatedAt time.Time
}

func (b *Blob) Size() int64 {
	return int64(len(b.Data))
}

type Store struct {
	mu    sync.RWMutex
	blobs map[string]*Blob
}

func NewStore() *Store {
	return &Store{
		blobs: make(map[string]*Blob),
	}
}

// Put registers a payload and returns its handle id.
func (s *Store) Put(data []byte, mimeType string) string {
	b := &Blob{
		ID:        uuid.New().String(),
		Data:      data,
		MIMEType:  mimeType,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.blobs[b.ID] = b
	s.mu.Unlock()

	return b.ID
}

func (s *Store) Get(id string) (*Blob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.blobs[id]
	return b, ok
}

// Release drops the payload for id. Returns false if the handle was not
// held, which includes handles already released once.
func (s *Store) Release(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[id]; !ok {
		return false
	}
	delete(s.blobs, id)
	return true
}

// ReleaseAll drops the given handles and reports how many were held.
func (s *Store) ReleaseAll(ids []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	released := 0
	for _, id := range ids {
		if _, ok := s.blobs[id]; ok {
			delete(s.blobs, id)
			released++
		}
	}
	return released
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.blobs)
}
