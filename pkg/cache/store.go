// Package cache persists alignment records across runs, keyed by the model
// and the variant they were computed for.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/logflow/ptalign/pkg/align"
)

// Store is a persistent alignment store. A miss is (nil, false, nil).
type Store interface {
	Get(ctx context.Context, key string) (*align.Record, bool, error)
	Put(ctx context.Context, key string, rec *align.Record) error
}

// Key derives the store key for a variant aligned against the tree with
// the given canonical string. Options that change the result (reduction)
// must be folded into tree by the caller.
func Key(tree, variant string) string {
	h := sha256.New()
	h.Write([]byte(tree))
	h.Write([]byte{0})
	h.Write([]byte(variant))
	return hex.EncodeToString(h.Sum(nil))
}

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	records sync.Map // key -> *align.Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get returns the record stored under key.
func (s *MemoryStore) Get(_ context.Context, key string) (*align.Record, bool, error) {
	v, ok := s.records.Load(key)
	if !ok {
		return nil, false, nil
	}
	return v.(*align.Record), true, nil
}

// Put stores rec under key, replacing any previous record.
func (s *MemoryStore) Put(_ context.Context, key string, rec *align.Record) error {
	s.records.Store(key, rec)
	return nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	n := 0
	s.records.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}
