package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"slices"

	"github.com/rhuss/authgate/pkg/auth"
)

// RawKeyEntry is the configuration format for API keys.
type RawKeyEntry struct {
	Key      string
	Identity auth.Identity
}

type keyEntry struct {
	hash     [32]byte
	identity auth.Identity
}

// MemoryStore is a static KeyStore. Keys are hashed on construction;
// plaintext keys are not retained.
type MemoryStore struct {
	entries []keyEntry
}

var _ KeyStore = (*MemoryStore)(nil)

// NewMemoryStore creates a store holding entries.
func NewMemoryStore(entries []RawKeyEntry) *MemoryStore {
	s := &MemoryStore{entries: make([]keyEntry, 0, len(entries))}
	for _, e := range entries {
		s.entries = append(s.entries, keyEntry{
			hash:     sha256.Sum256([]byte(e.Key)),
			identity: e.Identity,
		})
	}
	return s
}

// Lookup compares the key hash against every entry in constant time.
func (s *MemoryStore) Lookup(_ context.Context, key string) (*auth.Identity, error) {
	h := sha256.Sum256([]byte(key))

	match := -1
	for i := range s.entries {
		if subtle.ConstantTimeCompare(h[:], s.entries[i].hash[:]) == 1 {
			match = i
		}
	}
	if match < 0 {
		return nil, ErrKeyNotFound
	}

	id := s.entries[match].identity
	id.Scopes = slices.Clone(id.Scopes)
	if id.Metadata != nil {
		md := make(map[string]string, len(id.Metadata))
		for k, v := range id.Metadata {
			md[k] = v
		}
		id.Metadata = md
	}
	return &id, nil
}

// Len returns the number of keys held.
func (s *MemoryStore) Len() int { return len(s.entries) }
