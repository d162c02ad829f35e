// Package idgen supplies entity identifiers.
package idgen

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator returns a fresh identifier on every call. Implementations must
// be safe for concurrent use.
type Generator interface {
	NewID() uuid.UUID
}

type uuidGenerator struct{}

// UUID returns a Generator producing random (version 4) UUIDs.
func UUID() Generator { return uuidGenerator{} }

func (uuidGenerator) NewID() uuid.UUID { return uuid.New() }

// Sequence is a deterministic Generator for tests. The n-th id has n encoded
// big-endian in its last eight bytes: 00000000-0000-0000-0000-000000000001, ...
type Sequence struct {
	n atomic.Uint64
}

func (s *Sequence) NewID() uuid.UUID {
	var id uuid.UUID
	binary.BigEndian.PutUint64(id[8:], s.n.Add(1))
	return id
}
