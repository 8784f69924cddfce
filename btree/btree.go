/*
Package btree implements the content-defined search tree that backs snapshot
key indexes.

Every snapshot of a page is a sorted key→entry index stored as a tree of
content-addressed nodes in an object store. The level a key lives at is a
pure function of the key (derived from its hash), so the shape of the tree
is determined entirely by the key set: two snapshots with equal contents
always produce the same root id, on any replica. That property is what makes
object-level dedup and reproducible merges work.

Node layout: a node at level L holds, in ascending order, all keys of the
covered range whose level is exactly L, with child pointers between and
around them addressing subtrees of strictly lower-level keys. Gaps with no
keys are encoded as undefined child ids. Nodes are msgpack-encoded with a
fixed array layout, keeping the encoding canonical.

Diffing two trees is a lock-step in-order walk that skips subtrees whose ids
are equal, so the cost is proportional to the symmetric difference of the
two snapshots, not to their total size.
*/
package btree

import (
	"bytes"

	"github.com/cespare/xxhash/v2"
	"github.com/ipfs/go-cid"
)

// Store is the content-addressed object store the tree reads its nodes from
// and writes new nodes to. PutObject must be deterministic and idempotent:
// equal data yields equal ids.
type Store interface {
	GetObject(id cid.Cid) ([]byte, error)
	PutObject(data []byte) (cid.Cid, error)
}

// Priority is a sync-layer hint carried on each entry. It has no meaning for
// local storage; it participates in entry equality so that a priority change
// shows up in diffs.
type Priority uint8

const (
	PriorityEager Priority = iota
	PriorityLazy
)

// Entry is one key's record in a snapshot index.
type Entry struct {
	Key      []byte
	Value    cid.Cid
	Priority Priority
}

// Change is a single key's delta between two snapshots. For a deletion only
// Entry.Key is meaningful.
type Change struct {
	Entry   Entry
	Deleted bool
}

func (e Entry) Equal(other Entry) bool {
	return bytes.Equal(e.Key, other.Key) && e.Value == other.Value && e.Priority == other.Priority
}

const maxLevel = 15

// keyLevel derives the node level a key lives at: the number of trailing
// zero nibbles of the key's hash. Expected fanout is 16. The hash only
// shapes the tree; it never contributes to object identity.
func keyLevel(key []byte) int {
	h := xxhash.Sum64(key)
	level := 0
	for level < maxLevel && h&0xf == 0 {
		level++
		h >>= 4
	}
	return level
}
