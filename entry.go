package pageledger

import "github.com/pageledger/pageledger/btree"

// Priority hints the sync layer how urgently an entry's value must be
// uploaded: eager values must be fully synced before the commit referencing
// them counts as synced. It carries no semantics for local storage or merge.
type Priority = btree.Priority

const (
	PriorityEager = btree.PriorityEager
	PriorityLazy  = btree.PriorityLazy
)

// Entry is one key's record in a snapshot index: the key, the object store
// address of its value, and its sync priority.
type Entry = btree.Entry

// EntryChange is a single key's put/delete delta between two snapshots.
type EntryChange = btree.Change
