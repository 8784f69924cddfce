package pageledger

import (
	"fmt"

	"github.com/pageledger/pageledger/btree"
)

// Snapshot is a read-only view of one commit's key index. The wire-facing
// page API serves reads from snapshots; they never observe pending journal
// state.
type Snapshot struct {
	store  *Store
	commit Commit
}

func (sn *Snapshot) Commit() Commit { return sn.commit }

// Get returns the entry stored under key, or ErrNotFound.
func (sn *Snapshot) Get(key []byte) (Entry, error) {
	var entry *btree.Entry
	err := sn.store.db.view(func(tx storageTx) error {
		objs := txObjects{tx.Bucket(bucketObjects, sn.store.page.String())}
		var err error
		entry, err = btree.Get(objs, sn.commit.Root, key)
		return err
	})
	if err != nil {
		return Entry{}, pageErrf(sn.store.page, "snapshot get", err)
	}
	if entry == nil {
		return Entry{}, fmt.Errorf("key %q: %w", key, ErrNotFound)
	}
	return *entry, nil
}

// ForEach walks the snapshot's entries in ascending key order. fn returning
// false stops the walk.
func (sn *Snapshot) ForEach(fn func(Entry) bool) error {
	err := sn.store.db.view(func(tx storageTx) error {
		objs := txObjects{tx.Bucket(bucketObjects, sn.store.page.String())}
		_, err := btree.ForEach(objs, sn.commit.Root, fn)
		return err
	})
	if err != nil {
		return pageErrf(sn.store.page, "snapshot walk", err)
	}
	return nil
}

// Len returns the number of entries in the snapshot.
func (sn *Snapshot) Len() (int, error) {
	n := 0
	err := sn.ForEach(func(Entry) bool {
		n++
		return true
	})
	return n, err
}
