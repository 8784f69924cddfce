package pageledger

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"

	"github.com/zhangyunhao116/skipmap"

	"github.com/pageledger/pageledger/btree"
)

// JournalMode selects how a journal is terminated. Explicit journals require
// a Commit call; implicit journals are driven by Store.Apply, which commits
// their single mutation sequence as one unit.
type JournalMode int

const (
	JournalExplicit JournalMode = iota
	JournalImplicit
)

const (
	journalActive int32 = iota
	journalCommitted
	journalRolledBack
)

// Journal is a mutable, single-writer staging buffer bound to one or two
// parent commits. Puts and deletes accumulate in an ordered pending map
// (last write per key wins); Commit atomically produces one new immutable
// commit and updates the head set, Rollback discards everything. Pending
// state is never visible to readers.
type Journal struct {
	store    *Store
	mode     JournalMode
	parents  []Commit
	baseRoot ObjectID
	pending  *skipmap.FuncMap[[]byte, pendingWrite]
	state    atomic.Int32
}

type pendingWrite struct {
	value    ObjectID
	priority Priority
	deleted  bool
}

func newJournal(s *Store, mode JournalMode, parents []Commit, baseRoot ObjectID) *Journal {
	return &Journal{
		store:    s,
		mode:     mode,
		parents:  parents,
		baseRoot: baseRoot,
		pending: skipmap.NewFunc[[]byte, pendingWrite](func(a, b []byte) bool {
			return bytes.Compare(a, b) < 0
		}),
	}
}

func (j *Journal) Mode() JournalMode { return j.mode }

// Parents returns the ids of the journal's parent commits, in the order the
// journal was opened with.
func (j *Journal) Parents() []CommitID {
	ids := make([]CommitID, len(j.parents))
	for i, p := range j.parents {
		ids[i] = p.ID
	}
	return ids
}

func (j *Journal) checkActive() error {
	switch j.state.Load() {
	case journalCommitted:
		return fmt.Errorf("journal already committed: %w", ErrInvalidArgument)
	case journalRolledBack:
		return fmt.Errorf("journal rolled back: %w", ErrInvalidArgument)
	}
	return nil
}

func (j *Journal) Put(key []byte, value ObjectID, priority Priority) error {
	if len(key) == 0 {
		return fmt.Errorf("empty key: %w", ErrInvalidArgument)
	}
	if !value.Defined() {
		return fmt.Errorf("undefined value id: %w", ErrInvalidArgument)
	}
	if err := j.checkActive(); err != nil {
		return err
	}
	j.pending.Store(bytes.Clone(key), pendingWrite{value: value, priority: priority})
	return nil
}

func (j *Journal) Delete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("empty key: %w", ErrInvalidArgument)
	}
	if err := j.checkActive(); err != nil {
		return err
	}
	j.pending.Store(bytes.Clone(key), pendingWrite{deleted: true})
	return nil
}

// Rollback discards all pending entries; the journal becomes unusable.
// Rolling back twice is a no-op, rolling back a committed journal panics.
func (j *Journal) Rollback() {
	if !j.state.CompareAndSwap(journalActive, journalRolledBack) {
		if j.state.Load() == journalCommitted {
			panic("journal already committed")
		}
	}
}

// Commit terminates an explicit journal. See commit.
func (j *Journal) Commit(ctx context.Context) (Commit, error) {
	if j.mode != JournalExplicit {
		return Commit{}, fmt.Errorf("implicit journal committed through Store.Apply: %w", ErrInvalidArgument)
	}
	return j.commit(ctx)
}

// commit produces the new commit and updates the heads in one storage
// transaction: the snapshot index nodes and the commit record are fully
// written before the head pointers swap. On failure nothing is visible and
// the journal stays active. An empty journal still produces a new commit
// whose root equals the base root (the explicit "no-op" commit used when a
// merge finds both sides identical).
func (j *Journal) commit(ctx context.Context) (Commit, error) {
	if err := j.checkActive(); err != nil {
		return Commit{}, err
	}
	if err := ctx.Err(); err != nil {
		return Commit{}, fmt.Errorf("journal commit: %w", ErrCancelled)
	}

	changes := make([]btree.Change, 0, j.pending.Len())
	j.pending.Range(func(key []byte, w pendingWrite) bool {
		changes = append(changes, btree.Change{
			Entry:   btree.Entry{Key: key, Value: w.value, Priority: w.priority},
			Deleted: w.deleted,
		})
		return true
	})

	var c Commit
	err := j.store.db.update(func(tx storageTx) error {
		sub := j.store.page.String()
		objs := txObjects{tx.Bucket(bucketObjects, sub)}
		root, err := btree.Apply(objs, j.baseRoot, changes)
		if err != nil {
			return err
		}

		cc, data, err := newCommit(j.timestamp(), j.commitParents(), root)
		if err != nil {
			return err
		}
		// The same commit may already exist (say, an identical no-op merge);
		// ids are content hashes, so a duplicate carries identical state.
		if _, err := j.store.insertCommit(tx, cc, data, true); err != nil {
			return err
		}
		c = cc
		return nil
	})
	if err != nil {
		return Commit{}, pageErrf(j.store.page, "commit journal", err)
	}

	j.state.Store(journalCommitted)
	j.store.logger.Debug("journal committed",
		"commit", IDString(c.ID), "parents", len(c.Parents), "changes", len(changes))
	return c, nil
}

// timestamp keeps commit timestamps monotonic-ish along every parent chain.
// Ties remain possible; merge strategies break them by id.
func (j *Journal) timestamp() uint64 {
	ts := uint64(j.store.db.now().UnixNano())
	for _, p := range j.parents {
		if p.Timestamp > ts {
			ts = p.Timestamp
		}
	}
	return ts
}

// commitParents normalizes merge parent order by id, so that merging the
// same two heads with swapped arguments yields the same commit.
func (j *Journal) commitParents() []CommitID {
	ids := j.Parents()
	if len(ids) == 2 && compareIDs(ids[0], ids[1]) > 0 {
		ids[0], ids[1] = ids[1], ids[0]
	}
	return ids
}
