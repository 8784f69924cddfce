package pageledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/pageledger/pageledger/btree"
)

// Bucket names. Each is a root bucket with one nested bucket per page.
const (
	bucketObjects  = "objects"
	bucketCommits  = "commits"
	bucketHeads    = "heads"
	bucketUnsynced = "unsynced"
)

// Store is the commit graph store for a single page: the persistent set of
// commits indexed by id, the mutable set of current heads, and the per-
// commit sync status. All multi-record mutations (journal commits, sync
// insertions) happen inside one storage transaction, so a reader never
// observes a half-applied commit or a head pointing at a missing record.
type Store struct {
	db     *DB
	page   PageID
	logger *slog.Logger

	objects   *ObjectStore
	emptyRoot ObjectID
	initial   Commit
}

// Page returns the commit graph store for the given page, creating its
// buckets and the initial empty commit on first use. The initial commit has
// zero parents, timestamp 0 and the empty index root, so it is identical on
// every replica.
func (db *DB) Page(id PageID) (*Store, error) {
	db.pagesMu.Lock()
	defer db.pagesMu.Unlock()
	if s := db.pages[id]; s != nil {
		return s, nil
	}

	s := &Store{
		db:     db,
		page:   id,
		logger: db.logger.With("page", id.String()),
	}
	s.objects = &ObjectStore{db: db, page: id}

	err := db.update(func(tx storageTx) error {
		sub := id.String()
		for _, name := range []string{bucketObjects, bucketCommits, bucketHeads, bucketUnsynced} {
			if _, err := tx.CreateBucket(name, sub); err != nil {
				return err
			}
		}

		root, err := btree.EmptyRoot(txObjects{tx.Bucket(bucketObjects, sub)})
		if err != nil {
			return err
		}
		s.emptyRoot = root

		c, data, err := newCommit(0, nil, root)
		if err != nil {
			return err
		}
		s.initial = c

		commits := tx.Bucket(bucketCommits, sub)
		if commits.Get(c.ID.Bytes()) != nil {
			return nil // page already initialized
		}
		if err := commits.Put(c.ID.Bytes(), data); err != nil {
			return err
		}
		return tx.Bucket(bucketHeads, sub).Put(c.ID.Bytes(), tsKey(0))
	})
	if err != nil {
		return nil, pageErrf(id, "open", err)
	}

	db.pages[id] = s
	s.logger.Debug("page opened", "initial", IDString(s.initial.ID))
	return s, nil
}

func (s *Store) PageID() PageID { return s.page }

// Objects returns the page's content-addressable blob store.
func (s *Store) Objects() *ObjectStore { return s.objects }

// InitialCommit returns the page's deterministic initial empty commit.
func (s *Store) InitialCommit() Commit { return s.initial }

func tsKey(ts uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], ts)
	return b[:]
}

func (s *Store) GetCommit(id CommitID) (Commit, error) {
	var c Commit
	err := s.db.view(func(tx storageTx) error {
		var err error
		c, err = s.getCommit(tx, id)
		return err
	})
	return c, err
}

func (s *Store) getCommit(tx storageTx, id CommitID) (Commit, error) {
	b := tx.Bucket(bucketCommits, s.page.String())
	if b == nil {
		return Commit{}, ErrBucketNotFound
	}
	data := b.Get(id.Bytes())
	if data == nil {
		return Commit{}, fmt.Errorf("commit %s: %w", IDString(id), ErrNotFound)
	}
	return decodeCommit(slices.Clone(data))
}

// AddCommitFromLocal inserts a commit produced locally: it is marked
// unsynced and the head set is updated (parents leave, the commit joins).
// Inserting an id that is already present fails with ErrAlreadyExists and
// changes nothing.
func (s *Store) AddCommitFromLocal(c Commit) error {
	data, err := encodeCommit(c)
	if err != nil {
		return err
	}
	if computeCommitID(data) != c.ID {
		return fmt.Errorf("commit id does not match contents: %w", ErrInvalidArgument)
	}
	err = s.db.update(func(tx storageTx) error {
		inserted, err := s.insertCommit(tx, c, data, true)
		if err != nil {
			return err
		}
		if !inserted {
			return fmt.Errorf("commit %s: %w", IDString(c.ID), ErrAlreadyExists)
		}
		return nil
	})
	if err != nil {
		return pageErrf(s.page, "add local commit", err)
	}
	return nil
}

// AddCommitFromSync inserts a commit received from the sync provider. It is
// already synced by definition, so it is never marked unsynced. Inserting
// the same id twice is a no-op that leaves the heads untouched.
func (s *Store) AddCommitFromSync(id CommitID, data []byte) error {
	c, err := decodeCommit(slices.Clone(data))
	if err != nil {
		return pageErrf(s.page, "add synced commit", fmt.Errorf("%w: %w", ErrInvalidArgument, err))
	}
	if c.ID != id {
		return pageErrf(s.page, "add synced commit",
			fmt.Errorf("id %s does not match contents %s: %w", IDString(id), IDString(c.ID), ErrInvalidArgument))
	}
	err = s.db.update(func(tx storageTx) error {
		_, err := s.insertCommit(tx, c, data, false)
		return err
	})
	if err != nil {
		return pageErrf(s.page, "add synced commit", err)
	}
	return nil
}

// insertCommit applies the head-update rule inside tx: the commit's parents
// leave the head set, the commit joins it. A duplicate id is reported as
// (false, nil) with no state change. Parents must already be present.
func (s *Store) insertCommit(tx storageTx, c Commit, data []byte, local bool) (inserted bool, err error) {
	sub := s.page.String()
	commits := tx.Bucket(bucketCommits, sub)
	if commits == nil {
		return false, ErrBucketNotFound
	}
	if commits.Get(c.ID.Bytes()) != nil {
		return false, nil
	}
	for _, p := range c.Parents {
		if commits.Get(p.Bytes()) == nil {
			return false, fmt.Errorf("parent commit %s: %w", IDString(p), ErrNotFound)
		}
	}
	if err := commits.Put(c.ID.Bytes(), data); err != nil {
		return false, err
	}

	heads := tx.Bucket(bucketHeads, sub)
	for _, p := range c.Parents {
		if err := heads.Delete(p.Bytes()); err != nil {
			return false, err
		}
	}
	if err := heads.Put(c.ID.Bytes(), tsKey(c.Timestamp)); err != nil {
		return false, err
	}

	if local {
		if err := tx.Bucket(bucketUnsynced, sub).Put(c.ID.Bytes(), tsKey(c.Timestamp)); err != nil {
			return false, err
		}
	}
	return true, nil
}

// GetHeadCommitIDs returns the current heads ordered by timestamp, then id.
// The result is never empty for an initialized page.
func (s *Store) GetHeadCommitIDs() ([]CommitID, error) {
	type head struct {
		id CommitID
		ts uint64
	}
	var heads []head
	err := s.db.view(func(tx storageTx) error {
		b := tx.Bucket(bucketHeads, s.page.String())
		if b == nil {
			return ErrBucketNotFound
		}
		cur := b.Cursor()
		for k, v := cur.First(); k != nil; k, v = cur.Next() {
			id, err := IDFromBytes(slices.Clone(k))
			if err != nil {
				return err
			}
			heads = append(heads, head{id: id, ts: binary.BigEndian.Uint64(v)})
		}
		return nil
	})
	if err != nil {
		return nil, pageErrf(s.page, "get heads", err)
	}
	sort.Slice(heads, func(i, j int) bool {
		if heads[i].ts != heads[j].ts {
			return heads[i].ts < heads[j].ts
		}
		return compareIDs(heads[i].id, heads[j].id) < 0
	})
	ids := make([]CommitID, len(heads))
	for i, h := range heads {
		ids[i] = h.id
	}
	return ids, nil
}

// GetUnsyncedCommits returns all local commits not yet acknowledged by the
// sync provider, ordered by timestamp, then id.
func (s *Store) GetUnsyncedCommits() ([]Commit, error) {
	var out []Commit
	err := s.db.view(func(tx storageTx) error {
		b := tx.Bucket(bucketUnsynced, s.page.String())
		if b == nil {
			return ErrBucketNotFound
		}
		cur := b.Cursor()
		for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
			id, err := IDFromBytes(slices.Clone(k))
			if err != nil {
				return err
			}
			c, err := s.getCommit(tx, id)
			if err != nil {
				return err
			}
			out = append(out, c)
		}
		return nil
	})
	if err != nil {
		return nil, pageErrf(s.page, "get unsynced", err)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return compareIDs(out[i].ID, out[j].ID) < 0
	})
	return out, nil
}

// MarkCommitSynced records that the sync provider acknowledged the commit.
// The transition is one-way and idempotent.
func (s *Store) MarkCommitSynced(id CommitID) error {
	err := s.db.update(func(tx storageTx) error {
		if _, err := s.getCommit(tx, id); err != nil {
			return err
		}
		return tx.Bucket(bucketUnsynced, s.page.String()).Delete(id.Bytes())
	})
	if err != nil {
		return pageErrf(s.page, "mark synced", err)
	}
	return nil
}

// StartCommit opens a journal with a single parent. Implicit journals are
// driven by Apply and commit their whole mutation sequence as one unit;
// explicit journals require a Commit call.
func (s *Store) StartCommit(parent CommitID, mode JournalMode) (*Journal, error) {
	c, err := s.GetCommit(parent)
	if err != nil {
		return nil, err
	}
	return newJournal(s, mode, []Commit{c}, c.Root), nil
}

// StartMergeCommit opens a journal with two parents. The journal's base
// contents are the left commit's snapshot; merge strategies choose the base
// by argument order. Parent ids are normalized (sorted) when the journal
// commits, so argument order never changes the resulting commit.
func (s *Store) StartMergeCommit(left, right CommitID) (*Journal, error) {
	lc, err := s.GetCommit(left)
	if err != nil {
		return nil, err
	}
	rc, err := s.GetCommit(right)
	if err != nil {
		return nil, err
	}
	return newJournal(s, JournalExplicit, []Commit{lc, rc}, lc.Root), nil
}

// Apply runs fn against an implicit journal on the given parent and commits
// the whole mutation sequence as one unit. If fn fails, the journal is
// rolled back and nothing becomes visible.
func (s *Store) Apply(ctx context.Context, parent CommitID, fn func(*Journal) error) (Commit, error) {
	j, err := s.StartCommit(parent, JournalImplicit)
	if err != nil {
		return Commit{}, err
	}
	if err := fn(j); err != nil {
		j.Rollback()
		return Commit{}, err
	}
	return j.commit(ctx)
}

// GetCommitContentsDiff yields, in ascending key order, one EntryChange per
// key whose entry differs between the snapshots of from and to. fn returning
// false stops the walk immediately and the call reports ErrCancelled. The
// walk also stops when ctx is cancelled.
func (s *Store) GetCommitContentsDiff(ctx context.Context, from, to CommitID, fn func(EntryChange) bool) error {
	err := s.db.view(func(tx storageTx) error {
		fromC, err := s.getCommit(tx, from)
		if err != nil {
			return err
		}
		toC, err := s.getCommit(tx, to)
		if err != nil {
			return err
		}
		objs := txObjects{tx.Bucket(bucketObjects, s.page.String())}
		stopped, err := btree.Diff(objs, fromC.Root, toC.Root, func(ch btree.Change) bool {
			if ctx.Err() != nil {
				return false
			}
			return fn(ch)
		})
		if err != nil {
			return err
		}
		if stopped {
			return ErrCancelled
		}
		return nil
	})
	if err != nil {
		return pageErrf(s.page, "diff", err)
	}
	return nil
}

// GetSnapshot returns a read-only view of the commit's key index.
func (s *Store) GetSnapshot(id CommitID) (*Snapshot, error) {
	c, err := s.GetCommit(id)
	if err != nil {
		return nil, err
	}
	return &Snapshot{store: s, commit: c}, nil
}

// FindCommonAncestor walks parent pointers of both commits, highest
// timestamp first, and returns the first commit reachable from both. It
// fails with ErrNotFound only if the two commits are not part of a single
// connected graph, which for commits of one page is an invariant violation.
func (s *Store) FindCommonAncestor(a, b CommitID) (Commit, error) {
	const fromA, fromB = 1, 2

	var result Commit
	err := s.db.view(func(tx storageTx) error {
		ca, err := s.getCommit(tx, a)
		if err != nil {
			return err
		}
		cb, err := s.getCommit(tx, b)
		if err != nil {
			return err
		}
		if ca.ID == cb.ID {
			result = ca
			return nil
		}

		origin := map[CommitID]uint8{ca.ID: fromA, cb.ID: fromB}
		frontier := []Commit{ca, cb}
		for len(frontier) > 0 {
			best := 0
			for i := 1; i < len(frontier); i++ {
				c, b := frontier[i], frontier[best]
				if c.Timestamp > b.Timestamp ||
					(c.Timestamp == b.Timestamp && compareIDs(c.ID, b.ID) > 0) {
					best = i
				}
			}
			cur := frontier[best]
			frontier = slices.Delete(frontier, best, best+1)

			if origin[cur.ID] == fromA|fromB {
				result = cur
				return nil
			}
			for _, p := range cur.Parents {
				prev := origin[p]
				bits := prev | origin[cur.ID]
				if bits == prev {
					continue
				}
				origin[p] = bits
				pc, err := s.getCommit(tx, p)
				if err != nil {
					return err
				}
				frontier = append(frontier, pc)
			}
		}
		return fmt.Errorf("no common ancestor of %s and %s: %w", IDString(a), IDString(b), ErrNotFound)
	})
	if err != nil {
		return Commit{}, pageErrf(s.page, "find common ancestor", err)
	}
	return result, nil
}
