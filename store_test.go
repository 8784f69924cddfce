package pageledger

import (
	"context"
	"errors"
	"testing"
)

// applyPut commits the given key/value pairs on top of parent.
func applyPut(t testing.TB, s *Store, parent CommitID, pairs ...string) Commit {
	t.Helper()
	if len(pairs)%2 != 0 {
		t.Fatal("applyPut wants key/value pairs")
	}
	c, err := s.Apply(context.Background(), parent, func(j *Journal) error {
		for i := 0; i < len(pairs); i += 2 {
			id := must(s.Objects().Put([]byte(pairs[i+1])))
			if err := j.Put([]byte(pairs[i]), id, PriorityEager); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return c
}

// snapshotMap resolves a commit's snapshot into a key->value string map.
func snapshotMap(t testing.TB, s *Store, id CommitID) map[string]string {
	t.Helper()
	sn := must(s.GetSnapshot(id))
	var entries []Entry
	ensure(sn.ForEach(func(e Entry) bool {
		entries = append(entries, e)
		return true
	}))
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		out[string(e.Key)] = string(must(s.Objects().Get(e.Value)))
	}
	return out
}

func headIDs(t testing.TB, s *Store) []CommitID {
	t.Helper()
	return must(s.GetHeadCommitIDs())
}

func TestGetCommitNotFound(t *testing.T) {
	db := setup(t)
	s := must(db.Page(PageIDFromName("p")))
	_, err := s.GetCommit(ComputeObjectID([]byte("no such commit")))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCommit = %v, wanted ErrNotFound", err)
	}
}

func TestAddCommitFromLocal(t *testing.T) {
	db := setup(t)
	s := must(db.Page(PageIDFromName("p")))
	initial := s.InitialCommit()

	c, _, err := newCommit(42, []CommitID{initial.ID}, initial.Root)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AddCommitFromLocal(c); err != nil {
		t.Fatal(err)
	}

	deepEqual(t, headIDs(t, s), []CommitID{c.ID})
	got := must(s.GetCommit(c.ID))
	deepEqual(t, got, c)

	unsynced := must(s.GetUnsyncedCommits())
	if len(unsynced) != 1 || unsynced[0].ID != c.ID {
		t.Errorf("unsynced = %v", unsynced)
	}

	if err := s.AddCommitFromLocal(c); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate insert = %v, wanted ErrAlreadyExists", err)
	}
	deepEqual(t, headIDs(t, s), []CommitID{c.ID})
}

func TestAddCommitFromLocalRejectsBogusID(t *testing.T) {
	db := setup(t)
	s := must(db.Page(PageIDFromName("p")))
	initial := s.InitialCommit()

	c, _, err := newCommit(42, []CommitID{initial.ID}, initial.Root)
	if err != nil {
		t.Fatal(err)
	}
	c.ID = ComputeObjectID([]byte("forged"))
	if err := s.AddCommitFromLocal(c); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("forged id accepted: %v", err)
	}
}

func TestAddCommitFromSync(t *testing.T) {
	db := setup(t)
	s := must(db.Page(PageIDFromName("p")))
	initial := s.InitialCommit()

	c, data, err := newCommit(42, []CommitID{initial.ID}, initial.Root)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AddCommitFromSync(c.ID, data); err != nil {
		t.Fatal(err)
	}
	deepEqual(t, headIDs(t, s), []CommitID{c.ID})

	// Synced commits never enter the unsynced set.
	if unsynced := must(s.GetUnsyncedCommits()); len(unsynced) != 0 {
		t.Errorf("unsynced = %v", unsynced)
	}

	// Receiving the same commit twice is a no-op.
	if err := s.AddCommitFromSync(c.ID, data); err != nil {
		t.Errorf("duplicate sync insert: %v", err)
	}
	deepEqual(t, headIDs(t, s), []CommitID{c.ID})

	if err := s.AddCommitFromSync(ComputeObjectID([]byte("wrong")), data); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("mismatched id accepted: %v", err)
	}
}

func TestAddCommitRequiresParents(t *testing.T) {
	db := setup(t)
	s := must(db.Page(PageIDFromName("p")))

	orphan, data, err := newCommit(42, []CommitID{ComputeObjectID([]byte("missing"))}, s.InitialCommit().Root)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AddCommitFromSync(orphan.ID, data); !errors.Is(err, ErrNotFound) {
		t.Errorf("orphan accepted: %v", err)
	}
	deepEqual(t, headIDs(t, s), []CommitID{s.InitialCommit().ID})
}

func TestMarkCommitSynced(t *testing.T) {
	db := setup(t)
	s := must(db.Page(PageIDFromName("p")))
	c := applyPut(t, s, s.InitialCommit().ID, "a", "1")

	unsynced := must(s.GetUnsyncedCommits())
	if len(unsynced) != 1 || unsynced[0].ID != c.ID {
		t.Fatalf("unsynced = %v", unsynced)
	}

	ensure(s.MarkCommitSynced(c.ID))
	if unsynced := must(s.GetUnsyncedCommits()); len(unsynced) != 0 {
		t.Errorf("unsynced after mark = %v", unsynced)
	}

	// Idempotent.
	ensure(s.MarkCommitSynced(c.ID))

	if err := s.MarkCommitSynced(ComputeObjectID([]byte("unknown"))); !errors.Is(err, ErrNotFound) {
		t.Errorf("marking unknown commit = %v, wanted ErrNotFound", err)
	}
}

func TestHeadsOrdering(t *testing.T) {
	db := setupClock(t)
	s := must(db.Page(PageIDFromName("p")))
	initial := s.InitialCommit()

	// Two divergent commits on the same parent: both become heads, ordered
	// by timestamp.
	c1 := applyPut(t, s, initial.ID, "a", "1")
	c2 := applyPut(t, s, initial.ID, "b", "2")

	deepEqual(t, headIDs(t, s), []CommitID{c1.ID, c2.ID})
	if c1.Timestamp >= c2.Timestamp {
		t.Fatalf("timestamps not increasing: %d then %d", c1.Timestamp, c2.Timestamp)
	}

	// Extending one branch replaces only that head.
	c3 := applyPut(t, s, c1.ID, "a", "updated")
	deepEqual(t, headIDs(t, s), []CommitID{c2.ID, c3.ID})
}

func TestFindCommonAncestor(t *testing.T) {
	db := setupClock(t)
	s := must(db.Page(PageIDFromName("p")))
	initial := s.InitialCommit()

	base := applyPut(t, s, initial.ID, "base", "v")
	left := applyPut(t, s, base.ID, "l", "1")
	left2 := applyPut(t, s, left.ID, "l", "2")
	right := applyPut(t, s, base.ID, "r", "1")

	a := must(s.FindCommonAncestor(left2.ID, right.ID))
	if a.ID != base.ID {
		t.Errorf("ancestor = %s, wanted %s", IDString(a.ID), IDString(base.ID))
	}

	// One commit being an ancestor of the other.
	a = must(s.FindCommonAncestor(left2.ID, base.ID))
	if a.ID != base.ID {
		t.Errorf("ancestor = %s, wanted %s", IDString(a.ID), IDString(base.ID))
	}

	// The ancestor of a commit and itself is the commit.
	a = must(s.FindCommonAncestor(right.ID, right.ID))
	if a.ID != right.ID {
		t.Errorf("ancestor = %s, wanted %s", IDString(a.ID), IDString(right.ID))
	}
}

func TestFindCommonAncestorThroughMerge(t *testing.T) {
	db := setupClock(t)
	s := must(db.Page(PageIDFromName("p")))
	initial := s.InitialCommit()

	left := applyPut(t, s, initial.ID, "l", "1")
	right := applyPut(t, s, initial.ID, "r", "1")

	merged := must(LastOneWins{}.Merge(context.Background(), s, left, right, initial))
	after := applyPut(t, s, merged.ID, "x", "1")

	// A branch forked before the merge still resolves against the merged line.
	side := applyPut(t, s, left.ID, "l", "side")
	a := must(s.FindCommonAncestor(after.ID, side.ID))
	if a.ID != left.ID {
		t.Errorf("ancestor = %s, wanted %s", IDString(a.ID), IDString(left.ID))
	}
}
