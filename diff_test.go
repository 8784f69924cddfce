package pageledger

import (
	"context"
	"errors"
	"testing"
)

func diffChanges(t testing.TB, s *Store, from, to CommitID) []EntryChange {
	t.Helper()
	var out []EntryChange
	err := s.GetCommitContentsDiff(context.Background(), from, to, func(ch EntryChange) bool {
		out = append(out, ch)
		return true
	})
	if err != nil {
		t.Fatalf("GetCommitContentsDiff: %v", err)
	}
	return out
}

func TestCommitContentsDiff(t *testing.T) {
	db := setup(t)
	s := must(db.Page(PageIDFromName("p")))
	initial := s.InitialCommit()

	base := applyPut(t, s, initial.ID, "a", "1", "b", "2", "c", "3")
	next, err := s.Apply(context.Background(), base.ID, func(j *Journal) error {
		ensure(j.Put([]byte("b"), must(s.Objects().Put([]byte("changed"))), PriorityEager))
		ensure(j.Put([]byte("d"), must(s.Objects().Put([]byte("4"))), PriorityEager))
		return j.Delete([]byte("c"))
	})
	if err != nil {
		t.Fatal(err)
	}

	got := diffChanges(t, s, base.ID, next.ID)
	if len(got) != 3 {
		t.Fatalf("diff yielded %d changes: %v", len(got), got)
	}
	// Ascending key order: b (put), c (delete), d (put).
	deepEqual(t, string(got[0].Entry.Key), "b")
	deepEqual(t, string(got[1].Entry.Key), "c")
	deepEqual(t, string(got[2].Entry.Key), "d")
	if got[0].Deleted || !got[1].Deleted || got[2].Deleted {
		t.Errorf("wrong deletion flags: %v", got)
	}
	deepEqual(t, string(must(s.Objects().Get(got[0].Entry.Value))), "changed")
}

func TestCommitContentsDiffAgainstInitial(t *testing.T) {
	db := setup(t)
	s := must(db.Page(PageIDFromName("p")))
	initial := s.InitialCommit()
	c := applyPut(t, s, initial.ID, "a", "1", "b", "2")

	adds := diffChanges(t, s, initial.ID, c.ID)
	if len(adds) != 2 || adds[0].Deleted || adds[1].Deleted {
		t.Errorf("diff(initial, c) = %v", adds)
	}
	if len(diffChanges(t, s, c.ID, c.ID)) != 0 {
		t.Error("diff of a commit with itself is not empty")
	}
}

func TestCommitContentsDiffStop(t *testing.T) {
	db := setup(t)
	s := must(db.Page(PageIDFromName("p")))
	initial := s.InitialCommit()
	c := applyPut(t, s, initial.ID, "a", "1", "b", "2", "c", "3")

	n := 0
	err := s.GetCommitContentsDiff(context.Background(), initial.ID, c.ID, func(EntryChange) bool {
		n++
		return false
	})
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("stopped diff = %v, wanted ErrCancelled", err)
	}
	if n != 1 {
		t.Errorf("callback ran %d times after stop", n)
	}
}

func TestCommitContentsDiffCancelledContext(t *testing.T) {
	db := setup(t)
	s := must(db.Page(PageIDFromName("p")))
	initial := s.InitialCommit()
	c := applyPut(t, s, initial.ID, "a", "1", "b", "2")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.GetCommitContentsDiff(ctx, initial.ID, c.ID, func(EntryChange) bool { return true })
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("diff with cancelled ctx = %v, wanted ErrCancelled", err)
	}
}

func TestCommitContentsDiffUnknownCommit(t *testing.T) {
	db := setup(t)
	s := must(db.Page(PageIDFromName("p")))
	err := s.GetCommitContentsDiff(context.Background(),
		s.InitialCommit().ID, ComputeObjectID([]byte("nope")),
		func(EntryChange) bool { return true })
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("diff to unknown commit = %v, wanted ErrNotFound", err)
	}
}
