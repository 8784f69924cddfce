package pageledger

import (
	"errors"
	"testing"
)

func TestCommitRoundtrip(t *testing.T) {
	root := ComputeObjectID([]byte("root node"))
	p1 := ComputeObjectID([]byte("parent 1"))
	p2 := ComputeObjectID([]byte("parent 2"))

	c, data, err := newCommit(1234567890, []CommitID{p1, p2}, root)
	if err != nil {
		t.Fatal(err)
	}
	if c.ID != computeCommitID(data) {
		t.Fatal("id does not match encoding")
	}

	got, err := decodeCommit(data)
	if err != nil {
		t.Fatal(err)
	}
	deepEqual(t, got, c)
	if !got.IsMerge() {
		t.Error("two-parent commit not reported as merge")
	}
}

func TestCommitIDDependsOnEveryField(t *testing.T) {
	root := ComputeObjectID([]byte("root"))
	parent := ComputeObjectID([]byte("parent"))

	base := must3(newCommit(100, []CommitID{parent}, root))
	otherTS := must3(newCommit(101, []CommitID{parent}, root))
	otherRoot := must3(newCommit(100, []CommitID{parent}, ComputeObjectID([]byte("other root"))))
	orphan := must3(newCommit(100, nil, root))

	ids := map[CommitID]bool{base.ID: true, otherTS.ID: true, otherRoot.ID: true, orphan.ID: true}
	if len(ids) != 4 {
		t.Errorf("commit ids collide: %v", ids)
	}
}

func TestCommitEncodeRejectsBadInput(t *testing.T) {
	root := ComputeObjectID([]byte("root"))
	p := ComputeObjectID([]byte("p"))

	if _, _, err := newCommit(1, []CommitID{p, p, p}, root); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("three parents accepted: %v", err)
	}
	if _, _, err := newCommit(1, nil, UndefID); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("undefined root accepted: %v", err)
	}
	if _, _, err := newCommit(1, []CommitID{UndefID}, root); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("undefined parent accepted: %v", err)
	}
}

func TestDecodeCommitCorrupted(t *testing.T) {
	var de *DataError
	if _, err := decodeCommit([]byte("garbage")); !errors.As(err, &de) {
		t.Errorf("decodeCommit(garbage) = %v, wanted DataError", err)
	}

	_, data, err := newCommit(1, nil, ComputeObjectID([]byte("root")))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := decodeCommit(data[:len(data)-3]); !errors.As(err, &de) {
		t.Errorf("truncated record = %v, wanted DataError", err)
	}
}

func must3(c Commit, _ []byte, err error) Commit {
	if err != nil {
		panic(err)
	}
	return c
}
