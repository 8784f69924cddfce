package pageledger

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Commit is an immutable value identifying a point-in-time snapshot of one
// page: the root of its serialized key index, its creation timestamp (nanos,
// monotonic-ish wall clock), and its parent ids. One parent marks a normal
// commit, two a merge commit; zero parents exist only on the page's initial
// empty commit. The ID is a content hash of the other fields.
type Commit struct {
	ID        CommitID
	Timestamp uint64
	Parents   []CommitID
	Root      ObjectID
}

func (c Commit) IsMerge() bool {
	return len(c.Parents) == 2
}

// newCommit derives the id from the canonical encoding and returns both.
func newCommit(timestamp uint64, parents []CommitID, root ObjectID) (Commit, []byte, error) {
	c := Commit{Timestamp: timestamp, Parents: parents, Root: root}
	data, err := encodeCommit(c)
	if err != nil {
		return Commit{}, nil, err
	}
	c.ID = computeCommitID(data)
	return c, data, nil
}

// encodeCommit produces the canonical encoding commit ids are derived from:
// a fixed msgpack array of (timestamp, parent ids, root).
func encodeCommit(c Commit) ([]byte, error) {
	if len(c.Parents) > 2 {
		return nil, fmt.Errorf("commit with %d parents: %w", len(c.Parents), ErrInvalidArgument)
	}
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.ResetDict(&buf, nil)
	defer msgpack.PutEncoder(enc)

	if err := enc.EncodeArrayLen(3); err != nil {
		return nil, err
	}
	if err := enc.EncodeUint64(c.Timestamp); err != nil {
		return nil, err
	}
	if err := enc.EncodeArrayLen(len(c.Parents)); err != nil {
		return nil, err
	}
	for _, p := range c.Parents {
		if !p.Defined() {
			return nil, fmt.Errorf("undefined parent id: %w", ErrInvalidArgument)
		}
		if err := enc.EncodeBytes(p.Bytes()); err != nil {
			return nil, err
		}
	}
	if !c.Root.Defined() {
		return nil, fmt.Errorf("undefined root id: %w", ErrInvalidArgument)
	}
	if err := enc.EncodeBytes(c.Root.Bytes()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeCommit parses a stored commit record and recomputes its id.
func decodeCommit(data []byte) (Commit, error) {
	var r bytes.Reader
	r.Reset(data)
	dec := msgpack.GetDecoder()
	dec.ResetDict(&r, nil)
	defer msgpack.PutDecoder(dec)

	c, err := decodeCommitBody(dec)
	if err != nil {
		return Commit{}, dataErrf(data, err, "corrupted commit record")
	}
	c.ID = computeCommitID(data)
	return c, nil
}

func decodeCommitBody(dec *msgpack.Decoder) (Commit, error) {
	var c Commit
	l, err := dec.DecodeArrayLen()
	if err != nil {
		return c, err
	}
	if l != 3 {
		return c, fmt.Errorf("commit record has %d elements, expected 3", l)
	}
	c.Timestamp, err = dec.DecodeUint64()
	if err != nil {
		return c, err
	}
	np, err := dec.DecodeArrayLen()
	if err != nil {
		return c, err
	}
	if np > 2 {
		return c, fmt.Errorf("commit record has %d parents", np)
	}
	c.Parents = make([]CommitID, np)
	for i := range c.Parents {
		b, err := dec.DecodeBytes()
		if err != nil {
			return c, err
		}
		c.Parents[i], err = IDFromBytes(b)
		if err != nil {
			return c, err
		}
	}
	rb, err := dec.DecodeBytes()
	if err != nil {
		return c, err
	}
	c.Root, err = IDFromBytes(rb)
	if err != nil {
		return c, err
	}
	return c, nil
}
