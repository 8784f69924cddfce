package pageledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"
)

// ObjectID is the content address of a blob in the object store; CommitID is
// the content address of an encoded commit record. Both are CIDv1 (raw
// codec, SHA2-256): equal content always yields equal ids, which gives
// automatic dedup and makes commit ids reproducible across replicas.
type (
	ObjectID = cid.Cid
	CommitID = cid.Cid
)

// UndefID is the zero id value.
var UndefID = cid.Undef

// ComputeObjectID computes the content address for the given bytes.
func ComputeObjectID(data []byte) ObjectID {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		panic(fmt.Errorf("multihash: %w", err)) // SHA2-256 over bytes cannot fail
	}
	return cid.NewCidV1(cid.Raw, sum)
}

func computeCommitID(encoded []byte) CommitID {
	return ComputeObjectID(encoded)
}

// IDFromBytes parses the binary form produced by id.Bytes().
func IDFromBytes(b []byte) (cid.Cid, error) {
	c, err := cid.Cast(b)
	if err != nil {
		return cid.Undef, fmt.Errorf("bad id: %w: %w", ErrInvalidArgument, err)
	}
	return c, nil
}

// IDString renders an id in multibase base32, the canonical display form.
func IDString(id cid.Cid) string {
	s, err := multibase.Encode(multibase.Base32, id.Bytes())
	if err != nil {
		panic(fmt.Errorf("multibase: %w", err))
	}
	return s
}

// compareIDs is the fixed total order used for tie-breaks and parent
// normalization: lexicographic comparison of the binary forms.
func compareIDs(a, b cid.Cid) int {
	return bytes.Compare(a.Bytes(), b.Bytes())
}

// PageID is the opaque fixed-length identifier naming one logical database
// instance. One commit graph exists per page.
type PageID [16]byte

func (p PageID) String() string {
	return hex.EncodeToString(p[:])
}

// PageIDFromName derives a stable PageID from an arbitrary name.
func PageIDFromName(name string) PageID {
	sum := sha256.Sum256([]byte(name))
	var p PageID
	copy(p[:], sum[:])
	return p
}

// ParsePageID parses the hex form produced by PageID.String.
func ParsePageID(s string) (PageID, error) {
	var p PageID
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(p) {
		return p, fmt.Errorf("bad page id %q: %w", s, ErrInvalidArgument)
	}
	copy(p[:], b)
	return p, nil
}
