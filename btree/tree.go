package btree

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ipfs/go-cid"
)

// EmptyRoot writes the canonical empty tree node and returns its id. The id
// is the same on every replica; it is the root of a page's initial commit.
func EmptyRoot(st Store) (cid.Cid, error) {
	return writeNode(st, &node{level: 0, children: make([]cid.Cid, 1)})
}

// Get returns the entry stored under key, or nil if the key is absent.
func Get(st Store, root cid.Cid, key []byte) (*Entry, error) {
	cur := root
	for cur.Defined() {
		n, err := readNode(st, cur)
		if err != nil {
			return nil, err
		}
		i := sort.Search(len(n.entries), func(i int) bool {
			return bytes.Compare(n.entries[i].Key, key) >= 0
		})
		if i < len(n.entries) && bytes.Equal(n.entries[i].Key, key) {
			e := n.entries[i]
			return &e, nil
		}
		cur = n.children[i]
	}
	return nil, nil
}

// ForEach walks the tree in ascending key order. fn returning false stops
// the walk; the first return value reports whether it was stopped.
func ForEach(st Store, root cid.Cid, fn func(Entry) bool) (stopped bool, err error) {
	if !root.Defined() {
		return false, nil
	}
	n, err := readNode(st, root)
	if err != nil {
		return false, err
	}
	for i, child := range n.children {
		if child.Defined() {
			stopped, err := ForEach(st, child, fn)
			if stopped || err != nil {
				return stopped, err
			}
		}
		if i < len(n.entries) {
			if !fn(n.entries[i]) {
				return true, nil
			}
		}
	}
	return false, nil
}

// Apply produces the root of a new tree equal to the tree at root with the
// given changes applied. Changes must be sorted ascending by key with no
// duplicates; deleting an absent key is a no-op. All new nodes are written
// through st. The base tree is never modified.
func Apply(st Store, root cid.Cid, changes []Change) (cid.Cid, error) {
	for i := 1; i < len(changes); i++ {
		if bytes.Compare(changes[i-1].Entry.Key, changes[i].Entry.Key) >= 0 {
			return cid.Undef, fmt.Errorf("changes out of order at %q", changes[i].Entry.Key)
		}
	}

	base, err := readAll(st, root)
	if err != nil {
		return cid.Undef, err
	}

	merged := make([]Entry, 0, len(base)+len(changes))
	i, j := 0, 0
	for i < len(base) || j < len(changes) {
		var cmp int
		switch {
		case i >= len(base):
			cmp = 1
		case j >= len(changes):
			cmp = -1
		default:
			cmp = bytes.Compare(base[i].Key, changes[j].Entry.Key)
		}
		switch {
		case cmp < 0:
			merged = append(merged, base[i])
			i++
		case cmp > 0:
			if !changes[j].Deleted {
				merged = append(merged, changes[j].Entry)
			}
			j++
		default:
			if !changes[j].Deleted {
				merged = append(merged, changes[j].Entry)
			}
			i++
			j++
		}
	}

	if len(merged) == 0 {
		return EmptyRoot(st)
	}
	return buildRange(st, merged, true)
}

func readAll(st Store, root cid.Cid) ([]Entry, error) {
	var out []Entry
	_, err := ForEach(st, root, func(e Entry) bool {
		out = append(out, e)
		return true
	})
	return out, err
}

// buildRange builds the subtree over a sorted slice of entries. The root of
// the range is the node holding all entries of the range's maximum level;
// gaps between them recurse. Empty internal gaps produce undefined ids, but
// a whole tree of zero entries is the canonical empty node (root only).
func buildRange(st Store, entries []Entry, isRoot bool) (cid.Cid, error) {
	if len(entries) == 0 {
		if isRoot {
			return EmptyRoot(st)
		}
		return cid.Undef, nil
	}

	top := 0
	for _, e := range entries {
		if l := keyLevel(e.Key); l > top {
			top = l
		}
	}

	n := &node{level: top}
	start := 0
	for i, e := range entries {
		if keyLevel(e.Key) != top {
			continue
		}
		child, err := buildRange(st, entries[start:i], false)
		if err != nil {
			return cid.Undef, err
		}
		n.children = append(n.children, child)
		n.entries = append(n.entries, e)
		start = i + 1
	}
	last, err := buildRange(st, entries[start:], false)
	if err != nil {
		return cid.Undef, err
	}
	n.children = append(n.children, last)

	return writeNode(st, n)
}
