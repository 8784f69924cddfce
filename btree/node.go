package btree

import (
	"bytes"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// node is one content-addressed tree node. Invariant:
// len(children) == len(entries)+1, entries sorted ascending by key, every
// entry at exactly node level, every child covering the open key interval
// between its surrounding entries. An undefined child id means an empty gap.
type node struct {
	level    int
	entries  []Entry
	children []cid.Cid
}

// encodeNode produces the canonical encoding node ids are derived from:
//
//	[level, [[key, value, priority]...], [child-or-nil...]]
func encodeNode(n *node) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.ResetDict(&buf, nil)
	defer msgpack.PutEncoder(enc)

	if err := enc.EncodeArrayLen(3); err != nil {
		return nil, err
	}
	if err := enc.EncodeUint64(uint64(n.level)); err != nil {
		return nil, err
	}
	if err := enc.EncodeArrayLen(len(n.entries)); err != nil {
		return nil, err
	}
	for _, e := range n.entries {
		if err := enc.EncodeArrayLen(3); err != nil {
			return nil, err
		}
		if err := enc.EncodeBytes(e.Key); err != nil {
			return nil, err
		}
		if err := enc.EncodeBytes(e.Value.Bytes()); err != nil {
			return nil, err
		}
		if err := enc.EncodeUint64(uint64(e.Priority)); err != nil {
			return nil, err
		}
	}
	if err := enc.EncodeArrayLen(len(n.children)); err != nil {
		return nil, err
	}
	for _, c := range n.children {
		if !c.Defined() {
			if err := enc.EncodeNil(); err != nil {
				return nil, err
			}
		} else if err := enc.EncodeBytes(c.Bytes()); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decodeNode(data []byte) (*node, error) {
	var r bytes.Reader
	r.Reset(data)
	dec := msgpack.GetDecoder()
	dec.ResetDict(&r, nil)
	defer msgpack.PutDecoder(dec)

	n, err := decodeNodeBody(dec)
	if err != nil {
		return nil, fmt.Errorf("corrupted tree node: %w", err)
	}
	return n, nil
}

func decodeNodeBody(dec *msgpack.Decoder) (*node, error) {
	l, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	if l != 3 {
		return nil, fmt.Errorf("node record has %d elements, expected 3", l)
	}
	level, err := dec.DecodeUint64()
	if err != nil {
		return nil, err
	}
	if level > maxLevel {
		return nil, fmt.Errorf("node level %d out of range", level)
	}
	n := &node{level: int(level)}

	ne, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	n.entries = make([]Entry, ne)
	for i := range n.entries {
		el, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		if el != 3 {
			return nil, fmt.Errorf("entry record has %d elements, expected 3", el)
		}
		key, err := dec.DecodeBytes()
		if err != nil {
			return nil, err
		}
		valueBytes, err := dec.DecodeBytes()
		if err != nil {
			return nil, err
		}
		value, err := cid.Cast(valueBytes)
		if err != nil {
			return nil, fmt.Errorf("entry value id: %w", err)
		}
		prio, err := dec.DecodeUint64()
		if err != nil {
			return nil, err
		}
		n.entries[i] = Entry{Key: key, Value: value, Priority: Priority(prio)}
	}

	nc, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	if nc != ne+1 {
		return nil, fmt.Errorf("node has %d children for %d entries", nc, ne)
	}
	n.children = make([]cid.Cid, nc)
	for i := range n.children {
		code, err := dec.PeekCode()
		if err != nil {
			return nil, err
		}
		if code == msgpcode.Nil {
			if err := dec.DecodeNil(); err != nil {
				return nil, err
			}
			continue
		}
		childBytes, err := dec.DecodeBytes()
		if err != nil {
			return nil, err
		}
		child, err := cid.Cast(childBytes)
		if err != nil {
			return nil, fmt.Errorf("child id: %w", err)
		}
		n.children[i] = child
	}
	return n, nil
}

func writeNode(st Store, n *node) (cid.Cid, error) {
	data, err := encodeNode(n)
	if err != nil {
		return cid.Undef, err
	}
	return st.PutObject(data)
}

func readNode(st Store, id cid.Cid) (*node, error) {
	data, err := st.GetObject(id)
	if err != nil {
		return nil, err
	}
	return decodeNode(data)
}
