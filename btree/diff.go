package btree

import (
	"bytes"

	"github.com/ipfs/go-cid"
)

// Diff yields, in ascending key order, one Change per key whose entry
// differs between the tree at from and the tree at to: entries absent from
// to are yielded as deletions, everything else as puts carrying to's entry.
// fn returning false stops the walk immediately; the first return value
// reports whether it was stopped.
//
// The walk is a lock-step merge-join over the two trees. Whenever both sides
// sit at a subtree boundary with equal ids, the whole subtree is skipped:
// identical ids mean identical contents, so nothing in it can differ.
func Diff(st Store, from, to cid.Cid, fn func(Change) bool) (stopped bool, err error) {
	if from == to {
		return false, nil
	}
	a, err := newDiffIter(st, from)
	if err != nil {
		return false, err
	}
	b, err := newDiffIter(st, to)
	if err != nil {
		return false, err
	}

	for {
		ia, ib := a.peek(), b.peek()

		if ia.isChild() && ib.isChild() && ia.child == ib.child {
			a.skipChild()
			b.skipChild()
			continue
		}
		if ia.isChild() {
			if err := a.enterChild(); err != nil {
				return false, err
			}
			continue
		}
		if ib.isChild() {
			if err := b.enterChild(); err != nil {
				return false, err
			}
			continue
		}

		ae, be := ia.entry, ib.entry
		switch {
		case ae == nil && be == nil:
			return false, nil
		case be == nil || (ae != nil && bytes.Compare(ae.Key, be.Key) < 0):
			if !fn(Change{Entry: *ae, Deleted: true}) {
				return true, nil
			}
			a.advance()
		case ae == nil || bytes.Compare(ae.Key, be.Key) > 0:
			if !fn(Change{Entry: *be}) {
				return true, nil
			}
			b.advance()
		default:
			if !ae.Equal(*be) {
				if !fn(Change{Entry: *be}) {
					return true, nil
				}
			}
			a.advance()
			b.advance()
		}
	}
}

// diffItem is the next unconsumed piece of a tree in iteration order: either
// a whole pending subtree or a single entry. The zero value means the
// iterator is exhausted.
type diffItem struct {
	entry *Entry
	child cid.Cid
}

func (it diffItem) isChild() bool { return it.child.Defined() }

// diffFrame tracks a position inside one node. Positions alternate between
// children and entries: even pos = child pos/2, odd pos = entry (pos-1)/2.
type diffFrame struct {
	n   *node
	pos int
}

type diffIter struct {
	st    Store
	stack []diffFrame
}

func newDiffIter(st Store, root cid.Cid) (*diffIter, error) {
	it := &diffIter{st: st}
	return it, it.push(root)
}

func (it *diffIter) push(id cid.Cid) error {
	if !id.Defined() {
		return nil
	}
	n, err := readNode(it.st, id)
	if err != nil {
		return err
	}
	it.stack = append(it.stack, diffFrame{n: n})
	return nil
}

// settle advances past undefined children and exhausted frames so that the
// top of the stack points at a real item, or the stack is empty.
func (it *diffIter) settle() {
	for len(it.stack) > 0 {
		f := &it.stack[len(it.stack)-1]
		if f.pos > 2*len(f.n.entries) {
			it.stack = it.stack[:len(it.stack)-1]
			continue
		}
		if f.pos%2 == 0 && !f.n.children[f.pos/2].Defined() {
			f.pos++
			continue
		}
		return
	}
}

func (it *diffIter) peek() diffItem {
	it.settle()
	if len(it.stack) == 0 {
		return diffItem{}
	}
	f := &it.stack[len(it.stack)-1]
	if f.pos%2 == 0 {
		return diffItem{child: f.n.children[f.pos/2]}
	}
	return diffItem{entry: &f.n.entries[(f.pos-1)/2]}
}

// skipChild consumes the pending subtree without descending into it.
func (it *diffIter) skipChild() {
	it.stack[len(it.stack)-1].pos++
}

// enterChild descends into the pending subtree.
func (it *diffIter) enterChild() error {
	f := &it.stack[len(it.stack)-1]
	child := f.n.children[f.pos/2]
	f.pos++
	return it.push(child)
}

// advance consumes the pending entry.
func (it *diffIter) advance() {
	it.stack[len(it.stack)-1].pos++
}
