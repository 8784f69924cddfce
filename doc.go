/*
Package pageledger implements a versioned page store: a local,
content-addressable, commit-graph key/value database with pluggable conflict
resolution (on top of Bolt, or an in-memory backend for tests).

We implement:

1. An object store, holding content-addressed blobs: values, and the nodes
of each snapshot's key index.

2. A commit graph per page: immutable commits (snapshot root + timestamp +
parent ids), the mutable set of current heads, and per-commit sync status.

3. Journals, mutable single-writer staging buffers that each produce exactly
one new commit.

4. A diff engine yielding the per-key changes between two snapshots in
ascending key order.

5. A merge framework resolving two divergent heads through a pluggable
strategy, with a last-one-wins reference strategy.

# Technical Details

**Buckets.**
We rely on scoped namespaces for keys called buckets, nested one level deep:
the root buckets are “objects”, “commits”, “heads” and “unsynced”, each with
one nested bucket per page. Bolt supports nested buckets natively; the
in-memory backend simulates them with composite names.

**Identifiers.**
ObjectID and CommitID are CIDv1 content hashes (raw codec, SHA2-256).
Storing equal bytes twice yields the same id and writes once; commits with
equal contents get equal ids on every replica, which is what makes merges
reproducible.

**Snapshot index.**
Each commit's root addresses a content-defined search tree (package btree)
over the object store. The tree's shape is a pure function of its key set,
so equal snapshots share every node.

**Atomicity.**
A journal commit writes the new index nodes and the commit record, then
swaps the head pointers, all in one storage transaction. A failed commit
leaves the graph unchanged; a reader never observes pending journal state.

**Merges.**
Merges run asynchronously as task objects owned by a Merger. Cancellation is
cooperative (a context checked before each side-effecting step) and is
reported as a terminal result, not a suppressed callback. Concurrent merges
over the same head pair are not serialized: both succeed and produce
redundant merge commits, which is wasteful but safe; serializing merge
requests per page is the caller's job.
*/
package pageledger
