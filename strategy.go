package pageledger

import "context"

// Strategy resolves two divergent heads sharing a common ancestor into one
// merge commit. Implementations drive the diff engine and a merge journal;
// they must leave the graph unchanged on any failure (no partial merge
// commit) and honor ctx cancellation between side-effecting steps.
type Strategy interface {
	Merge(ctx context.Context, store *Store, left, right, ancestor Commit) (Commit, error)
}
