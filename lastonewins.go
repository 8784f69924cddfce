package pageledger

import "context"

// LastOneWins is the reference merge strategy: per key, the change from the
// commit with the later timestamp wins. The two heads are ordered by
// timestamp (ties broken by id, so merging (A,B) and (B,A) picks the same
// winner); the merge journal's base contents are the earlier head, and the
// diff from the ancestor to the later head is replayed on top of it.
type LastOneWins struct{}

func (LastOneWins) Merge(ctx context.Context, store *Store, left, right, ancestor Commit) (Commit, error) {
	earlier, later := left, right
	if earlier.Timestamp > later.Timestamp ||
		(earlier.Timestamp == later.Timestamp && compareIDs(earlier.ID, later.ID) > 0) {
		earlier, later = later, earlier
	}

	j, err := store.StartMergeCommit(earlier.ID, later.ID)
	if err != nil {
		return Commit{}, err
	}

	var replayErr error
	err = store.GetCommitContentsDiff(ctx, ancestor.ID, later.ID, func(ch EntryChange) bool {
		if ch.Deleted {
			replayErr = j.Delete(ch.Entry.Key)
		} else {
			replayErr = j.Put(ch.Entry.Key, ch.Entry.Value, ch.Entry.Priority)
		}
		return replayErr == nil
	})
	if replayErr != nil {
		j.Rollback()
		return Commit{}, replayErr
	}
	if err != nil {
		// Includes ErrCancelled from a cancelled context.
		j.Rollback()
		return Commit{}, err
	}

	return j.Commit(ctx)
}
