package pageledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// MergeResult is the terminal outcome of a merge. Err is ErrCancelled when
// the merge was abandoned before committing; the graph is unchanged in that
// case. Results are delivered on every terminal path — cancellation is a
// result, never a silently suppressed callback.
type MergeResult struct {
	Commit Commit
	Err    error
}

// MergeHandle is the task object for one in-flight merge, owned by the
// Merger that started it.
type MergeHandle struct {
	cancel context.CancelFunc

	mu        sync.Mutex
	done      bool
	result    MergeResult
	callbacks []func(MergeResult)
	doneCh    chan struct{}
}

// Cancel requests the merge to stop. Best effort: once the merge commit is
// durably written, cancelling has no effect.
func (h *MergeHandle) Cancel() {
	h.cancel()
}

func (h *MergeHandle) IsDone() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

// Done is closed when the merge reaches a terminal state.
func (h *MergeHandle) Done() <-chan struct{} {
	return h.doneCh
}

// Result returns the terminal outcome; ok is false while the merge is still
// running.
func (h *MergeHandle) Result() (res MergeResult, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.done
}

// OnDone registers fn to run exactly once with the terminal outcome. If the
// merge is already done, fn runs immediately on the calling goroutine.
func (h *MergeHandle) OnDone(fn func(MergeResult)) {
	h.mu.Lock()
	if h.done {
		res := h.result
		h.mu.Unlock()
		fn(res)
		return
	}
	h.callbacks = append(h.callbacks, fn)
	h.mu.Unlock()
}

func (h *MergeHandle) finish(res MergeResult) {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		panic("merge finished twice")
	}
	h.done = true
	h.result = res
	callbacks := h.callbacks
	h.callbacks = nil
	close(h.doneCh)
	h.mu.Unlock()

	for _, fn := range callbacks {
		fn(res)
	}
}

// Merger schedules merges of divergent heads for one page, resolving each
// through a pluggable strategy as a cancellable asynchronous task. It tracks
// in-flight merges but deliberately does not serialize them: two concurrent
// merges over the same head pair both succeed and produce redundant merge
// commits — wasteful, not unsafe. Callers that care must serialize merge
// requests per page.
type Merger struct {
	store    *Store
	strategy Strategy
	logger   *slog.Logger

	mu     sync.Mutex
	active []*MergeHandle
}

func NewMerger(store *Store, strategy Strategy) *Merger {
	return &Merger{
		store:    store,
		strategy: strategy,
		logger:   store.logger,
	}
}

// Merge locates the two commits and their common ancestor and starts an
// asynchronous merge. The returned handle reports the terminal outcome.
func (m *Merger) Merge(ctx context.Context, left, right CommitID) (*MergeHandle, error) {
	lc, err := m.store.GetCommit(left)
	if err != nil {
		return nil, err
	}
	rc, err := m.store.GetCommit(right)
	if err != nil {
		return nil, err
	}
	ancestor, err := m.store.FindCommonAncestor(left, right)
	if err != nil {
		return nil, err
	}
	return m.MergeCommits(ctx, lc, rc, ancestor), nil
}

// MergeCommits starts an asynchronous merge with a caller-supplied common
// ancestor. It returns immediately; resolution proceeds on a background
// goroutine.
func (m *Merger) MergeCommits(ctx context.Context, left, right, ancestor Commit) *MergeHandle {
	mctx, cancel := context.WithCancel(ctx)
	h := &MergeHandle{cancel: cancel, doneCh: make(chan struct{})}
	m.add(h)

	go func() {
		defer m.remove(h)
		defer cancel()

		c, err := m.strategy.Merge(mctx, m.store, left, right, ancestor)
		if err != nil && errors.Is(err, context.Canceled) {
			err = ErrCancelled
		}
		switch {
		case err == nil:
			m.logger.Debug("merge done",
				"left", IDString(left.ID), "right", IDString(right.ID), "commit", IDString(c.ID))
		case errors.Is(err, ErrCancelled):
			m.logger.Debug("merge cancelled",
				"left", IDString(left.ID), "right", IDString(right.ID))
		default:
			m.logger.Error("merge failed",
				"left", IDString(left.ID), "right", IDString(right.ID), "err", err)
		}
		h.finish(MergeResult{Commit: c, Err: err})
	}()

	return h
}

// ActiveCount returns the number of merges currently in flight.
func (m *Merger) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func (m *Merger) add(h *MergeHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = append(m.active, h)
}

func (m *Merger) remove(h *MergeHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	found := -1
	for i, other := range m.active {
		if other == h {
			found = i
			break
		}
	}
	if found < 0 {
		panic("merge handle not found in list")
	}

	n := len(m.active)
	m.active[found] = m.active[n-1]
	m.active[n-1] = nil // ensure it gets collected
	m.active = m.active[:n-1]
}
