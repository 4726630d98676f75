// Package feed maintains a client-visible mirror of the remote comment
// collection. A View owns one change-bus subscription and delivers
// full-replace snapshots: every change mark triggers a fresh ordered
// query and the whole local list is replaced, never patched.
package feed

import (
	"context"
	"log"
	"sync"

	"banter/api/internal/comment"
	"banter/api/internal/notify"
)

// Source serves full ordered snapshots of the comment collection.
type Source interface {
	ListCommentsOrdered(ctx context.Context, key comment.SortKey) ([]comment.Comment, error)
}

// ChangeStream is a cancellable stream of collection change marks.
type ChangeStream interface {
	Marks() <-chan notify.Change
	Close()
}

// ChangeBus hands out change streams.
type ChangeBus interface {
	Subscribe(ctx context.Context) (ChangeStream, error)
}

// OverRedis adapts the concrete notify bus to the ChangeBus interface.
func OverRedis(bus *notify.Bus) ChangeBus {
	return redisBus{bus: bus}
}

type redisBus struct {
	bus *notify.Bus
}

func (b redisBus) Subscribe(ctx context.Context) (ChangeStream, error) {
	return b.bus.Subscribe(ctx)
}

// View is one live subscription against one sort order. Switching the
// sort key means closing the view and opening a new one; the caller's
// page index is independent state and is not reset here.
type View struct {
	source    Source
	stream    ChangeStream
	key       comment.SortKey
	snapshots chan []comment.Comment
	done      chan struct{}
	once      sync.Once

	mu     sync.Mutex
	closed bool

	// lastRevision is the highest target revision seen in an applied
	// snapshot. A snapshot that regresses below it is a stale read
	// racing a local write; it is dropped and re-queried.
	lastRevision int64
}

// Open subscribes to the change bus, loads the initial snapshot, and
// starts delivering. The initial snapshot is the first value on
// Snapshots.
func Open(ctx context.Context, source Source, bus ChangeBus, key comment.SortKey) (*View, error) {
	stream, err := bus.Subscribe(ctx)
	if err != nil {
		return nil, err
	}

	initial, err := source.ListCommentsOrdered(ctx, key)
	if err != nil {
		stream.Close()
		return nil, err
	}

	view := &View{
		source:    source,
		stream:    stream,
		key:       key,
		snapshots: make(chan []comment.Comment, 1),
		done:      make(chan struct{}),
	}
	view.lastRevision = maxRevision(initial)
	view.push(initial)
	go view.run(ctx)
	return view, nil
}

// Snapshots delivers full-replace collection states. The channel closes
// when the view is closed or its change stream fails; resubscription is
// the caller's policy.
func (v *View) Snapshots() <-chan []comment.Comment {
	return v.snapshots
}

func (v *View) SortKey() comment.SortKey {
	return v.key
}

// Close tears the subscription down. Idempotent; no snapshot is
// delivered after it returns.
func (v *View) Close() {
	v.once.Do(func() {
		v.mu.Lock()
		v.closed = true
		close(v.done)
		v.mu.Unlock()
		v.stream.Close()
		// Drop any snapshot still sitting in the buffer.
		select {
		case <-v.snapshots:
		default:
		}
	})
}

func (v *View) run(ctx context.Context) {
	defer close(v.snapshots)
	for {
		select {
		case <-v.done:
			return
		case <-ctx.Done():
			v.Close()
			return
		case _, ok := <-v.stream.Marks():
			if !ok {
				// Stream failure or teardown: the consumer keeps its
				// last-known list rather than being cleared.
				return
			}
			v.refresh(ctx)
		}
	}
}

func (v *View) refresh(ctx context.Context) {
	snapshot, err := v.source.ListCommentsOrdered(ctx, v.key)
	if err != nil {
		log.Printf("feed: refresh failed, keeping last snapshot: %v", err)
		return
	}
	revision := maxRevision(snapshot)
	if revision < v.lastRevision {
		// Stale read arriving after a newer one; query again instead
		// of rolling the visible state backwards.
		snapshot, err = v.source.ListCommentsOrdered(ctx, v.key)
		if err != nil {
			log.Printf("feed: stale re-query failed, keeping last snapshot: %v", err)
			return
		}
		revision = maxRevision(snapshot)
		if revision < v.lastRevision {
			// Still behind: the next change mark will try again.
			log.Printf("feed: snapshot still stale after re-query, keeping last snapshot")
			return
		}
	}
	if revision > v.lastRevision {
		v.lastRevision = revision
	}
	v.push(snapshot)
}

// push delivers latest-wins: a consumer that lags sees only the newest
// snapshot, which is safe because every snapshot is the whole state.
// The lock orders push against Close, so once Close has drained the
// buffer no later send can slip in.
func (v *View) push(snapshot []comment.Comment) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	for {
		select {
		case v.snapshots <- snapshot:
			return
		default:
			select {
			case <-v.snapshots:
			default:
			}
		}
	}
}

func maxRevision(snapshot []comment.Comment) int64 {
	var max int64
	for _, item := range snapshot {
		if item.Revision > max {
			max = item.Revision
		}
	}
	return max
}
