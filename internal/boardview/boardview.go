// Package boardview wires the sync engine together for one mounted board:
// the live subscription feeds the store, the drag controller edits it, and
// every change is re-projected through the active filter.
package boardview

import (
	"context"
	"errors"
	"sync"
	"time"

	"taskboard/internal/board"
	"taskboard/internal/drag"
	"taskboard/internal/live"
	"taskboard/internal/notify"
	"taskboard/internal/projector"
	"taskboard/internal/session"
	"taskboard/internal/store"
	"taskboard/internal/wire"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrNoBoardOpen = errors.New("no board open")

// API is the HTTP side the view needs.
type API interface {
	drag.TaskMutator
	drag.BoardFetcher
}

type Deps struct {
	Live     *live.Subscriber
	API      API
	Identity session.Provider
	Notifier notify.Notifier
	Log      *logrus.Entry
}

type ChangeFunc func(projector.View)

type Board struct {
	live     *live.Subscriber
	api      API
	identity session.Provider
	notifier notify.Notifier
	log      *logrus.Entry

	store *store.Store
	drag  *drag.Controller

	mu      sync.Mutex
	boardID int64
	gen     uint64
	sub     *live.Subscription
	filter  projector.Filter

	cmu       sync.Mutex
	listeners map[uuid.UUID]ChangeFunc
}

func New(d Deps) *Board {
	if d.Notifier == nil {
		d.Notifier = notify.Discard
	}
	st := store.New(d.Log.WithField("component", "store"))
	b := &Board{
		live:      d.Live,
		api:       d.API,
		identity:  d.Identity,
		notifier:  d.Notifier,
		log:       d.Log,
		store:     st,
		filter:    projector.DefaultFilter(),
		listeners: make(map[uuid.UUID]ChangeFunc),
	}
	b.drag = drag.NewController(st, d.Identity, d.API, d.API, d.Notifier, d.Log.WithField("component", "drag"))
	st.Subscribe(func(*board.Snapshot) { b.changed() })
	d.Live.OnError(b.serverError)
	return b
}

// Open mounts boardID: any drag in progress is cancelled, filters reset, the
// store goes back to loading and a fresh subscription is made. Any previous
// board is unsubscribed first.
func (b *Board) Open(ctx context.Context, boardID int64) error {
	b.mu.Lock()
	b.gen++
	gen := b.gen
	b.boardID = boardID
	b.filter = projector.DefaultFilter()
	b.sub = nil
	b.mu.Unlock()

	b.drag.Cancel()
	b.store.Reset()
	b.changed()

	apply := func(s *board.Snapshot) {
		if !b.current(gen) {
			return
		}
		b.store.ApplySnapshot(s)
	}
	userID := b.identity.Identity().UserID
	sub, err := b.live.SubscribeToBoard(ctx, boardID, userID, apply, apply)
	if err != nil {
		b.log.WithError(err).WithField("board_id", boardID).Error("failed to subscribe to board")
		return err
	}

	b.mu.Lock()
	if b.gen == gen {
		b.sub = sub
	}
	b.mu.Unlock()
	return nil
}

// Switch moves the view to another board.
func (b *Board) Switch(ctx context.Context, boardID int64) error {
	return b.Open(ctx, boardID)
}

// Close unsubscribes and empties the store.
func (b *Board) Close() {
	b.mu.Lock()
	b.gen++
	sub := b.sub
	b.sub = nil
	b.boardID = 0
	b.mu.Unlock()

	if sub != nil {
		sub.Dispose()
	}
	b.drag.Cancel()
	b.store.Reset()
}

// Refresh loads the board over HTTP, for when the live channel is down.
func (b *Board) Refresh(ctx context.Context) error {
	b.mu.Lock()
	id, gen := b.boardID, b.gen
	b.mu.Unlock()
	if id == 0 {
		return ErrNoBoardOpen
	}
	snap, err := b.api.FetchBoard(ctx, id)
	if err != nil {
		return err
	}
	if b.current(gen) {
		b.store.ApplySnapshot(snap)
	}
	return nil
}

func (b *Board) SetFilter(f projector.Filter) {
	b.mu.Lock()
	b.filter = f
	b.mu.Unlock()
	b.changed()
}

func (b *Board) ClearFilters() {
	b.SetFilter(projector.DefaultFilter())
}

func (b *Board) Filter() projector.Filter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.filter
}

// View projects the current state through the active filter.
func (b *Board) View() projector.View {
	f := b.Filter()
	return projector.Project(b.store.Snapshot(), f, b.identity.Identity().UserID)
}

// OnChange registers fn to receive the projected view after every change.
func (b *Board) OnChange(fn ChangeFunc) (cancel func()) {
	id := uuid.New()
	b.cmu.Lock()
	b.listeners[id] = fn
	b.cmu.Unlock()
	return func() {
		b.cmu.Lock()
		delete(b.listeners, id)
		b.cmu.Unlock()
	}
}

func (b *Board) PickUp(taskID int64) error { return b.drag.PickUp(taskID) }

func (b *Board) Drop(ctx context.Context, target board.ColumnKey) error {
	return b.drag.Drop(ctx, target)
}

func (b *Board) Cancel() { b.drag.Cancel() }

// Wait blocks until in-flight moves have settled.
func (b *Board) Wait() { b.drag.Wait() }

func (b *Board) DragState() drag.State { return b.drag.State() }

// Store exposes the underlying state for read access.
func (b *Board) Store() *store.Store { return b.store }

func (b *Board) current(gen uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gen == gen
}

func (b *Board) changed() {
	b.cmu.Lock()
	fns := make([]ChangeFunc, 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.cmu.Unlock()
	if len(fns) == 0 {
		return
	}
	v := b.View()
	for _, fn := range fns {
		fn(v)
	}
}

func (b *Board) serverError(p wire.ErrorPayload) {
	b.notifier.Notify(notify.Notification{
		Kind:    notify.Error,
		Title:   "Board error",
		Message: p.Message,
		Time:    time.Now(),
	})
}
