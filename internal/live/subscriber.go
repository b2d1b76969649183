// Package live keeps the client attached to the server's board channel: one
// long-lived connection, at most one board subscription on top of it, and
// optionally the user's own task feed.
package live

import (
	"context"
	"encoding/json"
	"sync"

	"taskboard/internal/board"
	"taskboard/internal/wire"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Channel is the part of Conn the subscriber depends on.
type Channel interface {
	Connect(ctx context.Context) error
	Connected() bool
	Emit(event string, data any) error
	On(event string, h Handler) (off func())
	OnConnect(fn func()) (off func())
}

var _ Channel = (*Conn)(nil)

type SnapshotFunc func(*board.Snapshot)

// ErrorFunc receives `error` events the server sends for this board.
type ErrorFunc func(wire.ErrorPayload)

// Subscription is the handle for one board subscription. Dispose releases
// every handler it registered; afterwards no callback of this subscription
// runs again.
type Subscription struct {
	BoardID int64
	UserID  uuid.UUID

	sub  *Subscriber
	offs []func()

	mu       sync.Mutex
	disposed bool
	gotFirst bool
}

type Subscriber struct {
	ch  Channel
	log *logrus.Entry

	mu     sync.Mutex
	active *Subscription
	feeds  int
	onErr  ErrorFunc
}

func NewSubscriber(ch Channel, log *logrus.Entry) *Subscriber {
	return &Subscriber{ch: ch, log: log}
}

// OnError sets the callback for server-reported errors.
func (s *Subscriber) OnError(fn ErrorFunc) {
	s.mu.Lock()
	s.onErr = fn
	s.mu.Unlock()
}

// SubscribeToBoard replaces any previous subscription with one for boardID.
// onSnapshot runs at most once, with the first usable snapshot; onUpdate runs
// for every later broadcast. Payloads with no data are dropped.
func (s *Subscriber) SubscribeToBoard(ctx context.Context, boardID int64, userID uuid.UUID, onSnapshot, onUpdate SnapshotFunc) (*Subscription, error) {
	s.mu.Lock()
	prev := s.active
	s.active = nil
	s.mu.Unlock()

	if prev != nil {
		if prev.BoardID == boardID && prev.UserID == userID {
			prev.release(false)
		} else {
			prev.release(true)
		}
	}

	if !s.ch.Connected() {
		s.log.Debug("live channel not connected, connecting")
		if err := s.ch.Connect(ctx); err != nil {
			return nil, err
		}
	}

	sub := &Subscription{BoardID: boardID, UserID: userID, sub: s}
	log := s.log.WithField("board_id", boardID)

	sub.offs = append(sub.offs,
		s.ch.On(wire.EventBoardData, func(data json.RawMessage) {
			snap := sub.accept(data, log)
			if snap == nil {
				return
			}
			sub.mu.Lock()
			first := !sub.gotFirst
			sub.gotFirst = true
			sub.mu.Unlock()
			if first {
				onSnapshot(snap)
			} else {
				onUpdate(snap)
			}
		}),
		s.ch.On(wire.EventBoardUpdated, func(data json.RawMessage) {
			if snap := sub.accept(data, log); snap != nil {
				onUpdate(snap)
			}
		}),
		s.ch.On(wire.EventError, func(data json.RawMessage) {
			var p wire.ErrorPayload
			if err := json.Unmarshal(data, &p); err != nil {
				log.WithError(err).Warn("malformed error event")
				return
			}
			if p.BoardID != 0 && p.BoardID != boardID {
				return
			}
			if sub.isDisposed() {
				return
			}
			s.mu.Lock()
			fn := s.onErr
			s.mu.Unlock()
			log.WithField("code", p.Code).Warn(p.Message)
			if fn != nil {
				fn(p)
			}
		}),
		s.ch.OnConnect(func() {
			if sub.isDisposed() {
				return
			}
			log.Info("re-subscribing after reconnect")
			if err := s.ch.Emit(wire.EventSubscribeBoard, wire.SubscribeIntent{BoardID: boardID, UserID: userID}); err != nil {
				log.WithError(err).Warn("re-subscribe failed")
			}
		}),
	)

	s.mu.Lock()
	s.active = sub
	s.mu.Unlock()

	if err := s.ch.Emit(wire.EventSubscribeBoard, wire.SubscribeIntent{BoardID: boardID, UserID: userID}); err != nil {
		sub.release(false)
		s.mu.Lock()
		if s.active == sub {
			s.active = nil
		}
		s.mu.Unlock()
		return nil, err
	}
	log.WithField("user_id", userID).Info("subscribed to board")
	return sub, nil
}

// UnsubscribeFromBoard disposes the active subscription when it is for
// boardID. It is safe to call repeatedly.
func (s *Subscriber) UnsubscribeFromBoard(boardID int64) {
	s.mu.Lock()
	sub := s.active
	if sub == nil || sub.BoardID != boardID {
		s.mu.Unlock()
		return
	}
	s.active = nil
	s.mu.Unlock()
	sub.release(true)
}

// Active returns the current subscription, nil when there is none.
func (s *Subscriber) Active() *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Dispose unsubscribes and removes this subscription's handlers.
func (sub *Subscription) Dispose() {
	s := sub.sub
	s.mu.Lock()
	if s.active == sub {
		s.active = nil
	}
	s.mu.Unlock()
	sub.release(true)
}

func (sub *Subscription) isDisposed() bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.disposed
}

func (sub *Subscription) release(announce bool) {
	sub.mu.Lock()
	if sub.disposed {
		sub.mu.Unlock()
		return
	}
	sub.disposed = true
	offs := sub.offs
	sub.offs = nil
	sub.mu.Unlock()

	for _, off := range offs {
		off()
	}
	s := sub.sub
	log := s.log.WithField("board_id", sub.BoardID)
	if announce && s.ch.Connected() {
		if err := s.ch.Emit(wire.EventUnsubscribeBoard, wire.UnsubscribeIntent{BoardID: sub.BoardID}); err != nil {
			log.WithError(err).Warn("unsubscribe intent not sent")
		}
	}
	log.Info("unsubscribed from board")
}

// accept decodes a snapshot payload meant for this subscription.
func (sub *Subscription) accept(data json.RawMessage, log *logrus.Entry) *board.Snapshot {
	if sub.isDisposed() {
		return nil
	}
	snap, err := wire.DecodeSnapshot(data)
	if err != nil {
		log.WithError(err).Warn("malformed board payload")
		return nil
	}
	if snap == nil {
		log.Debug("board payload has no data yet")
		return nil
	}
	if snap.BoardID != sub.BoardID {
		log.WithField("payload_board_id", snap.BoardID).Debug("ignoring payload for another board")
		return nil
	}
	return snap
}
