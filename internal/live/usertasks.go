package live

import (
	"context"
	"encoding/json"
	"sync"

	"taskboard/internal/wire"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// UserTasksFunc receives each task feed the server sends.
type UserTasksFunc func(wire.UserTasks)

// NoticeFunc receives task-created, task-updated and task-deleted events.
type NoticeFunc func(event string, n wire.TaskNotice)

// UserTaskSubscription follows one user's task feed. It is independent of
// the board subscription.
type UserTaskSubscription struct {
	UserID uuid.UUID

	sub  *Subscriber
	offs []func()

	mu       sync.Mutex
	disposed bool
}

// SubscribeToUserTasks asks the server for userID's feed and keeps
// following it, re-subscribing after reconnects. onNotice may be nil.
func (s *Subscriber) SubscribeToUserTasks(ctx context.Context, userID uuid.UUID, onTasks UserTasksFunc, onNotice NoticeFunc) (*UserTaskSubscription, error) {
	if !s.ch.Connected() {
		if err := s.ch.Connect(ctx); err != nil {
			return nil, err
		}
	}

	ut := &UserTaskSubscription{UserID: userID, sub: s}
	log := s.log.WithField("user_id", userID)

	ut.offs = append(ut.offs,
		s.ch.On(wire.EventUserTasks, func(data json.RawMessage) {
			if ut.isDisposed() {
				return
			}
			var feed wire.UserTasks
			if err := json.Unmarshal(data, &feed); err != nil {
				log.WithError(err).Warn("malformed task feed")
				return
			}
			if userID != uuid.Nil && feed.UserID != userID {
				return
			}
			onTasks(feed)
		}),
		s.ch.OnConnect(func() {
			if ut.isDisposed() {
				return
			}
			if err := s.ch.Emit(wire.EventSubscribeUserTasks, wire.UserTasksIntent{UserID: userID}); err != nil {
				log.WithError(err).Warn("task feed re-subscribe failed")
			}
		}),
	)
	if onNotice != nil {
		for _, event := range []string{wire.EventTaskCreated, wire.EventTaskUpdated, wire.EventTaskDeleted} {
			ut.offs = append(ut.offs, s.ch.On(event, func(data json.RawMessage) {
				if ut.isDisposed() {
					return
				}
				var n wire.TaskNotice
				if err := json.Unmarshal(data, &n); err != nil {
					log.WithError(err).WithField("event", event).Warn("malformed task notice")
					return
				}
				onNotice(event, n)
			}))
		}
	}

	s.mu.Lock()
	s.feeds++
	s.mu.Unlock()

	if err := s.ch.Emit(wire.EventSubscribeUserTasks, wire.UserTasksIntent{UserID: userID}); err != nil {
		ut.release(false)
		return nil, err
	}
	log.Info("subscribed to task feed")
	return ut, nil
}

// GetUserTasks fetches userID's feed once.
func (s *Subscriber) GetUserTasks(ctx context.Context, userID uuid.UUID) (wire.UserTasks, error) {
	if !s.ch.Connected() {
		if err := s.ch.Connect(ctx); err != nil {
			return wire.UserTasks{}, err
		}
	}

	got := make(chan wire.UserTasks, 1)
	off := s.ch.On(wire.EventUserTasks, func(data json.RawMessage) {
		var feed wire.UserTasks
		if err := json.Unmarshal(data, &feed); err != nil {
			return
		}
		if userID != uuid.Nil && feed.UserID != userID {
			return
		}
		select {
		case got <- feed:
		default:
		}
	})
	defer off()

	if err := s.ch.Emit(wire.EventGetUserTasks, wire.UserTasksIntent{UserID: userID}); err != nil {
		return wire.UserTasks{}, err
	}
	select {
	case feed := <-got:
		return feed, nil
	case <-ctx.Done():
		return wire.UserTasks{}, ctx.Err()
	}
}

// Dispose removes this feed's handlers. The server stops pushing once the
// last feed subscription on the connection is gone. Safe to call twice.
func (ut *UserTaskSubscription) Dispose() {
	ut.release(true)
}

func (ut *UserTaskSubscription) isDisposed() bool {
	ut.mu.Lock()
	defer ut.mu.Unlock()
	return ut.disposed
}

func (ut *UserTaskSubscription) release(announce bool) {
	ut.mu.Lock()
	if ut.disposed {
		ut.mu.Unlock()
		return
	}
	ut.disposed = true
	offs := ut.offs
	ut.offs = nil
	ut.mu.Unlock()

	for _, off := range offs {
		off()
	}

	s := ut.sub
	s.mu.Lock()
	s.feeds--
	last := s.feeds == 0
	s.mu.Unlock()

	log := s.log.WithFields(logrus.Fields{"user_id": ut.UserID})
	if announce && last && s.ch.Connected() {
		if err := s.ch.Emit(wire.EventUnsubscribeUserTasks, wire.UserTasksIntent{UserID: ut.UserID}); err != nil {
			log.WithError(err).Warn("task feed unsubscribe not sent")
		}
	}
	log.Info("unsubscribed from task feed")
}
