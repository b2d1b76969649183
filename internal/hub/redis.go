package hub

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"taskboard/internal/wire"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Broadcaster pushes current state to locally connected clients.
type Broadcaster interface {
	Broadcast(ctx context.Context, boardID int64) error
	BroadcastTask(ctx context.Context, change wire.TaskChange) error
}

// Local receives changes when redis is unreachable.
type Local interface {
	BoardChanged(ctx context.Context, boardID int64)
	TaskChanged(ctx context.Context, change wire.TaskChange)
}

// RedisAnnouncer publishes changed board ids so that every server instance
// broadcasts to its own clients. Task changes travel as JSON on a sibling
// channel named "<channel>:tasks".
type RedisAnnouncer struct {
	rc       *redis.Client
	channel  string
	fallback Local
	log      *logrus.Entry

	// RetryDelay is the pause before resubscribing after the pubsub channel closes.
	RetryDelay time.Duration
}

func NewRedisAnnouncer(rc *redis.Client, channel string, fallback Local, log *logrus.Entry) *RedisAnnouncer {
	return &RedisAnnouncer{
		rc:         rc,
		channel:    channel,
		fallback:   fallback,
		log:        log,
		RetryDelay: time.Second,
	}
}

func (a *RedisAnnouncer) BoardChanged(ctx context.Context, boardID int64) {
	err := a.rc.Publish(ctx, a.channel, strconv.FormatInt(boardID, 10)).Err()
	if err == nil {
		return
	}
	fanoutErrors.WithLabelValues("publish").Inc()
	a.log.WithError(err).WithField("board_id", boardID).Warn("publish failed, broadcasting locally")
	if a.fallback != nil {
		a.fallback.BoardChanged(ctx, boardID)
	}
}

func (a *RedisAnnouncer) TaskChanged(ctx context.Context, change wire.TaskChange) {
	payload, err := json.Marshal(change)
	if err == nil {
		err = a.rc.Publish(ctx, a.taskChannel(), payload).Err()
	}
	if err == nil {
		return
	}
	fanoutErrors.WithLabelValues("publish").Inc()
	a.log.WithError(err).WithField("task_id", change.TaskID).Warn("publish failed, pushing feeds locally")
	if a.fallback != nil {
		a.fallback.TaskChanged(ctx, change)
	}
}

func (a *RedisAnnouncer) taskChannel() string {
	return a.channel + ":tasks"
}

// Listen relays published changes to b until ctx is done.
func (a *RedisAnnouncer) Listen(ctx context.Context, b Broadcaster) error {
	for {
		sub := a.rc.Subscribe(ctx, a.channel, a.taskChannel())
		a.relay(ctx, sub.Channel(), b)
		if err := sub.Close(); err != nil {
			a.log.WithError(err).Debug("pubsub close")
		}
		if ctx.Err() != nil {
			return nil
		}
		fanoutErrors.WithLabelValues("subscribe").Inc()
		a.log.Error("pubsub channel closed, reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(a.RetryDelay):
		}
	}
}

func (a *RedisAnnouncer) relay(ctx context.Context, ch <-chan *redis.Message, b Broadcaster) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg.Channel == a.taskChannel() {
				a.relayTask(ctx, msg.Payload, b)
				continue
			}
			boardID, err := strconv.ParseInt(msg.Payload, 10, 64)
			if err != nil {
				a.log.WithField("payload", msg.Payload).Warn("unable to parse board id")
				continue
			}
			if err := b.Broadcast(ctx, boardID); err != nil {
				a.log.WithError(err).WithField("board_id", boardID).Error("broadcast failed")
			}
		}
	}
}

func (a *RedisAnnouncer) relayTask(ctx context.Context, payload string, b Broadcaster) {
	var change wire.TaskChange
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		a.log.WithField("payload", payload).Warn("unable to parse task change")
		return
	}
	if err := b.BroadcastTask(ctx, change); err != nil {
		a.log.WithError(err).WithField("task_id", change.TaskID).Error("task feed push failed")
	}
}
