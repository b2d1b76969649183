package live_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"taskboard/internal/board"
	"taskboard/internal/live"
	"taskboard/internal/wire"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type feedRecorder struct {
	mu      sync.Mutex
	feeds   []wire.UserTasks
	notices []string
}

func (r *feedRecorder) onTasks(f wire.UserTasks) {
	r.mu.Lock()
	r.feeds = append(r.feeds, f)
	r.mu.Unlock()
}

func (r *feedRecorder) onNotice(event string, _ wire.TaskNotice) {
	r.mu.Lock()
	r.notices = append(r.notices, event)
	r.mu.Unlock()
}

func feedOf(user uuid.UUID, ids ...int64) wire.UserTasks {
	f := wire.UserTasks{UserID: user, Tasks: []board.AssignedTask{}}
	for _, id := range ids {
		f.Tasks = append(f.Tasks, board.AssignedTask{Task: board.Task{ID: id}, BoardID: 1})
	}
	return f
}

func TestSubscribeToUserTasks_DeliversFeedsAndNotices(t *testing.T) {
	// Arrange
	ch := newFakeChannel()
	sub := live.NewSubscriber(ch, quietLog())
	me := uuid.New()
	rec := &feedRecorder{}

	// Act
	ut, err := sub.SubscribeToUserTasks(context.Background(), me, rec.onTasks, rec.onNotice)
	require.NoError(t, err)
	ch.push(t, wire.EventUserTasks, feedOf(me, 1))
	ch.push(t, wire.EventTaskCreated, wire.TaskNotice{TaskID: 2})
	ch.push(t, wire.EventUserTasks, feedOf(me, 1, 2))
	ch.push(t, wire.EventUserTasks, feedOf(uuid.New(), 9))

	// Assert
	assert.Equal(t, []string{wire.EventSubscribeUserTasks}, ch.events())
	require.Len(t, rec.feeds, 2)
	assert.Len(t, rec.feeds[1].Tasks, 2)
	assert.Equal(t, []string{wire.EventTaskCreated}, rec.notices)
	assert.Equal(t, me, ut.UserID)
}

func TestSubscribeToUserTasks_DisposeIsFinal(t *testing.T) {
	ch := newFakeChannel()
	sub := live.NewSubscriber(ch, quietLog())
	me := uuid.New()
	rec := &feedRecorder{}

	ut, err := sub.SubscribeToUserTasks(context.Background(), me, rec.onTasks, rec.onNotice)
	require.NoError(t, err)
	ut.Dispose()
	ut.Dispose()
	ch.push(t, wire.EventUserTasks, feedOf(me, 1))
	ch.push(t, wire.EventTaskDeleted, wire.TaskNotice{TaskID: 1})

	assert.Empty(t, rec.feeds)
	assert.Empty(t, rec.notices)
	assert.Zero(t, ch.handlerCount())
	assert.Equal(t, []string{wire.EventSubscribeUserTasks, wire.EventUnsubscribeUserTasks}, ch.events())
}

func TestSubscribeToUserTasks_LastDisposeUnsubscribes(t *testing.T) {
	ch := newFakeChannel()
	sub := live.NewSubscriber(ch, quietLog())
	me := uuid.New()
	rec := &feedRecorder{}

	first, err := sub.SubscribeToUserTasks(context.Background(), me, rec.onTasks, nil)
	require.NoError(t, err)
	second, err := sub.SubscribeToUserTasks(context.Background(), me, rec.onTasks, nil)
	require.NoError(t, err)

	first.Dispose()
	assert.NotContains(t, ch.events(), wire.EventUnsubscribeUserTasks)
	ch.push(t, wire.EventUserTasks, feedOf(me, 3))
	assert.Len(t, rec.feeds, 1)

	second.Dispose()
	assert.Contains(t, ch.events(), wire.EventUnsubscribeUserTasks)
}

func TestSubscribeToUserTasks_ResubscribesAfterReconnect(t *testing.T) {
	ch := newFakeChannel()
	sub := live.NewSubscriber(ch, quietLog())

	_, err := sub.SubscribeToUserTasks(context.Background(), uuid.New(), func(wire.UserTasks) {}, nil)
	require.NoError(t, err)
	ch.reconnect()

	assert.Equal(t, []string{wire.EventSubscribeUserTasks, wire.EventSubscribeUserTasks}, ch.events())
}

func TestGetUserTasks_WaitsForReply(t *testing.T) {
	ch := newFakeChannel()
	sub := live.NewSubscriber(ch, quietLog())
	me := uuid.New()

	type result struct {
		feed wire.UserTasks
		err  error
	}
	done := make(chan result, 1)
	go func() {
		f, err := sub.GetUserTasks(context.Background(), me)
		done <- result{f, err}
	}()

	require.Eventually(t, func() bool {
		return len(ch.events()) == 1
	}, time.Second, 5*time.Millisecond)
	ch.push(t, wire.EventUserTasks, feedOf(me, 4, 5))

	got := <-done
	require.NoError(t, got.err)
	assert.Len(t, got.feed.Tasks, 2)
	assert.Equal(t, []string{wire.EventGetUserTasks}, ch.events())
	assert.Zero(t, ch.handlerCount())
}

func TestGetUserTasks_HonoursContext(t *testing.T) {
	ch := newFakeChannel()
	sub := live.NewSubscriber(ch, quietLog())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := sub.GetUserTasks(ctx, uuid.New())

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, ch.handlerCount())
}
