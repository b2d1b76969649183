// Package hub serves the live board channel. Clients join one room per
// board and receive a full snapshot whenever that board changes. A client
// may also follow its own task feed across boards.
package hub

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"taskboard/internal/board"
	"taskboard/internal/middleware"
	"taskboard/internal/repository"
	"taskboard/internal/wire"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

// SnapshotSource loads the current state of a board.
type SnapshotSource interface {
	Snapshot(ctx context.Context, boardID int64) (*board.Snapshot, error)
}

// UserTaskSource lists the tasks assigned to a user.
type UserTaskSource interface {
	AssignedTo(ctx context.Context, userID uuid.UUID) ([]board.AssignedTask, error)
}

type Hub struct {
	source   SnapshotSource
	tasks    UserTaskSource
	log      *logrus.Entry
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	rooms   map[int64]map[*client]struct{}
	feeds   map[uuid.UUID]map[*client]struct{}
	locks   map[roomKey]*roomLock
}

type client struct {
	id       uuid.UUID
	userID   uuid.UUID
	ws       *websocket.Conn
	send     chan []byte
	boards   map[int64]struct{}
	watching bool
	closed   bool
}

// roomKey names either a board room or a user feed.
type roomKey struct {
	board int64
	user  uuid.UUID
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func New(source SnapshotSource, tasks UserTaskSource, log *logrus.Entry) *Hub {
	return &Hub{
		source: source,
		tasks:  tasks,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
		rooms:   make(map[int64]map[*client]struct{}),
		feeds:   make(map[uuid.UUID]map[*client]struct{}),
		locks:   make(map[roomKey]*roomLock),
	}
}

// ServeWS upgrades an authenticated request and runs the connection until
// it closes.
func (h *Hub) ServeWS(c *gin.Context) {
	userID, _ := c.Get(middleware.UserIDKey)
	uid, _ := userID.(uuid.UUID)

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	cl := &client{
		id:     uuid.New(),
		userID: uid,
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		boards: make(map[int64]struct{}),
	}
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
	connectionsGauge.Inc()
	h.log.WithFields(logrus.Fields{"client_id": cl.id, "user_id": uid}).Info("client connected")

	go h.writePump(cl)
	h.readPump(c.Request.Context(), cl)
}

// Broadcast sends a fresh snapshot of boardID to every client in its room.
// Clients whose send buffer is full are disconnected. Concurrent broadcasts
// for one board are delivered in the order their snapshots were loaded.
func (h *Hub) Broadcast(ctx context.Context, boardID int64) error {
	unlock := h.lockRoom(roomKey{board: boardID})
	defer unlock()

	if h.members(boardID) == 0 {
		return nil
	}
	snap, err := h.source.Snapshot(ctx, boardID)
	if err != nil {
		return err
	}
	msg, err := wire.Encode(wire.EventBoardUpdated, wire.BoardUpdated{
		BoardID:   boardID,
		Timestamp: time.Now().UTC(),
		Snapshot:  *snap,
	})
	if err != nil {
		return err
	}

	h.mu.Lock()
	sent := h.fanoutLocked(h.rooms[boardID], msg)
	h.mu.Unlock()
	broadcastsTotal.Inc()
	h.log.WithFields(logrus.Fields{"board_id": boardID, "clients": sent}).Debug("board update broadcast")
	return nil
}

// BroadcastTask tells every user in change.Users that one of their tasks
// changed, then sends each of them a fresh feed.
func (h *Hub) BroadcastTask(ctx context.Context, change wire.TaskChange) error {
	notice, err := wire.Encode(change.Event, wire.TaskNotice{
		TaskID:  change.TaskID,
		BoardID: change.BoardID,
		Title:   change.Title,
		Message: noticeMessage(change.Event),
	})
	if err != nil {
		return err
	}

	var result *multierror.Error
	for _, userID := range change.Users {
		if err := h.pushFeed(ctx, userID, notice); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// pushFeed sends notice and the current feed to userID's watchers.
func (h *Hub) pushFeed(ctx context.Context, userID uuid.UUID, notice []byte) error {
	unlock := h.lockRoom(roomKey{user: userID})
	defer unlock()

	h.mu.Lock()
	n := len(h.feeds[userID])
	h.mu.Unlock()
	if n == 0 {
		return nil
	}
	tasks, err := h.tasks.AssignedTo(ctx, userID)
	if err != nil {
		return err
	}
	msg, err := wire.Encode(wire.EventUserTasks, feed(userID, tasks))
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.fanoutLocked(h.feeds[userID], notice)
	h.fanoutLocked(h.feeds[userID], msg)
	h.mu.Unlock()
	h.log.WithFields(logrus.Fields{"user_id": userID, "tasks": len(tasks)}).Debug("task feed pushed")
	return nil
}

// fanoutLocked queues msg for every client in set and returns how many got
// it. Caller holds h.mu.
func (h *Hub) fanoutLocked(set map[*client]struct{}, msg []byte) int {
	sent := 0
	for cl := range set {
		select {
		case cl.send <- msg:
			sent++
		default:
			droppedClients.Inc()
			h.log.WithField("client_id", cl.id).Warn("dropping slow client")
			h.removeLocked(cl)
		}
	}
	return sent
}

// BoardChanged broadcasts on the local hub.
func (h *Hub) BoardChanged(ctx context.Context, boardID int64) {
	if err := h.Broadcast(ctx, boardID); err != nil {
		h.log.WithError(err).WithField("board_id", boardID).Error("broadcast failed")
	}
}

// TaskChanged pushes task feeds on the local hub.
func (h *Hub) TaskChanged(ctx context.Context, change wire.TaskChange) {
	if err := h.BroadcastTask(ctx, change); err != nil {
		h.log.WithError(err).WithField("task_id", change.TaskID).Error("task feed push failed")
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		h.removeLocked(cl)
	}
}

func (h *Hub) members(boardID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[boardID])
}

// lockRoom serializes load-and-send for one room, so no member ever gets an
// older state after a newer one. The returned func releases it.
func (h *Hub) lockRoom(k roomKey) func() {
	h.mu.Lock()
	l, ok := h.locks[k]
	if !ok {
		l = &roomLock{}
		h.locks[k] = l
	}
	l.refs++
	h.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		h.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(h.locks, k)
		}
		h.mu.Unlock()
	}
}

func (h *Hub) readPump(ctx context.Context, cl *client) {
	defer func() {
		h.mu.Lock()
		h.removeLocked(cl)
		h.mu.Unlock()
		cl.ws.Close()
		h.log.WithField("client_id", cl.id).Info("client disconnected")
	}()

	cl.ws.SetReadLimit(maxMessageSize)
	cl.ws.SetReadDeadline(time.Now().Add(pongWait))
	cl.ws.SetPongHandler(func(string) error {
		return cl.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := cl.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.WithError(err).Warn("websocket read error")
			}
			return
		}
		env, err := wire.Decode(msg)
		if err != nil {
			h.reply(cl, wire.EventError, wire.ErrorPayload{Message: "malformed message", Code: "bad_request"})
			continue
		}
		h.handle(ctx, cl, env)
	}
}

func (h *Hub) writePump(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-cl.send:
			cl.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				cl.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			cl.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) handle(ctx context.Context, cl *client, env wire.Envelope) {
	switch env.Event {
	case wire.EventSubscribeBoard:
		var in wire.SubscribeIntent
		if err := decode(env.Data, &in); err != nil || in.BoardID <= 0 {
			h.reply(cl, wire.EventError, wire.ErrorPayload{Message: "invalid board id", Code: "bad_request"})
			return
		}
		h.subscribe(ctx, cl, in.BoardID)
	case wire.EventUnsubscribeBoard:
		var in wire.UnsubscribeIntent
		if err := decode(env.Data, &in); err != nil {
			return
		}
		h.leave(cl, in.BoardID)
	case wire.EventGetUserTasks, wire.EventSubscribeUserTasks:
		var in wire.UserTasksIntent
		if err := decode(env.Data, &in); err != nil {
			in = wire.UserTasksIntent{}
		}
		if in.UserID != uuid.Nil && in.UserID != cl.userID {
			h.reply(cl, wire.EventError, wire.ErrorPayload{Message: "cannot read another user's tasks", Code: "forbidden"})
			return
		}
		h.sendFeed(ctx, cl, env.Event == wire.EventSubscribeUserTasks)
	case wire.EventUnsubscribeUserTasks:
		h.unwatch(cl)
	default:
		h.log.WithField("event", env.Event).Debug("ignoring unknown event")
	}
}

func (h *Hub) subscribe(ctx context.Context, cl *client, boardID int64) {
	log := h.log.WithFields(logrus.Fields{"client_id": cl.id, "board_id": boardID})
	unlock := h.lockRoom(roomKey{board: boardID})
	defer unlock()

	// Joining first means a broadcast queued behind us will reach this client.
	h.mu.Lock()
	if cl.closed {
		h.mu.Unlock()
		return
	}
	_, already := cl.boards[boardID]
	if !already {
		cl.boards[boardID] = struct{}{}
		if h.rooms[boardID] == nil {
			h.rooms[boardID] = make(map[*client]struct{})
		}
		h.rooms[boardID][cl] = struct{}{}
		subscriptionsGauge.Inc()
	}
	h.mu.Unlock()

	snap, err := h.source.Snapshot(ctx, boardID)
	if err != nil {
		if !already {
			h.leave(cl, boardID)
		}
		if errors.Is(err, repository.ErrBoardNotFound) {
			h.reply(cl, wire.EventError, wire.ErrorPayload{Message: "board not found", Code: "not_found", BoardID: boardID})
			return
		}
		log.WithError(err).Error("failed to load board for subscriber")
		h.reply(cl, wire.EventError, wire.ErrorPayload{Message: "failed to load board", Code: "internal", BoardID: boardID})
		return
	}

	log.WithField("user_id", cl.userID).Info("client subscribed")
	h.reply(cl, wire.EventBoardData, snap)
}

// sendFeed replies with the caller's task feed and, when watch is set,
// keeps the client on it for later changes.
func (h *Hub) sendFeed(ctx context.Context, cl *client, watch bool) {
	log := h.log.WithFields(logrus.Fields{"client_id": cl.id, "user_id": cl.userID})
	unlock := h.lockRoom(roomKey{user: cl.userID})
	defer unlock()

	if watch {
		h.mu.Lock()
		if cl.closed {
			h.mu.Unlock()
			return
		}
		if !cl.watching {
			cl.watching = true
			if h.feeds[cl.userID] == nil {
				h.feeds[cl.userID] = make(map[*client]struct{})
			}
			h.feeds[cl.userID][cl] = struct{}{}
			subscriptionsGauge.Inc()
		}
		h.mu.Unlock()
	}

	tasks, err := h.tasks.AssignedTo(ctx, cl.userID)
	if err != nil {
		log.WithError(err).Error("failed to load task feed")
		h.reply(cl, wire.EventError, wire.ErrorPayload{Message: "failed to load tasks", Code: "internal"})
		return
	}
	if watch {
		log.Info("client watching task feed")
	}
	h.reply(cl, wire.EventUserTasks, feed(cl.userID, tasks))
}

func (h *Hub) unwatch(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unwatchLocked(cl)
}

func (h *Hub) unwatchLocked(cl *client) {
	if !cl.watching {
		return
	}
	cl.watching = false
	delete(h.feeds[cl.userID], cl)
	if len(h.feeds[cl.userID]) == 0 {
		delete(h.feeds, cl.userID)
	}
	subscriptionsGauge.Dec()
}

func (h *Hub) leave(cl *client, boardID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(cl, boardID)
}

func (h *Hub) leaveLocked(cl *client, boardID int64) {
	if _, ok := cl.boards[boardID]; !ok {
		return
	}
	delete(cl.boards, boardID)
	delete(h.rooms[boardID], cl)
	if len(h.rooms[boardID]) == 0 {
		delete(h.rooms, boardID)
	}
	subscriptionsGauge.Dec()
}

// removeLocked detaches cl from every room and closes its send channel.
func (h *Hub) removeLocked(cl *client) {
	if cl.closed {
		return
	}
	cl.closed = true
	for id := range cl.boards {
		h.leaveLocked(cl, id)
	}
	h.unwatchLocked(cl)
	delete(h.clients, cl)
	close(cl.send)
	connectionsGauge.Dec()
}

func (h *Hub) reply(cl *client, event string, data any) {
	msg, err := wire.Encode(event, data)
	if err != nil {
		h.log.WithError(err).Error("failed to encode reply")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if cl.closed {
		return
	}
	select {
	case cl.send <- msg:
	default:
		droppedClients.Inc()
		h.removeLocked(cl)
	}
}

func feed(userID uuid.UUID, tasks []board.AssignedTask) wire.UserTasks {
	if tasks == nil {
		tasks = []board.AssignedTask{}
	}
	return wire.UserTasks{UserID: userID, Tasks: tasks, Timestamp: time.Now().UTC()}
}

func noticeMessage(event string) string {
	switch event {
	case wire.EventTaskCreated:
		return "You were assigned a new task"
	case wire.EventTaskDeleted:
		return "A task assigned to you was deleted"
	}
	return "A task assigned to you was updated"
}
