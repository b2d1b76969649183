// Package drag turns a pick-up/drop gesture into a permission-checked,
// optimistic task move that is confirmed or rolled back by the server.
package drag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"taskboard/internal/board"
	"taskboard/internal/notify"
	"taskboard/internal/permission"
	"taskboard/internal/session"
	"taskboard/internal/store"

	"github.com/sirupsen/logrus"
)

type State int

const (
	Idle State = iota
	Dragging
	Committing
)

func (s State) String() string {
	switch s {
	case Dragging:
		return "dragging"
	case Committing:
		return "committing"
	}
	return "idle"
}

var (
	ErrBusy         = errors.New("a drag is already in progress")
	ErrNotDragging  = errors.New("no drag in progress")
	ErrTaskNotFound = errors.New("task not found on board")
)

// TaskMutator persists a status change.
type TaskMutator interface {
	UpdateTaskStatus(ctx context.Context, taskID int64, to board.ColumnKey) error
}

// BoardFetcher loads a board snapshot outside the live channel.
type BoardFetcher interface {
	FetchBoard(ctx context.Context, boardID int64) (*board.Snapshot, error)
}

type Controller struct {
	store    *store.Store
	identity session.Provider
	mutator  TaskMutator
	fetcher  BoardFetcher
	notifier notify.Notifier
	log      *logrus.Entry

	// RequestTimeout bounds each status-change request and its rollback fetch.
	RequestTimeout time.Duration

	mu     sync.Mutex
	state  State
	active *board.Task
	from   board.ColumnKey

	inflight sync.WaitGroup
}

func NewController(st *store.Store, identity session.Provider, mutator TaskMutator, fetcher BoardFetcher, n notify.Notifier, log *logrus.Entry) *Controller {
	if n == nil {
		n = notify.Discard
	}
	return &Controller{
		store:          st,
		identity:       identity,
		mutator:        mutator,
		fetcher:        fetcher,
		notifier:       n,
		log:            log,
		RequestTimeout: 10 * time.Second,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active returns a copy of the task being dragged, or nil.
func (c *Controller) Active() *board.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil
	}
	t := *c.active
	return &t
}

// PickUp starts dragging taskID if the current user may move it.
func (c *Controller) PickUp(taskID int64) error {
	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return ErrBusy
	}

	task, from, ok := c.store.Task(taskID)
	if !ok {
		c.mu.Unlock()
		return ErrTaskNotFound
	}
	gate := c.identity.Identity().Gate()
	if !gate.CanMoveTask(task.AssigneeIDs()) {
		c.mu.Unlock()
		denial := permission.Deny(permission.ActionMove)
		c.deny(taskID, denial)
		return denial
	}

	c.state = Dragging
	c.active = &task
	c.from = from
	c.mu.Unlock()

	c.log.WithField("task_id", taskID).Debug("drag started")
	return nil
}

// Cancel abandons the current drag without touching the store.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Dragging {
		c.reset()
	}
}

// Drop ends the drag over target. The task's column and assignees are read
// from the store again, since a broadcast may have changed them mid-drag.
// An invalid target or the task's current column ends the drag without any
// change. Otherwise the move is applied locally right away and persisted in
// the background; Wait blocks until that is done.
func (c *Controller) Drop(ctx context.Context, target board.ColumnKey) error {
	c.mu.Lock()
	if c.state != Dragging {
		c.mu.Unlock()
		return ErrNotDragging
	}
	taskID := c.active.ID
	if !target.Valid() {
		c.reset()
		c.mu.Unlock()
		return nil
	}
	task, from, ok := c.store.Task(taskID)
	if !ok {
		c.reset()
		c.mu.Unlock()
		c.abandoned(taskID, "The task is no longer on this board.")
		return ErrTaskNotFound
	}
	if target == from {
		c.reset()
		c.mu.Unlock()
		return nil
	}
	c.state = Committing
	c.mu.Unlock()

	// Store listeners and notifiers below run unlocked.
	defer func() {
		c.mu.Lock()
		c.reset()
		c.mu.Unlock()
	}()

	gate := c.identity.Identity().Gate()
	if err := gate.CheckTransition(task.AssigneeIDs(), target); err != nil {
		var denial *permission.Denial
		if errors.As(err, &denial) {
			c.deny(task.ID, denial)
		}
		return err
	}

	if err := c.store.ApplyOptimisticMove(task.ID, from, target); err != nil {
		c.abandoned(task.ID, "The board changed while moving the task. Please try again.")
		return fmt.Errorf("failed to apply move: %w", err)
	}
	c.log.WithFields(logrus.Fields{
		"task_id": task.ID,
		"from":    from,
		"to":      target,
	}).Info("optimistic move applied")

	boardID := c.store.BoardID()
	c.inflight.Add(1)
	go c.persist(context.WithoutCancel(ctx), boardID, task, target)
	return nil
}

// Wait blocks until every issued status-change request has settled.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

func (c *Controller) persist(ctx context.Context, boardID int64, task board.Task, to board.ColumnKey) {
	defer c.inflight.Done()

	reqCtx, cancel := context.WithTimeout(ctx, c.RequestTimeout)
	err := c.mutator.UpdateTaskStatus(reqCtx, task.ID, to)
	cancel()
	if err == nil {
		c.notifier.Notify(notify.Notification{
			Kind:    notify.Success,
			Title:   "Task moved",
			Message: fmt.Sprintf("%q moved to %s", task.Title, to.Title()),
			TaskID:  task.ID,
			Time:    time.Now(),
		})
		return
	}

	log := c.log.WithField("task_id", task.ID).WithError(err)
	log.Warn("status change rejected, reloading board")
	c.notifier.Notify(notify.Notification{
		Kind:    notify.Error,
		Title:   "Move failed",
		Message: "The task could not be moved. The board has been reloaded.",
		TaskID:  task.ID,
		Time:    time.Now(),
	})

	fetchCtx, cancel := context.WithTimeout(ctx, c.RequestTimeout)
	defer cancel()
	snap, err := c.fetcher.FetchBoard(fetchCtx, boardID)
	if err != nil {
		log.WithError(err).Error("failed to reload board after rejected move")
		return
	}
	// The user may have switched boards while the request was in flight.
	if c.store.BoardID() != boardID {
		return
	}
	c.store.ApplySnapshot(snap)
}

func (c *Controller) deny(taskID int64, d *permission.Denial) {
	c.log.WithFields(logrus.Fields{
		"task_id": taskID,
		"action":  d.Action,
	}).Info("move denied")
	c.notifier.Notify(notify.Notification{
		Kind:    notify.Denied,
		Title:   "Permission Denied",
		Message: d.Message(),
		TaskID:  taskID,
		Time:    time.Now(),
	})
}

func (c *Controller) abandoned(taskID int64, msg string) {
	c.log.WithField("task_id", taskID).Warn("move abandoned")
	c.notifier.Notify(notify.Notification{
		Kind:    notify.Error,
		Title:   "Move cancelled",
		Message: msg,
		TaskID:  taskID,
		Time:    time.Now(),
	})
}

func (c *Controller) reset() {
	c.state = Idle
	c.active = nil
	c.from = ""
}
