// Package notify carries user-visible, non-blocking notifications from the
// sync engine to whatever renders them.
package notify

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Kind string

const (
	Denied  Kind = "denied"
	Success Kind = "success"
	Error   Kind = "error"
	Info    Kind = "info"
)

type Notification struct {
	Kind    Kind      `json:"kind"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	TaskID  int64     `json:"task_id,omitempty"`
	Time    time.Time `json:"time"`
}

// Notifier must not block the caller.
type Notifier interface {
	Notify(Notification)
}

type Func func(Notification)

func (f Func) Notify(n Notification) { f(n) }

// Channel delivers notifications on a buffered channel and drops them when
// the buffer is full.
type Channel struct {
	C chan Notification

	mu      sync.Mutex
	dropped int
}

func NewChannel(size int) *Channel {
	return &Channel{C: make(chan Notification, size)}
}

func (c *Channel) Notify(n Notification) {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}
	select {
	case c.C <- n:
	default:
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
	}
}

func (c *Channel) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Log writes notifications to a logrus entry.
type Log struct {
	Entry *logrus.Entry
}

func (l Log) Notify(n Notification) {
	e := l.Entry.WithFields(logrus.Fields{"kind": n.Kind, "task_id": n.TaskID})
	switch n.Kind {
	case Error:
		e.Errorf("%s: %s", n.Title, n.Message)
	case Denied:
		e.Warnf("%s: %s", n.Title, n.Message)
	default:
		e.Infof("%s: %s", n.Title, n.Message)
	}
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(n Notification) {
	for _, x := range m {
		x.Notify(n)
	}
}

// Discard drops everything.
var Discard Notifier = Func(func(Notification) {})
