package notify_test

import (
	"bytes"
	"testing"

	"taskboard/internal/notify"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestChannel_DropsWhenFull(t *testing.T) {
	c := notify.NewChannel(1)

	c.Notify(notify.Notification{Kind: notify.Success})
	c.Notify(notify.Notification{Kind: notify.Error})

	n := <-c.C
	assert.Equal(t, notify.Success, n.Kind)
	assert.False(t, n.Time.IsZero())
	assert.Equal(t, 1, c.Dropped())
}

func TestMultiAndLog(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	c := notify.NewChannel(4)

	notify.Multi{c, notify.Log{Entry: logrus.NewEntry(l)}}.Notify(notify.Notification{
		Kind: notify.Denied, Title: "Access denied", Message: "nope", TaskID: 42,
	})

	assert.Len(t, c.C, 1)
	assert.Contains(t, buf.String(), "Access denied: nope")
	assert.Contains(t, buf.String(), "task_id=42")
}
