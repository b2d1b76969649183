package main

import (
	"bytes"
	"strings"
	"testing"

	"taskboard/internal/board"
	"taskboard/internal/projector"
	"taskboard/internal/wire"

	"github.com/docopt/docopt-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilter(t *testing.T) {
	f, err := parseFilter(docopt.Opts{"--search": "login", "--priority": "high", "--mine": true})
	require.NoError(t, err)
	assert.Equal(t, projector.Filter{Search: "login", Priority: board.High, AssignedToMe: true}, f)

	f, err = parseFilter(docopt.Opts{"--search": nil, "--priority": nil, "--mine": false})
	require.NoError(t, err)
	assert.True(t, f.IsZero())

	_, err = parseFilter(docopt.Opts{"--priority": "urgent"})
	assert.Error(t, err)
}

func TestParseID(t *testing.T) {
	id, err := parseID(docopt.Opts{"<board_id>": "12"}, "<board_id>")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	_, err = parseID(docopt.Opts{"<board_id>": "-1"}, "<board_id>")
	assert.EqualError(t, err, `invalid board_id "-1"`)
}

func TestRender(t *testing.T) {
	s := board.NewSnapshot(3, "Platform")
	s.Columns[board.Todo].Tasks = []board.Task{
		{ID: 1, Title: "Write docs", Priority: board.Low, AssignedUsers: []board.UserRef{{ID: uuid.New(), FirstName: "Ada", LastName: "L"}}},
		{ID: 2, Title: "Fix login", Priority: board.High},
	}
	s.Columns[board.Completed].Tasks = []board.Task{{ID: 3, Title: "Setup", Priority: board.Medium}}

	var buf bytes.Buffer
	render(&buf, projector.Project(s, projector.Filter{Priority: board.High}, uuid.Nil))

	out := buf.String()
	assert.Contains(t, out, "== Platform (#3) 0% done ==")
	assert.Contains(t, out, "To Do [1/2]")
	assert.Contains(t, out, "#2 HIGH   Fix login")
	assert.NotContains(t, out, "Write docs")
}

func TestRenderFeed(t *testing.T) {
	f := wire.UserTasks{Tasks: []board.AssignedTask{
		{Task: board.Task{ID: 4, Title: "Ship", Priority: board.High, Status: board.InReview}, BoardID: 2, BoardName: "Mobile"},
		{Task: board.Task{ID: 5, Title: "Docs", Priority: board.Low, Status: board.Todo}, BoardID: 1, BoardName: "Platform"},
		{Task: board.Task{ID: 9, Title: "Fix", Priority: board.Medium, Status: board.Completed}, BoardID: 2, BoardName: "Mobile"},
	}}

	var buf bytes.Buffer
	renderFeed(&buf, f)

	out := buf.String()
	assert.Contains(t, out, "== 3 task(s) assigned to you ==")
	assert.Less(t, strings.Index(out, "Platform (#1)"), strings.Index(out, "Mobile (#2)"))
	assert.Equal(t, 1, strings.Count(out, "Mobile (#2)"))
	assert.Contains(t, out, "#4 HIGH   Ship [In Review]")
}
