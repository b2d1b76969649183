package main

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"

	"taskboard/internal/board"
	"taskboard/internal/projector"
	"taskboard/internal/wire"
)

func render(w io.Writer, v projector.View) {
	fmt.Fprintf(w, "== %s (#%d) %d%% done ==\n", v.BoardName, v.BoardID, v.Progress.Percent())
	for _, col := range v.Columns {
		count := fmt.Sprintf("%d", len(col.Tasks))
		if len(col.Tasks) != col.Total {
			count = fmt.Sprintf("%d/%d", len(col.Tasks), col.Total)
		}
		fmt.Fprintf(w, "%s [%s]\n", col.Title, count)
		for _, t := range col.Tasks {
			fmt.Fprintln(w, taskLine(t))
		}
	}
}

// renderFeed prints a user's tasks grouped by board.
func renderFeed(w io.Writer, f wire.UserTasks) {
	fmt.Fprintf(w, "== %d task(s) assigned to you ==\n", len(f.Tasks))
	sorted := slices.Clone(f.Tasks)
	slices.SortStableFunc(sorted, func(a, b board.AssignedTask) int {
		return cmp.Compare(a.BoardID, b.BoardID)
	})
	var last int64
	for _, t := range sorted {
		if t.BoardID != last {
			fmt.Fprintf(w, "%s (#%d)\n", t.BoardName, t.BoardID)
			last = t.BoardID
		}
		fmt.Fprintf(w, "%s [%s]\n", taskLine(t.Task), t.Status.Title())
	}
}

func taskLine(t board.Task) string {
	names := make([]string, 0, len(t.AssignedUsers))
	for _, u := range t.AssignedUsers {
		names = append(names, strings.TrimSpace(u.FirstName+" "+u.LastName))
	}
	line := fmt.Sprintf("  #%d %-6s %s", t.ID, t.Priority, t.Title)
	if len(names) > 0 {
		line += " (" + strings.Join(names, ", ") + ")"
	}
	return line
}
