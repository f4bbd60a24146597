package tui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-authgate/resume-cli/session"
)

var (
	_ Displayer = (*PlainDisplayer)(nil)
	_ Displayer = (*ProgramDisplayer)(nil)
	_ Displayer = NoopDisplayer{}
)

func update(t *testing.T, m Model, msgs ...any) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		var ok bool
		if m, ok = next.(Model); !ok {
			t.Fatalf("Update returned %T, want Model", next)
		}
	}
	return m
}

func TestModel_RefreshLifecycle(t *testing.T) {
	m := update(t, NewModel(),
		MsgWorking{Action: "Fetching resumes"},
		MsgRefreshStarted{RequestID: "a"},
		MsgRefreshQueued{RequestID: "b", Position: 2},
		MsgRefreshQueued{RequestID: "c", Position: 3},
	)

	if m.state != stateRefreshing {
		t.Fatalf("state = %v, want stateRefreshing", m.state)
	}
	if !strings.Contains(m.viewMain(), "3 requests waiting") {
		t.Errorf("main view does not show waiting requests:\n%s", m.viewMain())
	}

	m = update(t, m, MsgRefreshSucceeded{Released: 3})
	if m.state != stateWorking || m.waiting != 0 {
		t.Errorf("state = %v waiting = %d after refresh, want stateWorking/0", m.state, m.waiting)
	}

	m = update(t, m, MsgDone{Summary: "3 resumes"})
	if !strings.Contains(m.viewSuccess(), "3 resumes") {
		t.Errorf("success view missing summary:\n%s", m.viewSuccess())
	}
}

func TestModel_QueuedBeforeStarted(t *testing.T) {
	m := update(t, NewModel(),
		MsgWorking{Action: "Fetching resumes"},
		MsgRefreshQueued{RequestID: "b", Position: 2},
		MsgRefreshStarted{RequestID: "a"},
	)

	if m.state != stateRefreshing {
		t.Fatalf("state = %v, want stateRefreshing", m.state)
	}
	if m.waiting != 2 {
		t.Errorf("waiting = %d, want 2", m.waiting)
	}
}

func TestModel_SessionTerminatedShowsLoginHint(t *testing.T) {
	err := errors.Join(session.ErrAuthRequired, session.ErrRefreshRejected)
	m := update(t, NewModel(),
		MsgWorking{Action: "Fetching profile"},
		MsgRefreshStarted{RequestID: "a"},
		MsgSessionTerminated{Err: err},
		MsgFatal{Err: err},
	)

	view := m.viewError()
	if !strings.Contains(view, "Session expired") {
		t.Errorf("error view missing title:\n%s", view)
	}
	if !strings.Contains(view, "resume-cli login") {
		t.Errorf("error view missing login hint:\n%s", view)
	}
}

func TestModel_StatusLogIsBounded(t *testing.T) {
	m := NewModel()
	for range maxStatusLines + 5 {
		m = update(t, m, MsgDeleted{ID: "x"})
	}
	if len(m.statusLines) != maxStatusLines {
		t.Errorf("status lines = %d, want %d", len(m.statusLines), maxStatusLines)
	}
}

func TestPlainDisplayer(t *testing.T) {
	var buf bytes.Buffer
	d := NewPlainDisplayer(&buf)

	d.LoggedIn("ada@example.com", "Ada", time.Now().Add(5*time.Minute))
	d.RefreshStarted("req-1")
	d.RefreshQueued("req-2", 2)
	d.RefreshSucceeded(2)
	d.Replaying("req-1", 1)
	d.SessionTerminated(session.ErrAuthRequired)

	out := buf.String()
	for _, want := range []string{
		"Logged in as Ada (ada@example.com)",
		"Access token expires in",
		"refreshing... [req-1]",
		"position 2",
		"retrying 2 request(s)",
		"attempt 2",
		"resume-cli login",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatSize(t *testing.T) {
	tests := map[int64]string{
		512:     "512 B",
		2048:    "2.0 KB",
		5 << 20: "5.0 MB",
	}
	for n, want := range tests {
		if got := formatSize(n); got != want {
			t.Errorf("formatSize(%d) = %q, want %q", n, got, want)
		}
	}
}
