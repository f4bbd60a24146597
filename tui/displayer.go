package tui

import (
	"fmt"
	"io"
	"sync"
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/go-authgate/resume-cli/session"
)

// Displayer abstracts all progress output of a command. It also receives
// session events, so a Displayer can be passed to session.WithObserver.
// Command results go to stdout separately; a Displayer writes to stderr.
type Displayer interface {
	session.Observer

	Banner()
	Working(action string)
	LoggedIn(email, name string, expiry time.Time)
	SignedUp(email string)
	LoggedOut()
	Uploading(name string, size int64)
	Deleted(id string)
	Done(summary string)
	Fatal(err error)
}

// PlainDisplayer writes plain text output to w.
// Used when stderr is not a TTY (pipes, CI, SSH without pty).
type PlainDisplayer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewPlainDisplayer creates a PlainDisplayer that writes to w.
func NewPlainDisplayer(w io.Writer) *PlainDisplayer {
	return &PlainDisplayer{w: w}
}

func (p *PlainDisplayer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

func (p *PlainDisplayer) Banner() {
	p.printf("=== Resume Analysis CLI ===\n\n")
}

func (p *PlainDisplayer) Working(action string) {
	p.printf("%s...\n", action)
}

func (p *PlainDisplayer) LoggedIn(email, name string, expiry time.Time) {
	p.printf("Logged in as %s (%s)\n", name, email)
	if !expiry.IsZero() {
		p.printf("Access token expires in %s\n", time.Until(expiry).Round(time.Second))
	}
}

func (p *PlainDisplayer) SignedUp(email string) {
	p.printf("Account created for %s, you can now log in\n", email)
}

func (p *PlainDisplayer) LoggedOut() {
	p.printf("Logged out, stored tokens removed\n")
}

func (p *PlainDisplayer) Uploading(name string, size int64) {
	p.printf("Uploading %s (%d bytes)...\n", name, size)
}

func (p *PlainDisplayer) Deleted(id string) {
	p.printf("Resume %s deleted\n", id)
}

func (p *PlainDisplayer) RefreshStarted(requestID string) {
	p.printf("Access token rejected (401), refreshing... [%s]\n", requestID)
}

func (p *PlainDisplayer) RefreshQueued(requestID string, position int) {
	p.printf("Waiting for token refresh (position %d) [%s]\n", position, requestID)
}

func (p *PlainDisplayer) RefreshSucceeded(released int) {
	p.printf("Token refreshed successfully, retrying %d request(s)\n", released)
}

func (p *PlainDisplayer) Replaying(requestID string, attempt int) {
	p.printf("Retrying request (attempt %d) [%s]\n", attempt+1, requestID)
}

func (p *PlainDisplayer) SessionTerminated(err error) {
	p.printf("Session expired: %v\n", err)
	p.printf("Please log in again with: resume-cli login\n")
}

func (p *PlainDisplayer) Done(summary string) {
	if summary != "" {
		p.printf("%s\n", summary)
	}
}

func (p *PlainDisplayer) Fatal(err error) {
	p.printf("Error: %v\n", err)
}

// NoopDisplayer is a no-op implementation used in tests.
type NoopDisplayer struct {
	session.NopObserver
}

func (NoopDisplayer) Banner()                           {}
func (NoopDisplayer) Working(_ string)                  {}
func (NoopDisplayer) LoggedIn(_, _ string, _ time.Time) {}
func (NoopDisplayer) SignedUp(_ string)                 {}
func (NoopDisplayer) LoggedOut()                        {}
func (NoopDisplayer) Uploading(_ string, _ int64)       {}
func (NoopDisplayer) Deleted(_ string)                  {}
func (NoopDisplayer) Done(_ string)                     {}
func (NoopDisplayer) Fatal(_ error)                     {}

// ProgramDisplayer sends BubbleTea messages to a running tea.Program.
type ProgramDisplayer struct {
	p *tea.Program
}

// NewProgramDisplayer creates a ProgramDisplayer that sends messages to p.
func NewProgramDisplayer(p *tea.Program) *ProgramDisplayer {
	return &ProgramDisplayer{p: p}
}

func (t *ProgramDisplayer) Banner() {
	t.p.Send(MsgBanner{})
}

func (t *ProgramDisplayer) Working(action string) {
	t.p.Send(MsgWorking{Action: action})
}

func (t *ProgramDisplayer) LoggedIn(email, name string, expiry time.Time) {
	t.p.Send(MsgLoggedIn{Email: email, Name: name, Expiry: expiry})
}

func (t *ProgramDisplayer) SignedUp(email string) {
	t.p.Send(MsgSignedUp{Email: email})
}

func (t *ProgramDisplayer) LoggedOut() {
	t.p.Send(MsgLoggedOut{})
}

func (t *ProgramDisplayer) Uploading(name string, size int64) {
	t.p.Send(MsgUploading{Name: name, Size: size})
}

func (t *ProgramDisplayer) Deleted(id string) {
	t.p.Send(MsgDeleted{ID: id})
}

func (t *ProgramDisplayer) RefreshStarted(requestID string) {
	t.p.Send(MsgRefreshStarted{RequestID: requestID})
}

func (t *ProgramDisplayer) RefreshQueued(requestID string, position int) {
	t.p.Send(MsgRefreshQueued{RequestID: requestID, Position: position})
}

func (t *ProgramDisplayer) RefreshSucceeded(released int) {
	t.p.Send(MsgRefreshSucceeded{Released: released})
}

func (t *ProgramDisplayer) Replaying(requestID string, attempt int) {
	t.p.Send(MsgReplaying{RequestID: requestID, Attempt: attempt})
}

func (t *ProgramDisplayer) SessionTerminated(err error) {
	t.p.Send(MsgSessionTerminated{Err: err})
}

func (t *ProgramDisplayer) Done(summary string) {
	t.p.Send(MsgDone{Summary: summary})
}

func (t *ProgramDisplayer) Fatal(err error) {
	t.p.Send(MsgFatal{Err: err})
}
