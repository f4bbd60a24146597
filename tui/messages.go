package tui

import (
	"time"
)

// MsgBanner signals that the banner/title should be displayed.
type MsgBanner struct{}

// MsgWorking signals that a command started talking to the server.
type MsgWorking struct{ Action string }

// MsgLoggedIn signals that a credential pair was issued and stored.
type MsgLoggedIn struct {
	Email  string
	Name   string
	Expiry time.Time
}

// MsgSignedUp signals that an account was created.
type MsgSignedUp struct{ Email string }

// MsgLoggedOut signals that the stored credentials were removed.
type MsgLoggedOut struct{}

// MsgUploading signals that a resume upload is in progress.
type MsgUploading struct {
	Name string
	Size int64
}

// MsgDeleted signals that a resume was removed.
type MsgDeleted struct{ ID string }

// MsgRefreshStarted signals that an expired access token started a refresh.
type MsgRefreshStarted struct{ RequestID string }

// MsgRefreshQueued signals that a request is waiting on the in-flight refresh.
type MsgRefreshQueued struct {
	RequestID string
	Position  int
}

// MsgRefreshSucceeded signals that the refresh finished and waiting requests were released.
type MsgRefreshSucceeded struct{ Released int }

// MsgReplaying signals that a request is being sent again with the new token.
type MsgReplaying struct {
	RequestID string
	Attempt   int
}

// MsgSessionTerminated signals that the session ended and the user must log in again.
type MsgSessionTerminated struct{ Err error }

// MsgDone signals that the command finished successfully.
type MsgDone struct{ Summary string }

// MsgFatal signals a fatal error that should terminate the command.
type MsgFatal struct{ Err error }
