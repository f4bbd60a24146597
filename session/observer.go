package session

// Observer receives session lifecycle events. Implementations must be safe
// for concurrent use and must not block: events are delivered from request
// goroutines and from the refresh goroutine.
type Observer interface {
	// RefreshStarted fires when requestID's expired credential starts a
	// refresh, right before the refresh call goes out. It does not fire when
	// there is no refresh credential to exchange. It may arrive after
	// RefreshQueued events of the same refresh.
	RefreshStarted(requestID string)
	// RefreshQueued fires when requestID joins an in-flight refresh.
	// position is 1-based and counts the request that started the refresh.
	RefreshQueued(requestID string, position int)
	// RefreshSucceeded fires once per successful refresh with the number of
	// requests released for replay.
	RefreshSucceeded(released int)
	// Replaying fires right before requestID is handed to the transport
	// again with a fresh credential.
	Replaying(requestID string, attempt int)
	// SessionTerminated fires exactly once per failed refresh, after the
	// store has been cleared and every waiting request has been rejected.
	// The receiver is expected to send the user back to login.
	SessionTerminated(err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) RefreshStarted(string)     {}
func (NopObserver) RefreshQueued(string, int) {}
func (NopObserver) RefreshSucceeded(int)      {}
func (NopObserver) Replaying(string, int)     {}
func (NopObserver) SessionTerminated(error)   {}

// Observers fans every event out to each of obs in order.
func Observers(obs ...Observer) Observer {
	return multiObserver(obs)
}

type multiObserver []Observer

func (m multiObserver) RefreshStarted(requestID string) {
	for _, o := range m {
		o.RefreshStarted(requestID)
	}
}

func (m multiObserver) RefreshQueued(requestID string, position int) {
	for _, o := range m {
		o.RefreshQueued(requestID, position)
	}
}

func (m multiObserver) RefreshSucceeded(released int) {
	for _, o := range m {
		o.RefreshSucceeded(released)
	}
}

func (m multiObserver) Replaying(requestID string, attempt int) {
	for _, o := range m {
		o.Replaying(requestID, attempt)
	}
}

func (m multiObserver) SessionTerminated(err error) {
	for _, o := range m {
		o.SessionTerminated(err)
	}
}
