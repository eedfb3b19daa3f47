package state

import "MonaChat/internal/session"

// Action is one named mutation of the state tree. The set of variants
// below is closed: adding an action is a compile-time change, not a new
// string constant. A foreign Action implementation is applied as a
// no-op that still notifies subscribers.
type Action interface {
	isAction()
}

// ToggleChatVisibility flips the UI-owned open flag (passthrough).
type ToggleChatVisibility struct{}

// SetTypingIndicator sets the UI-owned typing flag (passthrough).
type SetTypingIndicator struct {
	Visible bool
}

// NetworkStatusChanged records a connectivity transition. A transition
// to online synchronously drains the offline queue before Dispatch
// returns. LatencyMillis zero leaves the current reading untouched.
type NetworkStatusChanged struct {
	Status        string
	LatencyMillis int64
}

// EnqueueOutboundMessage appends one pending text to the tail of the
// offline queue.
type EnqueueOutboundMessage struct {
	Item session.QueuedItem
}

// AuthenticationSucceeded marks the session authenticated and merges
// the proven attributes into the session's user values. Payload keys
// overwrite existing keys; keys not in the payload are untouched.
type AuthenticationSucceeded struct {
	Values map[string]any
}

func (ToggleChatVisibility) isAction()    {}
func (SetTypingIndicator) isAction()      {}
func (NetworkStatusChanged) isAction()    {}
func (EnqueueOutboundMessage) isAction()  {}
func (AuthenticationSucceeded) isAction() {}
