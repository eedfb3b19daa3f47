// Package session defines the state tree shared between the state
// store, the persistence engine and subscribers.
package session

// Message senders.
const (
	SenderUser   = "user"
	SenderBot    = "bot"
	SenderSystem = "system"
)

// Message types. The set is open: collaborators may introduce new tags
// and the core round-trips them unchanged.
const (
	TypeText             = "text"
	TypeImage            = "image"
	TypeCard             = "card"
	TypeMap              = "map"
	TypeBiometricRequest = "biometric_request"
)

// Delivery status values. Only StatusSent is ever assigned today; the
// field is carried so the schema does not change when per-message
// delivery tracking lands.
const (
	StatusSent    = "sent"
	StatusPending = "pending"
	StatusFailed  = "failed"
)

// Network status values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Message is one unit of conversation. Once persisted it is immutable.
type Message struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId"`
	Text      string         `json:"text"`
	Sender    string         `json:"sender"`
	Type      string         `json:"type"`
	Timestamp int64          `json:"timestamp"` // milliseconds since epoch, non-decreasing per session
	Metadata  map[string]any `json:"metadata,omitempty"`
	Status    string         `json:"status"`
}

// Session is one continuous user interaction context.
type Session struct {
	ID              string         `json:"id"`
	UserValues      map[string]any `json:"userValues"`
	IsAuthenticated bool           `json:"isAuthenticated"`
}

// QueuedItem is one pending outbound text. Recorded marks items whose
// user Message was already persisted by a failed live send, so a later
// drain does not create a second record for the same logical send.
type QueuedItem struct {
	Text     string `json:"text"`
	Recorded bool   `json:"recorded"`
}

// NetworkState is ephemeral and never persisted.
type NetworkState struct {
	Status        string       `json:"status"`
	LatencyMillis int64        `json:"latency"`
	Queue         []QueuedItem `json:"queue"`
}

// UIState holds flags owned by the rendering collaborator. The core
// only stores and passes them through.
type UIState struct {
	IsOpen   bool   `json:"isOpen"`
	IsTyping bool   `json:"isTyping"`
	Theme    string `json:"theme"`
	View     string `json:"view"`
}

// AppState is the root of the state tree. The state store is its sole
// owner and mutator; everyone else sees deep copies.
type AppState struct {
	Session  Session      `json:"session"`
	UI       UIState      `json:"ui"`
	Network  NetworkState `json:"network"`
	Degraded bool         `json:"degraded"` // storage unavailable, running in-memory only
}

// Clone returns a deep copy of the state tree, safe to hand outside the
// store's lock.
func (s AppState) Clone() AppState {
	out := s
	out.Session.UserValues = cloneMap(s.Session.UserValues)
	out.Network.Queue = append([]QueuedItem(nil), s.Network.Queue...)
	return out
}

// Clone deep-copies a message so a caller cannot reach back into the
// store's metadata map.
func (m Message) Clone() Message {
	out := m
	out.Metadata = cloneMap(m.Metadata)
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue recurses into the container shapes JSON round-tripping
// produces; scalars are copied as-is.
func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
