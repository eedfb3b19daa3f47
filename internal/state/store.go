// Package state holds the canonical state tree and is its only writer.
// Mutations enter through Dispatch, AddMessage and the outbound send
// path; every mutation is followed by exactly one snapshot notification
// to all current subscribers.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"MonaChat/internal/fasttier"
	"MonaChat/internal/ident"
	"MonaChat/internal/session"
	"MonaChat/internal/storage"
	"MonaChat/internal/transport"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Subscriber receives a full state snapshot after every mutation.
type Subscriber interface {
	ReceiveSnapshot(session.AppState)
}

// SubscriberFunc adapts a plain function to the Subscriber interface.
type SubscriberFunc func(session.AppState)

// ReceiveSnapshot calls f.
func (f SubscriberFunc) ReceiveSnapshot(snap session.AppState) { f(snap) }

// Options wires the store's collaborators. Storage and FastTier are
// required; Transport and Authenticator may be nil when the embedding
// environment has no remote side (sends then fail as transport errors).
type Options struct {
	Storage       *storage.Store
	FastTier      *fasttier.Slot
	Transport     transport.Transport
	Authenticator transport.Authenticator
	Logger        *slog.Logger
	Clock         func() time.Time
}

// Store is the single mutation authority for the state tree. One mutex
// serializes all entry points; persistence and transport calls are the
// only operations that block while holding it.
type Store struct {
	db        *storage.Store
	fast      *fasttier.Slot
	transport transport.Transport
	auth      transport.Authenticator
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time

	queueDepth metric.Int64UpDownCounter
	flushDur   metric.Float64Histogram

	mu           sync.Mutex
	state        session.AppState
	subscribers  map[int]Subscriber
	nextSubID    int
	lastStamp    int64
	memlog       []session.Message // history fallback while degraded
	bootstrapped bool
	closed       bool

	sessionDirty chan struct{}
	persistDone  chan struct{}
}

// New constructs a store. The caller owns the lifecycle: construct,
// Bootstrap, use, Close.
func New(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	s := &Store{
		db:        opts.Storage,
		fast:      opts.FastTier,
		transport: opts.Transport,
		auth:      opts.Authenticator,
		logger:    logger,
		tracer:    otel.Tracer("monachat/state"),
		now:       clock,
		state: session.AppState{
			UI:      session.UIState{Theme: "system", View: "chat"},
			Network: session.NetworkState{Status: session.StatusOnline},
		},
		subscribers: make(map[int]Subscriber),
	}

	meter := otel.Meter("monachat/state")
	s.queueDepth, _ = meter.Int64UpDownCounter("state.queue.depth",
		metric.WithDescription("Pending outbound messages in the offline queue"))
	s.flushDur, _ = meter.Float64Histogram("state.queue.flush.duration",
		metric.WithDescription("Offline queue drain duration in milliseconds"))

	s.sessionDirty = make(chan struct{}, 1)
	s.persistDone = make(chan struct{})
	go s.sessionWriter()
	return s
}

// Bootstrap resolves the session identity and opens the transactional
// tier. The fast tier decides the id before the slower store is
// touched; a storage failure degrades the store to in-memory operation
// instead of failing the bootstrap.
func (s *Store) Bootstrap(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "state.bootstrap")
	defer span.End()

	s.mu.Lock()
	if s.bootstrapped {
		s.mu.Unlock()
		return nil
	}
	id, resumed := s.fast.Get()
	if !resumed {
		id = ident.New()
		if err := s.fast.Put(id); err != nil {
			// The id still serves this process; only cross-restart
			// continuity is lost.
			s.logger.Warn("fast tier write failed, session will not survive restart", "error", err)
		}
	}
	s.state.Session.ID = id
	s.bootstrapped = true
	snap, subs := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap, subs)

	if resumed {
		s.logger.Info("session resumed", "session_id", id)
	} else {
		s.logger.Info("session created", "session_id", id)
	}

	if err := s.db.Connect(ctx); err != nil {
		s.logger.Error("storage connect failed, continuing in memory", "error", err)
		s.mu.Lock()
		s.state.Degraded = true
		snap, subs := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snap, subs)
		s.systemMessage(ctx, "Message history is unavailable right now. The conversation will not be saved.")
		return nil
	}

	s.hydrateSession(ctx, id)
	return nil
}

// hydrateSession reconciles the adopted id with the sessions family:
// a resumed session gets its stored attributes back, a new one gets a
// record written.
func (s *Store) hydrateSession(ctx context.Context, id string) {
	rec, err := s.db.GetSession(ctx, id)
	switch {
	case err == nil:
		s.mu.Lock()
		s.state.Session.UserValues = rec.UserValues
		s.state.Session.IsAuthenticated = s.state.Session.IsAuthenticated || rec.IsAuthenticated
		snap, subs := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snap, subs)
	case errors.Is(err, storage.ErrNotFound):
		if err := s.db.PutSession(ctx, storage.SessionRecord{ID: id}); err != nil {
			s.logger.Warn("failed to write session record", "session_id", id, "error", err)
		}
	default:
		// A read failure says nothing about the stored record; writing
		// a blank one here would destroy it.
		s.logger.Warn("failed to read session record, skipping hydration", "session_id", id, "error", err)
	}
}

// Dispatch applies one named mutation and notifies subscribers. An
// online transition additionally drains the offline queue before
// returning.
func (s *Store) Dispatch(ctx context.Context, action Action) {
	s.mu.Lock()
	drain := s.applyLocked(action)
	snap, subs := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap, subs)

	if drain {
		s.flushQueue(ctx)
	}
}

// applyLocked mutates the tree for one action and reports whether a
// queue drain should follow. Caller holds s.mu.
func (s *Store) applyLocked(action Action) (drain bool) {
	switch a := action.(type) {
	case ToggleChatVisibility:
		s.state.UI.IsOpen = !s.state.UI.IsOpen
	case SetTypingIndicator:
		s.state.UI.IsTyping = a.Visible
	case NetworkStatusChanged:
		s.state.Network.Status = a.Status
		if a.LatencyMillis > 0 {
			s.state.Network.LatencyMillis = a.LatencyMillis
		}
		drain = a.Status == session.StatusOnline && len(s.state.Network.Queue) > 0
	case EnqueueOutboundMessage:
		s.state.Network.Queue = append(s.state.Network.Queue, a.Item)
		if s.queueDepth != nil {
			s.queueDepth.Add(context.Background(), 1)
		}
	case AuthenticationSucceeded:
		s.state.Session.IsAuthenticated = true
		if s.state.Session.UserValues == nil {
			s.state.Session.UserValues = make(map[string]any, len(a.Values))
		}
		for k, v := range a.Values {
			s.state.Session.UserValues[k] = v
		}
		s.markSessionDirtyLocked()
	default:
		// Unknown variants are no-ops; the notification still fires.
		s.logger.Warn("ignoring unrecognized action", "action", fmt.Sprintf("%T", action))
	}
	return drain
}

// markSessionDirtyLocked schedules a session-record write on the
// single writer goroutine. Signals coalesce; the record is rebuilt from
// the tree at write time, so the last mutation wins regardless of how
// the scheduler interleaves. Caller holds s.mu.
func (s *Store) markSessionDirtyLocked() {
	if s.closed {
		return
	}
	select {
	case s.sessionDirty <- struct{}{}:
	default:
	}
}

// sessionWriter is the only goroutine that writes the session record.
// Best effort: a failure is logged, never raised.
func (s *Store) sessionWriter() {
	defer close(s.persistDone)
	for range s.sessionDirty {
		s.mu.Lock()
		rec := storage.SessionRecord{
			ID:              s.state.Session.ID,
			IsAuthenticated: s.state.Session.IsAuthenticated,
			UserValues:      make(map[string]any, len(s.state.Session.UserValues)),
		}
		for k, v := range s.state.Session.UserValues {
			rec.UserValues[k] = v
		}
		degraded := s.state.Degraded
		s.mu.Unlock()

		if degraded {
			continue
		}
		if err := s.db.PutSession(context.Background(), rec); err != nil {
			s.logger.Warn("failed to persist session record", "session_id", rec.ID, "error", err)
		}
	}
}

// AddMessage creates a message with the current session id, persists it
// and notifies subscribers. The call blocks until the write commits or
// fails; a failure is returned to the caller, never swallowed.
func (s *Store) AddMessage(ctx context.Context, text, sender, msgType string, metadata map[string]any) (session.Message, error) {
	ctx, span := s.tracer.Start(ctx, "state.add_message")
	defer span.End()

	s.mu.Lock()
	msg := session.Message{
		ID:        ident.New(),
		SessionID: s.state.Session.ID,
		Text:      text,
		Sender:    sender,
		Type:      msgType,
		Timestamp: s.stampLocked(),
		Metadata:  metadata,
		Status:    session.StatusSent,
	}

	if s.state.Degraded {
		s.memlog = append(s.memlog, msg.Clone())
	} else if err := s.db.PutMessage(ctx, msg); err != nil {
		s.mu.Unlock()
		if errors.Is(err, storage.ErrUnavailable) {
			return session.Message{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		return session.Message{}, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	snap, subs := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap, subs)
	return msg, nil
}

// stampLocked returns a per-session non-decreasing millisecond
// timestamp. Caller holds s.mu.
func (s *Store) stampLocked() int64 {
	ts := s.now().UnixMilli()
	if ts < s.lastStamp {
		ts = s.lastStamp
	}
	s.lastStamp = ts
	return ts
}

// GetHistory returns all messages for the session in ascending
// timestamp order. While degraded it serves the in-memory log.
func (s *Store) GetHistory(ctx context.Context, sessionID string) ([]session.Message, error) {
	s.mu.Lock()
	degraded := s.state.Degraded
	var local []session.Message
	if degraded {
		for _, msg := range s.memlog {
			if msg.SessionID == sessionID {
				local = append(local, msg.Clone())
			}
		}
	}
	s.mu.Unlock()

	if degraded {
		// memlog is append-only with non-decreasing stamps, so it is
		// already in order.
		return local, nil
	}
	return s.db.History(ctx, sessionID)
}

// Subscribe registers a listener for future snapshots and returns the
// capability that removes it.
func (s *Store) Subscribe(sub Subscriber) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = sub
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// Snapshot returns the current state tree as a deep copy.
func (s *Store) Snapshot() session.AppState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Authenticate runs the opaque proof-of-identity ceremony. Success
// feeds the proven attributes into the auth mutation; failure records a
// system message and leaves authentication state untouched.
func (s *Store) Authenticate(ctx context.Context) error {
	if s.auth == nil {
		return fmt.Errorf("%w: no authenticator configured", ErrAuthenticationFailed)
	}
	values, err := s.auth.RequestProof(ctx)
	if err != nil {
		s.logger.Warn("authentication rejected", "error", err)
		s.systemMessage(ctx, "Identity could not be verified.")
		return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	s.Dispatch(ctx, AuthenticationSucceeded{Values: values})
	return nil
}

// Close drains the session writer, then releases the transactional
// tier. Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.sessionDirty)
	}
	s.mu.Unlock()
	<-s.persistDone
	return s.db.Close()
}

// snapshotLocked clones the tree and the current subscriber list.
// Caller holds s.mu.
func (s *Store) snapshotLocked() (session.AppState, []Subscriber) {
	subs := make([]Subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	return s.state.Clone(), subs
}

// notify delivers one snapshot per subscriber, outside the lock. Each
// subscriber gets its own copy so none can reach into another's view.
func (s *Store) notify(snap session.AppState, subs []Subscriber) {
	for _, sub := range subs {
		sub.ReceiveSnapshot(snap.Clone())
	}
}

// systemMessage records a user-visible system message. Failures here
// are logged only; a diagnostic must never raise.
func (s *Store) systemMessage(ctx context.Context, text string) {
	if _, err := s.AddMessage(ctx, text, session.SenderSystem, session.TypeText, nil); err != nil {
		s.logger.Warn("failed to record system message", "error", err)
	}
}
