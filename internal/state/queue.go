package state

import (
	"context"
	"fmt"
	"time"

	"MonaChat/internal/session"
)

// Send is the outbound path. Online, the user message is persisted and
// handed to the transport; the remote reply comes back as a bot
// message. Offline or on transport failure the text joins the queue and
// the user gets a system message, never a silent drop.
func (s *Store) Send(ctx context.Context, text string) error {
	ctx, span := s.tracer.Start(ctx, "state.send")
	defer span.End()

	if s.Snapshot().Network.Status == session.StatusOffline {
		s.Dispatch(ctx, EnqueueOutboundMessage{Item: session.QueuedItem{Text: text}})
		s.systemMessage(ctx, "You are offline. The message was queued and will be sent when the connection returns.")
		return nil
	}

	msg, err := s.AddMessage(ctx, text, session.SenderUser, session.TypeText, nil)
	if err != nil {
		return err
	}

	reply, err := s.sendRemote(ctx, text, msg.SessionID)
	if err != nil {
		// The message record already exists; the queued item carries
		// that fact so a drain never writes it twice. A failed send
		// also means the link is gone: mark the network offline so the
		// queue invariant holds until a real online transition.
		s.logger.Warn("transport failed, queueing message", "error", err)
		s.Dispatch(ctx, EnqueueOutboundMessage{Item: session.QueuedItem{Text: text, Recorded: true}})
		s.Dispatch(ctx, NetworkStatusChanged{Status: session.StatusOffline})
		s.systemMessage(ctx, "Delivery failed. The message was queued for retry.")
		return nil
	}

	if reply != "" {
		if _, err := s.AddMessage(ctx, reply, session.SenderBot, session.TypeText, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) sendRemote(ctx context.Context, text, sessionID string) (string, error) {
	if s.transport == nil {
		return "", fmt.Errorf("%w: no transport configured", ErrTransportFailed)
	}
	reply, err := s.transport.Send(ctx, text, sessionID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransportFailed, err)
	}
	return reply, nil
}

// flushQueue drains the offline queue sequentially in FIFO order. Each
// item is re-submitted through the same outbound path: persist the user
// message (unless a failed live send already did), then hand the text
// to the transport. An item that fails again goes back to the HEAD of
// the queue so the total order survives for the next flush.
func (s *Store) flushQueue(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "state.flush_queue")
	defer span.End()
	start := time.Now()

	flushed := 0
	for {
		s.mu.Lock()
		if s.state.Network.Status != session.StatusOnline || len(s.state.Network.Queue) == 0 {
			s.mu.Unlock()
			break
		}
		item := s.state.Network.Queue[0]
		s.state.Network.Queue = s.state.Network.Queue[1:]
		if s.queueDepth != nil {
			s.queueDepth.Add(ctx, -1)
		}
		sessionID := s.state.Session.ID
		snap, subs := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snap, subs)

		if !item.Recorded {
			if _, err := s.AddMessage(ctx, item.Text, session.SenderUser, session.TypeText, nil); err != nil {
				// Same contract as a transport failure: the queue must
				// not sit non-empty while the status reads online.
				s.logger.Error("flush aborted, message write failed", "error", err)
				s.requeueHead(ctx, item, true)
				s.systemMessage(ctx, "Saving your message failed. It stays queued for the next retry.")
				break
			}
			item.Recorded = true
		}

		reply, err := s.sendRemote(ctx, item.Text, sessionID)
		if err != nil {
			s.logger.Warn("flush stopped, transport still failing", "error", err)
			s.requeueHead(ctx, item, true)
			break
		}
		if reply != "" {
			if _, err := s.AddMessage(ctx, reply, session.SenderBot, session.TypeText, nil); err != nil {
				s.logger.Warn("failed to record reply during flush", "error", err)
			}
		}
		flushed++
	}

	if s.flushDur != nil {
		s.flushDur.Record(ctx, float64(time.Since(start).Milliseconds()))
	}
	if flushed > 0 {
		s.logger.Info("offline queue flushed", "sent", flushed)
	}
}

// requeueHead puts a failed item back at the front of the queue.
// markOffline additionally records that the link is gone, so the queue
// stays consistent with the network status until the next transition.
func (s *Store) requeueHead(ctx context.Context, item session.QueuedItem, markOffline bool) {
	s.mu.Lock()
	s.state.Network.Queue = append([]session.QueuedItem{item}, s.state.Network.Queue...)
	if markOffline {
		s.state.Network.Status = session.StatusOffline
	}
	if s.queueDepth != nil {
		s.queueDepth.Add(ctx, 1)
	}
	snap, subs := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap, subs)
}
