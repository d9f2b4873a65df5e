package signaling

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"paircall-platform/internal/auth"
	"paircall-platform/internal/calls"
	"paircall-platform/internal/config"
	"paircall-platform/internal/media"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	opAccept  = "accept"
	opConnect = "connect"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// session is the relay's in-memory view of a running call segment: when the
// current duration timer started and how many seconds it was armed with.
// The ledger's remaining_seconds field is the persistent counterpart used
// across interruptions.
type session struct {
	startedAt time.Time
	seconds   int
}

// Relay is the real-time session layer. It owns every timer and every
// duplicate-delivery guard; the lifecycle service underneath owns the state
// machine and billing and schedules nothing itself.
type Relay struct {
	roster roster
	hub    *Hub
	calls  *calls.Service
	media  media.CredentialProvider
	cfg    config.CallConfig
	log    *slog.Logger

	timers *timerRegistry
	guards *guardSet

	mu       sync.Mutex
	sessions map[string]*session

	clock func() time.Time
}

func NewRelay(hub *Hub, callSvc *calls.Service, provider media.CredentialProvider, cfg config.CallConfig, log *slog.Logger) *Relay {
	return &Relay{
		roster:   hub,
		hub:      hub,
		calls:    callSvc,
		media:    provider,
		cfg:      cfg,
		log:      log,
		timers:   newTimerRegistry(),
		guards:   &guardSet{},
		sessions: make(map[string]*session),
		clock:    time.Now,
	}
}

// ServeWS upgrades an authenticated request into a relay client. Mount
// behind the access-token middleware.
func (r *Relay) ServeWS(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	role, _ := auth.Role(c.Request.Context())

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		r.log.Warn("websocket upgrade", "user_id", userID, "error", err)
		return
	}

	client := newClient(r.hub, r, conn, userID, role)
	r.hub.register(client)

	// A reconnecting participant of a live call rejoins its room so call
	// broadcasts reach the fresh connection.
	if l, ok, err := r.calls.ActiveFor(c.Request.Context(), userID); err == nil && ok {
		r.roster.JoinCall(l.ID, userID)
	}

	go client.writePump()
	go client.readPump()
}

// Dispatch routes one inbound frame. Unknown events are dropped with a
// warning; malformed frames earn the sender a call.error.
func (r *Relay) Dispatch(ctx context.Context, userID, role string, raw []byte) {
	var ev Envelope
	if err := json.Unmarshal(raw, &ev); err != nil {
		r.sendError(userID, "", "malformed event")
		return
	}

	switch ev.Event {
	case EventCallRequest:
		r.handleRequest(ctx, userID, ev.Data)
	case EventCallAccept:
		r.handleAccept(ctx, userID, ev.Data)
	case EventCallReject:
		r.handleReject(ctx, userID, ev.Data)
	case EventCallConnected:
		r.handleConnected(ctx, userID, ev.Data)
	case EventCallEnd:
		r.handleEnd(ctx, userID, ev.Data)
	case EventCallRejoin:
		r.handleRejoin(ctx, userID, ev.Data)
	case EventConnectionFailed:
		r.handleConnectionFailed(ctx, userID, ev.Data)
	case EventWebRTCOffer, EventWebRTCAnswer, EventWebRTCCandidate:
		r.handleSignal(ctx, userID, ev.Event, ev.Data)
	default:
		r.log.Warn("unknown event", "user_id", userID, "event", ev.Event)
	}
}

/* ===================== CALL SETUP ===================== */

func (r *Relay) handleRequest(ctx context.Context, userID string, data json.RawMessage) {
	var p requestPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ReceiverID == "" {
		r.sendError(userID, "", "receiver_id is required")
		return
	}

	l, err := r.calls.Initiate(ctx, userID, p.ReceiverID)
	if err != nil {
		r.sendError(userID, "", userMessage(err))
		return
	}

	r.roster.JoinCall(l.ID, l.CallerID)
	r.roster.JoinCall(l.ID, l.ReceiverID)

	ringSeconds := int(r.cfg.RingTimeout / time.Second)
	r.roster.ToUser(l.CallerID, envelope(EventCallOutgoing, outgoingPayload{
		CallID:          l.ID,
		ReceiverID:      l.ReceiverID,
		CoinAmount:      l.CoinAmount,
		DurationSeconds: l.CallDurationSeconds,
		RingSeconds:     ringSeconds,
	}))
	r.roster.ToUser(l.ReceiverID, envelope(EventCallIncoming, incomingPayload{
		CallID:          l.ID,
		CallerID:        l.CallerID,
		ChatID:          l.ChatID,
		DurationSeconds: l.CallDurationSeconds,
		RingSeconds:     ringSeconds,
	}))

	callID := l.ID
	r.timers.Set(callID, r.cfg.RingTimeout, func() {
		r.ringExpired(context.Background(), callID)
	})

	r.log.Info("call ringing", "call_id", l.ID, "caller_id", l.CallerID, "receiver_id", l.ReceiverID)
}

func (r *Relay) ringExpired(ctx context.Context, callID string) {
	l, err := r.calls.End(ctx, callID, calls.ReasonTimeout, "")
	if err != nil {
		r.log.Error("ring timeout end", "call_id", callID, "error", err)
		return
	}
	r.roster.ToCall(callID, envelope(EventCallMissed, callRefPayload{CallID: callID}))
	r.notifyEnded(l, false)
	r.cleanupCall(callID)
	r.log.Info("call missed", "call_id", callID)
}

func (r *Relay) handleAccept(ctx context.Context, userID string, data json.RawMessage) {
	var p callRefPayload
	if err := json.Unmarshal(data, &p); err != nil || p.CallID == "" {
		r.sendError(userID, "", "call_id is required")
		return
	}

	if !r.guards.TryAcquire(opAccept, p.CallID) {
		r.log.Warn("duplicate accept dropped", "call_id", p.CallID, "user_id", userID)
		return
	}
	defer r.guards.Release(opAccept, p.CallID)

	l, err := r.calls.Get(ctx, p.CallID)
	if err != nil || l.ReceiverID != userID {
		r.sendError(userID, p.CallID, "call not found")
		return
	}

	l, err = r.calls.Accept(ctx, p.CallID)
	if err != nil {
		r.sendError(userID, p.CallID, userMessage(err))
		return
	}
	r.timers.Cancel(p.CallID)

	r.roster.ToUser(l.CallerID, envelope(EventCallAccepted, callRefPayload{CallID: l.ID}))

	// Each participant receives its own credential for the shared channel.
	for _, part := range []struct{ id, role string }{
		{l.CallerID, "publisher"},
		{l.ReceiverID, "publisher"},
	} {
		cred, err := r.media.Issue(ctx, l.ID, part.id, part.role)
		if err != nil {
			r.log.Error("issue media credential", "call_id", l.ID, "user_id", part.id, "error", err)
			r.sendError(part.id, l.ID, "failed to issue media credentials")
			continue
		}
		r.roster.ToUser(part.id, envelope(EventCallProceed, proceedPayload{CallID: l.ID, Credential: cred}))
	}

	r.log.Info("call accepted", "call_id", l.ID)
}

func (r *Relay) handleReject(ctx context.Context, userID string, data json.RawMessage) {
	var p callRefPayload
	if err := json.Unmarshal(data, &p); err != nil || p.CallID == "" {
		r.sendError(userID, "", "call_id is required")
		return
	}

	l, err := r.calls.Get(ctx, p.CallID)
	if err != nil || !l.Participant(userID) {
		r.sendError(userID, p.CallID, "call not found")
		return
	}
	// Reject is a ring-phase verb. A duplicate or late delivery after the
	// call was answered must not touch the session.
	if l.Status != calls.StatusRinging {
		r.log.Warn("reject ignored, call not ringing", "call_id", p.CallID, "user_id", userID, "status", string(l.Status))
		return
	}

	// The callee rejects; the caller abandoning their own ring is a cancel.
	reason := calls.ReasonRejected
	if userID == l.CallerID {
		reason = calls.ReasonCancelled
	}

	r.timers.Cancel(p.CallID)
	l, err = r.calls.End(ctx, p.CallID, reason, userID)
	if err != nil {
		r.sendError(userID, p.CallID, userMessage(err))
		return
	}

	if reason == calls.ReasonRejected {
		r.roster.ToUser(l.CallerID, envelope(EventCallRejected, callRefPayload{CallID: l.ID}))
	}
	r.notifyEnded(l, false)
	r.cleanupCall(p.CallID)
	r.log.Info("call declined", "call_id", l.ID, "reason", string(reason))
}

/* ===================== CONNECTED SEGMENT ===================== */

func (r *Relay) handleConnected(ctx context.Context, userID string, data json.RawMessage) {
	var p callRefPayload
	if err := json.Unmarshal(data, &p); err != nil || p.CallID == "" {
		r.sendError(userID, "", "call_id is required")
		return
	}

	if !r.guards.TryAcquire(opConnect, p.CallID) {
		r.log.Warn("duplicate connect dropped", "call_id", p.CallID, "user_id", userID)
		return
	}
	defer r.guards.Release(opConnect, p.CallID)

	l, err := r.calls.Get(ctx, p.CallID)
	if err != nil || !l.Participant(userID) {
		r.sendError(userID, p.CallID, "call not found")
		return
	}

	l, first, err := r.calls.Connect(ctx, p.CallID)
	if err != nil {
		r.sendError(userID, p.CallID, userMessage(err))
		return
	}
	if !first {
		return
	}

	r.startSegment(l, l.RemainingSeconds)
	r.log.Info("call started", "call_id", l.ID, "duration_seconds", l.RemainingSeconds)
}

// startSegment arms the authoritative duration timer for a fresh connect or
// a rejoin and tells the room when the clock started.
func (r *Relay) startSegment(l calls.Ledger, seconds int) {
	now := r.clock()
	r.mu.Lock()
	r.sessions[l.ID] = &session{startedAt: now, seconds: seconds}
	r.mu.Unlock()

	callID := l.ID
	r.timers.Set(callID, time.Duration(seconds)*time.Second, func() {
		r.durationExpired(context.Background(), callID)
	})

	r.roster.ToCall(callID, envelope(EventCallStarted, startedPayload{
		CallID:          callID,
		StartedAt:       now.Unix(),
		DurationSeconds: seconds,
	}))
}

func (r *Relay) durationExpired(ctx context.Context, callID string) {
	l, err := r.calls.End(ctx, callID, calls.ReasonTimerExpired, "")
	if err != nil {
		r.log.Error("duration timer end", "call_id", callID, "error", err)
		return
	}
	// Non-negotiable: the server clock beats whatever the clients display.
	r.roster.ToCall(callID, envelope(EventCallForceEnd, endedPayload{
		CallID: callID,
		Reason: string(calls.ReasonTimerExpired),
	}))
	r.scheduleClearAll(l)
	r.cleanupCall(callID)
	r.log.Info("call time exhausted", "call_id", callID)
}

// remaining reports the seconds left on the current segment, clamped at zero.
func (r *Relay) remaining(callID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[callID]
	if !ok {
		return 0
	}
	elapsed := int(r.clock().Sub(s.startedAt) / time.Second)
	if left := s.seconds - elapsed; left > 0 {
		return left
	}
	return 0
}

/* ===================== LEAVING ===================== */

func (r *Relay) handleEnd(ctx context.Context, userID string, data json.RawMessage) {
	var p callRefPayload
	if err := json.Unmarshal(data, &p); err != nil || p.CallID == "" {
		r.sendError(userID, "", "call_id is required")
		return
	}

	l, err := r.calls.Get(ctx, p.CallID)
	if err != nil || !l.Participant(userID) {
		r.sendError(userID, p.CallID, "call not found")
		return
	}
	r.leave(ctx, l, userID, true)
}

// HandleDisconnect runs when a user's connection drops. An abrupt disconnect
// follows the same soft/hard decision as an explicit end, except that a
// ringing receiver is given the benefit of the doubt: the ring timer stays
// authoritative and the call keeps ringing for their other devices.
func (r *Relay) HandleDisconnect(ctx context.Context, userID string) {
	if r.hub != nil && r.hub.UserOnline(userID) {
		return
	}

	l, ok, err := r.calls.ActiveFor(ctx, userID)
	if err != nil || !ok {
		return
	}

	switch l.Status {
	case calls.StatusRinging:
		if userID == l.CallerID {
			r.timers.Cancel(l.ID)
			ended, err := r.calls.End(ctx, l.ID, calls.ReasonCancelled, userID)
			if err != nil {
				r.log.Error("cancel on disconnect", "call_id", l.ID, "error", err)
				return
			}
			r.notifyEnded(ended, false)
			r.cleanupCall(l.ID)
		}
	case calls.StatusAccepted:
		r.timers.Cancel(l.ID)
		ended, err := r.calls.End(ctx, l.ID, calls.ReasonConnectionFailed, userID)
		if err != nil {
			r.log.Error("fail on disconnect", "call_id", l.ID, "error", err)
			return
		}
		r.notifyEnded(ended, false)
		r.cleanupCall(l.ID)
	case calls.StatusConnected:
		r.leave(ctx, l, userID, false)
	case calls.StatusInterrupted:
		// Other side already waiting; the grace timer decides.
	}
}

// leave applies the soft/hard end decision for one participant departing a
// live call, whether by explicit request or dropped connection.
func (r *Relay) leave(ctx context.Context, l calls.Ledger, userID string, explicit bool) {
	left := r.remaining(l.ID)

	soft := l.Status == calls.StatusConnected &&
		left > r.cfg.SoftEndThresholdSeconds &&
		!l.HasRejoined(userID)

	if soft {
		r.softEnd(ctx, l, userID, left)
		return
	}
	r.hardEnd(ctx, l, userID, explicit)
}

func (r *Relay) softEnd(ctx context.Context, l calls.Ledger, userID string, left int) {
	r.timers.Cancel(l.ID)

	updated, err := r.calls.MarkInterrupted(ctx, l.ID, left)
	if err != nil {
		r.log.Error("mark interrupted", "call_id", l.ID, "error", err)
		return
	}

	other := updated.Other(userID)
	r.roster.ToUser(other, envelope(EventCallWaiting, waitingPayload{
		CallID:       l.ID,
		PeerID:       userID,
		GraceSeconds: int(r.cfg.GracePeriod / time.Second),
	}))

	callID := l.ID
	r.timers.Set(callID+interruptionSuffix, r.cfg.GracePeriod, func() {
		r.graceExpired(context.Background(), callID)
	})
	r.log.Info("call interrupted", "call_id", l.ID, "user_id", userID, "remaining_seconds", left)
}

func (r *Relay) graceExpired(ctx context.Context, callID string) {
	l, err := r.calls.End(ctx, callID, calls.ReasonInterruptionExpired, "")
	if err != nil {
		r.log.Error("grace timer end", "call_id", callID, "error", err)
		return
	}
	r.notifyEnded(l, false)
	r.scheduleClearAll(l)
	r.cleanupCall(callID)
	r.log.Info("interruption expired", "call_id", callID)
}

func (r *Relay) hardEnd(ctx context.Context, l calls.Ledger, userID string, explicit bool) {
	r.timers.Cancel(l.ID)
	r.timers.Cancel(l.ID + interruptionSuffix)

	var reason calls.Reason
	switch {
	case explicit && userID == l.CallerID:
		reason = calls.ReasonCallerEnded
	case explicit:
		reason = calls.ReasonReceiverEnded
	case userID == l.CallerID:
		reason = calls.ReasonCallerDisconnected
	default:
		reason = calls.ReasonReceiverDisconnected
	}
	if l.Status == calls.StatusRinging && explicit {
		if userID == l.CallerID {
			reason = calls.ReasonCancelled
		} else {
			reason = calls.ReasonRejected
		}
	}

	ended, err := r.calls.End(ctx, l.ID, reason, userID)
	if err != nil {
		r.log.Error("hard end", "call_id", l.ID, "error", err)
		return
	}

	r.notifyEnded(ended, false)
	r.scheduleClearAll(ended)
	r.cleanupCall(l.ID)
	r.log.Info("call ended", "call_id", l.ID, "reason", string(reason))
}

/* ===================== REJOIN ===================== */

func (r *Relay) handleRejoin(ctx context.Context, userID string, data json.RawMessage) {
	var p callRefPayload
	if err := json.Unmarshal(data, &p); err != nil || p.CallID == "" {
		r.sendError(userID, "", "call_id is required")
		return
	}

	l, err := r.calls.Rejoin(ctx, p.CallID, userID)
	if err != nil {
		r.sendError(userID, p.CallID, userMessage(err))
		return
	}

	r.timers.Cancel(p.CallID + interruptionSuffix)
	r.roster.JoinCall(l.ID, l.CallerID)
	r.roster.JoinCall(l.ID, l.ReceiverID)

	cred, err := r.media.Issue(ctx, l.ID, userID, "publisher")
	if err != nil {
		r.log.Error("issue rejoin credential", "call_id", l.ID, "user_id", userID, "error", err)
		r.sendError(userID, l.ID, "failed to issue media credentials")
		return
	}

	r.roster.ToUser(userID, envelope(EventCallRejoinProceed, rejoinProceedPayload{
		CallID:           l.ID,
		RemainingSeconds: l.RemainingSeconds,
		Credential:       cred,
	}))
	r.roster.ToUser(l.Other(userID), envelope(EventCallPeerRejoined, peerRejoinedPayload{
		CallID:           l.ID,
		PeerID:           userID,
		RemainingSeconds: l.RemainingSeconds,
	}))

	r.startSegment(l, l.RemainingSeconds)
	r.log.Info("participant rejoined", "call_id", l.ID, "user_id", userID, "remaining_seconds", l.RemainingSeconds)
}

/* ===================== FAILURE & SIGNALING ===================== */

func (r *Relay) handleConnectionFailed(ctx context.Context, userID string, data json.RawMessage) {
	var p callRefPayload
	if err := json.Unmarshal(data, &p); err != nil || p.CallID == "" {
		r.sendError(userID, "", "call_id is required")
		return
	}

	l, err := r.calls.Get(ctx, p.CallID)
	if err != nil || !l.Participant(userID) {
		r.sendError(userID, p.CallID, "call not found")
		return
	}

	ended, err := r.calls.End(ctx, p.CallID, calls.ReasonConnectionFailed, userID)
	if err != nil {
		r.sendError(userID, p.CallID, userMessage(err))
		return
	}
	if !ended.Status.IsTerminal() {
		// Late signal on an established call, ignored.
		return
	}

	r.timers.Cancel(p.CallID)
	r.notifyEnded(ended, false)
	r.cleanupCall(p.CallID)
	r.log.Info("call failed", "call_id", p.CallID)
}

// handleSignal relays an opaque WebRTC frame to the named target, stamped
// with the sender. Payload contents are never inspected.
func (r *Relay) handleSignal(ctx context.Context, userID, event string, data json.RawMessage) {
	var p signalPayload
	if err := json.Unmarshal(data, &p); err != nil || p.CallID == "" || p.To == "" {
		r.sendError(userID, "", "call_id and to are required")
		return
	}

	l, err := r.calls.Get(ctx, p.CallID)
	if err != nil || !l.Participant(userID) || !l.Participant(p.To) {
		r.sendError(userID, p.CallID, "call not found")
		return
	}

	p.From = userID
	r.roster.ToUser(p.To, envelope(event, p))
}

/* ===================== SWEEP & HOUSEKEEPING ===================== */

// Publish satisfies the lifecycle publisher contract: swept calls get their
// surviving clients cleaned up even though no relay flow ended them.
func (r *Relay) Publish(ctx context.Context, e calls.Event) {
	if e.Type != calls.EventSwept {
		return
	}
	l := e.Call
	r.notifyEnded(l, false)
	for _, uid := range []string{l.CallerID, l.ReceiverID} {
		r.roster.ToUser(uid, envelope(EventCallClearAll, callRefPayload{CallID: l.ID}))
	}
	r.cleanupCall(l.ID)
}

func (r *Relay) notifyEnded(l calls.Ledger, rejoinPossible bool) {
	ev := envelope(EventCallEnded, endedPayload{
		CallID:         l.ID,
		Reason:         string(l.EndReason),
		RejoinPossible: rejoinPossible,
	})
	r.roster.ToUser(l.CallerID, ev)
	r.roster.ToUser(l.ReceiverID, ev)
}

// scheduleClearAll emits the defensive UI reset to both participants shortly
// after a hard end, catching any stray client state.
func (r *Relay) scheduleClearAll(l calls.Ledger) {
	callerID, receiverID, callID := l.CallerID, l.ReceiverID, l.ID
	r.timers.Set(callID+"_clear", r.cfg.ClearSignalDelay, func() {
		for _, uid := range []string{callerID, receiverID} {
			r.roster.ToUser(uid, envelope(EventCallClearAll, callRefPayload{CallID: callID}))
		}
	})
}

func (r *Relay) cleanupCall(callID string) {
	r.timers.Cancel(callID)
	r.timers.Cancel(callID + interruptionSuffix)
	r.guards.Release(opAccept, callID)
	r.guards.Release(opConnect, callID)

	r.mu.Lock()
	delete(r.sessions, callID)
	r.mu.Unlock()

	r.roster.DropCall(callID)
}

func (r *Relay) sendError(userID, callID, msg string) {
	r.roster.ToUser(userID, envelope(EventCallError, errorPayload{CallID: callID, Message: msg}))
}

// userMessage strips internal wrapping from known errors; anything else is
// reported generically.
func userMessage(err error) string {
	if calls.Classify(err) == calls.ClassInternal {
		return "internal error, please retry"
	}
	return err.Error()
}
