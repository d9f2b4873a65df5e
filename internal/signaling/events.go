package signaling

import (
	"encoding/json"

	"paircall-platform/internal/media"
)

// Envelope is the wire frame for every signaling message, both directions.
// Data is left raw so opaque payloads (WebRTC SDP/ICE) pass through untouched.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func envelope(event string, data any) Envelope {
	if data == nil {
		return Envelope{Event: event}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{Event: event}
	}
	return Envelope{Event: event, Data: raw}
}

func marshalEnvelope(ev Envelope) ([]byte, error) {
	return json.Marshal(ev)
}

// Client -> server events.
const (
	EventCallRequest      = "call.request"
	EventCallAccept       = "call.accept"
	EventCallReject       = "call.reject"
	EventCallConnected    = "call.connected"
	EventCallEnd          = "call.end"
	EventCallRejoin       = "call.rejoin"
	EventConnectionFailed = "call.connection-failed"
	EventWebRTCOffer      = "webrtc.offer"
	EventWebRTCAnswer     = "webrtc.answer"
	EventWebRTCCandidate  = "webrtc.ice-candidate"
)

// Server -> client events.
const (
	EventCallOutgoing      = "call.outgoing"
	EventCallIncoming      = "call.incoming"
	EventCallAccepted      = "call.accepted"
	EventCallProceed       = "call.proceed"
	EventCallStarted       = "call.started"
	EventCallWaiting       = "call.waiting"
	EventCallPeerRejoined  = "call.peer-rejoined"
	EventCallRejoinProceed = "call.rejoin-proceed"
	EventCallEnded         = "call.ended"
	EventCallForceEnd      = "call.force-end"
	EventCallMissed        = "call.missed"
	EventCallRejected      = "call.rejected"
	EventCallError         = "call.error"
	EventCallClearAll      = "call.clear-all"
)

type requestPayload struct {
	ReceiverID string `json:"receiver_id"`
}

type callRefPayload struct {
	CallID string `json:"call_id"`
}

// signalPayload carries an opaque WebRTC frame between participants. Payload
// is never inspected.
type signalPayload struct {
	CallID  string          `json:"call_id"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to"`
	Payload json.RawMessage `json:"payload"`
}

type outgoingPayload struct {
	CallID          string `json:"call_id"`
	ReceiverID      string `json:"receiver_id"`
	CoinAmount      int64  `json:"coin_amount"`
	DurationSeconds int    `json:"duration_seconds"`
	RingSeconds     int    `json:"ring_seconds"`
}

type incomingPayload struct {
	CallID          string `json:"call_id"`
	CallerID        string `json:"caller_id"`
	ChatID          string `json:"chat_id"`
	DurationSeconds int    `json:"duration_seconds"`
	RingSeconds     int    `json:"ring_seconds"`
}

type proceedPayload struct {
	CallID     string           `json:"call_id"`
	Credential media.Credential `json:"credential"`
}

type startedPayload struct {
	CallID          string `json:"call_id"`
	StartedAt       int64  `json:"started_at"`
	DurationSeconds int    `json:"duration_seconds"`
}

type waitingPayload struct {
	CallID       string `json:"call_id"`
	PeerID       string `json:"peer_id"`
	GraceSeconds int    `json:"grace_seconds"`
}

type peerRejoinedPayload struct {
	CallID           string `json:"call_id"`
	PeerID           string `json:"peer_id"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

type rejoinProceedPayload struct {
	CallID           string           `json:"call_id"`
	RemainingSeconds int              `json:"remaining_seconds"`
	Credential       media.Credential `json:"credential"`
}

type endedPayload struct {
	CallID         string `json:"call_id"`
	Reason         string `json:"reason"`
	RejoinPossible bool   `json:"rejoin_possible"`
}

type errorPayload struct {
	CallID  string `json:"call_id,omitempty"`
	Message string `json:"message"`
}
