package media

import "context"

// Credential is an opaque ticket that lets one participant join one media
// channel. The signaling relay forwards it to clients verbatim.
type Credential struct {
	Token         string `json:"token"`
	Channel       string `json:"channel"`
	ParticipantID string `json:"participant_id"`
	ExpiresAt     int64  `json:"expires_at"`
}

// CredentialProvider mints media credentials. Implementations decide the
// token scheme; callers treat the result as opaque.
type CredentialProvider interface {
	Issue(ctx context.Context, channel, participantID, role string) (Credential, error)
}
