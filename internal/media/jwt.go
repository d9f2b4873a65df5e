package media

import (
	"context"
	"errors"
	"time"

	"paircall-platform/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTProvider issues short-lived HS256 channel tokens. The media servers
// share the secret and verify tokens on join.
type JWTProvider struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

func NewJWTProvider(cfg config.MediaConfig) (*JWTProvider, error) {
	if cfg.TokenSecret == "" {
		return nil, errors.New("MEDIA_TOKEN_SECRET is required")
	}

	return &JWTProvider{
		secret: []byte(cfg.TokenSecret),
		ttl:    cfg.TokenTTL,
		clock:  time.Now,
	}, nil
}

type channelClaims struct {
	jwt.RegisteredClaims
	Channel string `json:"channel"`
	Role    string `json:"role"`
}

func (p *JWTProvider) Issue(ctx context.Context, channel, participantID, role string) (Credential, error) {
	if channel == "" || participantID == "" {
		return Credential{}, errors.New("channel and participant_id are required")
	}

	now := p.clock().UTC()
	expiresAt := now.Add(p.ttl)

	claims := channelClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   participantID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		Channel: channel,
		Role:    role,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return Credential{}, err
	}

	return Credential{
		Token:         token,
		Channel:       channel,
		ParticipantID: participantID,
		ExpiresAt:     expiresAt.Unix(),
	}, nil
}
