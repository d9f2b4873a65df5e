package auth

import "github.com/golang-jwt/jwt/v5"

// Claims are the only supported JWT claims shape for this service.
// Role carries the platform role (member/creator/admin); the call engine
// additionally enforces spender/earner semantics server-side, never from
// client-supplied data.
type Claims struct {
	jwt.RegisteredClaims

	UserID string `json:"user_id"`
	Role   string `json:"role"`
}
