package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// UnitID is set for commanders (the field unit they lead) and empty for admins.
// Assignment ownership is still checked server-side against the assignment row.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"user_id"`
	UnitID    string    `json:"unit_id,omitempty"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}
