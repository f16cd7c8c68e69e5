package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/pastrypickup-backend/pkg/enums"
)

// Identity is who a verified token speaks for.
type Identity struct {
	UserID uuid.UUID
	Role   enums.Role
}

// claims is the token body: the user id travels as the standard "sub" claim.
type claims struct {
	Role enums.Role `json:"role"`
	jwt.RegisteredClaims
}
