package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims carries the acting-user identity supplied by the auth boundary.
// The service layer receives the user ID explicitly; nothing reads it from
// ambient state.
type JWTClaims struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	jwt.RegisteredClaims
}
