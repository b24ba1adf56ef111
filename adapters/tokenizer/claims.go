package tokenizer

import "github.com/golang-jwt/jwt/v5"

// Claims are shared by access and refresh tokens; the audience tells them apart
type Claims struct {
	jwt.RegisteredClaims
	UserID    int64  `json:"uid"`           // Subject as a number, mirrors sub
	RefreshID string `json:"rid,omitempty"` // Access only: jti of the paired refresh token
}
