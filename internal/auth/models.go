package auth

import "github.com/golang-jwt/jwt/v5"

// Claims identify the operator allowed to mutate server state.
type Claims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

type TokenRequest struct {
	Operator string `json:"operator"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}
