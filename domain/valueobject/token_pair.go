package valueobject

import "time"

// TokenPair is a freshly minted access/refresh pair.
type TokenPair struct {
	AccessToken      string        `json:"access_token"`
	RefreshToken     string        `json:"refresh_token"`
	RefreshExpiresIn time.Duration `json:"-"`
}

func NewTokenPair(accessToken, refreshToken string, refreshExpiresIn time.Duration) *TokenPair {
	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		RefreshExpiresIn: refreshExpiresIn,
	}
}
