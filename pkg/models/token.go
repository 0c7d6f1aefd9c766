package models

import "time"

// TokenExpiryBuffer is subtracted from a token's nominal lifetime so
// requests never race an expiring token.
const TokenExpiryBuffer = 300 * time.Second

// Token stores one HH.ru OAuth token pair. The most recent row wins.
type Token struct {
	ID           int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	AccessToken  string    `json:"access_token" gorm:"size:2048;not null"`
	RefreshToken string    `json:"refresh_token" gorm:"size:2048;not null"`
	ExpiresIn    int       `json:"expires_in" gorm:"not null"`
	ObtainedAt   time.Time `json:"obtained_at"`
}

func (Token) TableName() string { return "hh_tokens" }

// ExpiresAt returns the instant after which the token must not be used,
// already including the safety buffer.
func (t *Token) ExpiresAt() time.Time {
	return t.ObtainedAt.Add(time.Duration(t.ExpiresIn)*time.Second - TokenExpiryBuffer)
}

// IsExpired reports whether the token is within the safety buffer of expiry.
func (t *Token) IsExpired() bool {
	return !time.Now().UTC().Before(t.ExpiresAt())
}
