package models

import (
	"time"

	"gorm.io/gorm"
)

// OTP stores one issued verification code. Only a salted hash of the code is
// persisted; the plaintext exists in memory just long enough to be sent.
type OTP struct {
	gorm.Model
	UserID     string     `gorm:"not null;index"`
	Phone      string     `gorm:"not null"`
	CodeHash   string     `gorm:"not null"`
	CodeSalt   string     `gorm:"not null"`
	Purpose    OTPPurpose `gorm:"not null;index"`
	Channel    Channel    `gorm:"not null"`
	ExpiresAt  time.Time  `gorm:"not null"`
	VerifiedAt *time.Time
	Attempts   int `gorm:"default:0"`
}

func (OTP) TableName() string { return "otp_codes" }

// Verified reports whether this code was already consumed.
func (o *OTP) Verified() bool { return o.VerifiedAt != nil }
