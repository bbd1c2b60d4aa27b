package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
)

// GenerateSecureOTP generates a cryptographically secure 6-digit OTP
func GenerateSecureOTP() (string, error) {
	max := big.NewInt(1000000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate random number: %w", err)
	}

	// Format with leading zeros to ensure 6 digits
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// GenerateSalt returns a random hex salt for OTP hashing.
func GenerateSalt() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashOTP returns the hex SHA-256 of salt+code. The plaintext code is never
// persisted; verification compares hashes.
func HashOTP(code, salt string) string {
	sum := sha256.Sum256([]byte(salt + code))
	return hex.EncodeToString(sum[:])
}

// VerifyOTPHash compares a candidate code against a stored hash in constant time.
func VerifyOTPHash(code, salt, hash string) bool {
	candidate := HashOTP(code, salt)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(hash)) == 1
}
