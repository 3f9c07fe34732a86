package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

const minSaltLength = 32

var hashSalt = "default-salt-change-in-production"

// InitHashSalt loads the salt used for hashing identifiers in logs from LOG_HASH_SALT.
func InitHashSalt() error {
	salt := os.Getenv("LOG_HASH_SALT")
	if salt == "" {
		return fmt.Errorf("LOG_HASH_SALT is required")
	}
	if len(salt) < minSaltLength {
		return fmt.Errorf("LOG_HASH_SALT must be at least %d characters", minSaltLength)
	}
	hashSalt = salt
	return nil
}

// InitHashSaltForTesting sets the salt directly.
func InitHashSaltForTesting(salt string) {
	hashSalt = salt
}

// HashUserID creates a privacy-preserving hash of a user ID.
// This allows tracking user actions without exposing actual user IDs.
func HashUserID(userID uuid.UUID) string {
	return hashValue(userID.String())
}

// HashPhone creates a privacy-preserving hash of a phone number.
func HashPhone(phone string) string {
	return hashValue(NormalizePhone(phone))
}

func hashValue(v string) string {
	hash := sha256.Sum256([]byte(v + ":" + hashSalt))
	// First 8 characters for readability
	return hex.EncodeToString(hash[:])[:8]
}

// NormalizePhone strips everything except digits and a leading plus sign.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	for i, r := range phone {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MaskPhone keeps the last three digits of a phone number.
func MaskPhone(phone string) string {
	digits := NormalizePhone(phone)
	if len(digits) <= 3 {
		return "***"
	}
	return strings.Repeat("*", len(digits)-3) + digits[len(digits)-3:]
}

// SanitizeText is a general-purpose sanitizer for any user-provided text.
func SanitizeText(text string) string {
	if text == "" {
		return "<empty>"
	}

	// For short text, show length only
	if len(text) <= 10 {
		return fmt.Sprintf("<%d chars>", len(text))
	}

	// For longer text, show prefix and length
	return fmt.Sprintf("%s...<%d chars>", text[:3], len(text))
}
