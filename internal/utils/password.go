package utils

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLen is the minimum number of characters a password must
// have once surrounding whitespace is trimmed.
const MinPasswordLen = 6

// dummyHash is compared against when no account matched, so a lookup
// miss costs about as much as a wrong password.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("helpdesk-dummy-password"), bcrypt.DefaultCost)

// HashPassword returns bcrypt hash using the given cost.  Costs outside
// bcrypt's accepted range fall back to bcrypt.DefaultCost.
func HashPassword(plain string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// BurnVerify performs a throwaway bcrypt comparison.
func BurnVerify(plain string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(plain))
}

// IsStrongPassword applies the password policy.
func IsStrongPassword(plain string) bool {
	return len([]rune(strings.TrimSpace(plain))) >= MinPasswordLen
}

// IsBcryptHash reports whether s looks like a bcrypt hash rather than a
// plaintext password carried over from an older data file.
func IsBcryptHash(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}
