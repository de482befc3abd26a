package utils

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against when a login names an unknown email, so
// both failure paths pay for one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("eventflow-dummy-password"), bcrypt.DefaultCost)

// HashPassword returns bcrypt hash using the given cost. Costs outside
// bcrypt's range fall back to bcrypt.DefaultCost.
func HashPassword(plain string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// BurnPasswordCheck performs a comparison whose result is discarded.
func BurnPasswordCheck(plain string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(plain))
}
