package utils // package utils provides helper functions for token creation and hashing

import (
    "crypto/rand"   // secure random number generation
    "crypto/sha256" // SHA‑256 hashing for refresh tokens
    "encoding/hex"  // hex encoding and decoding functions
    "errors"        // sentinel for malformed claims
    "strings"       // role list encoding inside the token
    "time"          // time utilities for generating expirations

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens

    "github.com/iliyamo/eventflow/internal/model" // roles and the actor identity
)

// ErrInvalidToken is returned by ParseAccessToken for any token that is
// malformed, expired, signed with another key or missing its subject.
var ErrInvalidToken = errors.New("invalid or expired token")

// AccessToken represents a signed JWT access token along with its expiry.
// Access tokens are short‑lived and sent in the Authorization header when
// calling protected endpoints.
type AccessToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// RefreshToken represents a long‑lived token used to obtain new access tokens.
// Only a SHA‑256 hash of Raw is stored in the database.
type RefreshToken struct {
    Raw string    // raw token string returned to the client
    Exp time.Time // UTC expiration time
}

// Claims is the payload of an access token: the standard registered claims
// plus the user's email and comma separated roles.
type Claims struct {
    Email string `json:"email"`
    Roles string `json:"roles"`
    jwt.RegisteredClaims
}

// NewAccessToken builds and signs an HS256 JWT for a user. The subject is
// the user id; roles travel as a comma separated list.
func NewAccessToken(secret string, u *model.User, ttlMin int) (AccessToken, error) {
    now := time.Now().UTC()
    exp := now.Add(time.Duration(ttlMin) * time.Minute)

    roles := make([]string, 0, len(u.Roles))
    for _, r := range u.Roles {
        roles = append(roles, string(r))
    }
    claims := Claims{
        Email: u.Email,
        Roles: strings.Join(roles, ","),
        RegisteredClaims: jwt.RegisteredClaims{
            Subject:   u.ID,
            ExpiresAt: jwt.NewNumericDate(exp),
            IssuedAt:  jwt.NewNumericDate(now),
        },
    }
    signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies an HS256 token and returns the actor it names.
func ParseAccessToken(secret, raw string) (model.Actor, error) {
    var claims Claims
    tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
        // Reject tokens signed with anything but HMAC.
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, ErrInvalidToken
        }
        return []byte(secret), nil
    }, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
    if err != nil || !tok.Valid || claims.Subject == "" {
        return model.Actor{}, ErrInvalidToken
    }

    actor := model.Actor{UserID: claims.Subject, Email: claims.Email}
    for _, r := range strings.Split(claims.Roles, ",") {
        if role := model.Role(strings.TrimSpace(r)); role.Valid() {
            actor.Roles = append(actor.Roles, role)
        }
    }
    return actor, nil
}

// NewRefreshToken returns a cryptographically secure random token (raw) and
// its expiration time.
func NewRefreshToken(ttlDays int) (RefreshToken, error) {
    raw, err := randomHex(48) // 48 bytes -> 96 hex chars
    if err != nil {
        return RefreshToken{}, err
    }
    return RefreshToken{
        Raw: raw,
        Exp: time.Now().UTC().Add(time.Duration(ttlDays) * 24 * time.Hour),
    }, nil
}

// HashRefreshRaw returns the SHA‑256 hash of the raw refresh token as a hex
// string. This is the value persisted and looked up.
func HashRefreshRaw(raw string) string {
    sum := sha256.Sum256([]byte(raw))
    return hex.EncodeToString(sum[:])
}

// randomHex returns a hex‑encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
    buf := make([]byte, n)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    return hex.EncodeToString(buf), nil
}
