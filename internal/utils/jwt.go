package utils // package utils provides helper functions for token creation

import (
    "errors"
    "time" // time utilities for generating expirations

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// AccessToken represents a signed JWT access token along with its expiry.
// The Token field contains the JWT string.  Exp stores the expiration
// timestamp.  Tokens are sent in the Authorization header when calling
// the reservation API.
type AccessToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// NewAccessToken builds and signs an HS256 JWT scoped to a tenant.  The
// subject defaults to the tenant when empty.  The JWT carries the tenant,
// role, subject (sub), expiration (exp) and issued at (iat) claims.
func NewAccessToken(secret, tenantID, subject, role string, ttl time.Duration) (AccessToken, error) {
    if tenantID == "" {
        return AccessToken{}, errors.New("tenant is required")
    }
    if subject == "" {
        subject = tenantID
    }
    now := time.Now().UTC()
    exp := now.Add(ttl)
    claims := jwt.MapClaims{
        "tenant": tenantID,
        "sub":    subject,
        "role":   role,
        "exp":    exp.Unix(),
        "iat":    now.Unix(),
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}
