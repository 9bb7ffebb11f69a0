package auth

import (
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jmcleod/opweb/internal/util"
)

const (
	// DefaultTokenTTL is the lifetime of a session token.
	DefaultTokenTTL = 7 * 24 * time.Hour
	// ClaimExpiry holds the absolute expiry in Unix milliseconds.
	ClaimExpiry = "exp"
)

// Claims is the body of a session token.
type Claims map[string]any

// String returns the claim as a string, or "" when absent or not a string.
func (c Claims) String(name string) string {
	s, _ := c[name].(string)
	return s
}

// TokenCodec issues and verifies stateless HS256 tokens of the form
// header.body.signature. Tokens cannot be revoked before they expire.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewTokenCodec returns a codec signing with secret. A non-positive ttl
// selects DefaultTokenTTL.
func NewTokenCodec(secret []byte, ttl time.Duration) *TokenCodec {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenCodec{
		secret: util.CopyBytes(secret),
		ttl:    ttl,
		now:    time.Now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithStrictDecoding(),
			// Expiry is checked below in milliseconds.
			jwt.WithoutClaimsValidation(),
		),
	}
}

// TTL returns the fixed token lifetime.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Sign returns a token carrying claims plus an expiry of now+TTL. A caller
// supplied "exp" claim is overwritten.
func (c *TokenCodec) Sign(claims Claims) (string, error) {
	body := make(jwt.MapClaims, len(claims)+1)
	for k, v := range claims {
		body[k] = v
	}
	body[ClaimExpiry] = c.now().Add(c.ttl).UnixMilli()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, body).SignedString(c.secret)
}

// Verify returns the claims of a valid, unexpired token. Malformed, forged
// and expired tokens all yield (nil, false).
func (c *TokenCodec) Verify(token string) (Claims, bool) {
	if token == "" {
		return nil, false
	}
	parsed, err := c.parser.Parse(token, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, false
	}
	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, false
	}
	if raw, present := mc[ClaimExpiry]; present {
		exp, ok := expiryMillis(raw)
		if !ok || exp < c.now().UnixMilli() {
			return nil, false
		}
	}
	return Claims(mc), true
}

func expiryMillis(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
