package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const DefaultIssuer = "salesdeck"

// Metadata is the contextual snapshot embedded in a token at issuance. It
// is informational; authorization reads the live user record instead.
type Metadata struct {
	OrganizationID string `json:"organization_id,omitempty"`
	BranchID       string `json:"branch_id,omitempty"`
	Role           Role   `json:"role,omitempty"`
}

// Claims is the decoded token payload.
type Claims struct {
	Metadata
	jwt.RegisteredClaims
}

// Codec signs and verifies identity tokens with a symmetric secret.
type Codec struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	issuer string
	now    func() time.Time
}

// CodecOption configures a Codec.
type CodecOption func(*Codec) error

// WithIssuer overrides the iss claim written and expected.
func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) error {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			c.issuer = issuer
		}
		return nil
	}
}

// WithAlgorithm selects the HMAC variant by its JWA name.
func WithAlgorithm(alg string) CodecOption {
	return func(c *Codec) error {
		switch strings.ToUpper(strings.TrimSpace(alg)) {
		case "", "HS256":
			c.method = jwt.SigningMethodHS256
		case "HS384":
			c.method = jwt.SigningMethodHS384
		case "HS512":
			c.method = jwt.SigningMethodHS512
		default:
			return fmt.Errorf("auth: unsupported signing algorithm %q", alg)
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) CodecOption {
	return func(c *Codec) error {
		if fn != nil {
			c.now = fn
		}
		return nil
	}
}

// NewCodec builds a codec around secret.
func NewCodec(secret string, opts ...CodecOption) (*Codec, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errMissingSecret
	}
	c := &Codec{
		secret: []byte(secret),
		method: jwt.SigningMethodHS256,
		issuer: DefaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Issue signs a token for subject that expires ttl after now. A zero ttl
// yields a token that is already expired.
func (c *Codec) Issue(subject string, ttl time.Duration, md Metadata) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("auth: subject is required")
	}
	if ttl < 0 {
		return "", errors.New("auth: ttl must not be negative")
	}
	now := c.now().UTC()
	claims := Claims{
		Metadata: md,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies signature, algorithm, issuer and expiry. Every failure is
// a *Denial of kind KindInvalidCredential.
func (c *Codec) Decode(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, deny(KindInvalidCredential, ReasonMissingCredential, nil)
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
		jwt.WithStrictDecoding(),
	)
	if err != nil {
		return nil, deny(KindInvalidCredential, decodeReason(err), err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, deny(KindInvalidCredential, ReasonMalformed, nil)
	}
	return claims, nil
}

func decodeReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ReasonBadSignature
	default:
		return ReasonMalformed
	}
}
