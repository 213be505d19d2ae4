// Package tokens issues and verifies the signed, self-contained tokens that
// carry a principal between requests. The server keeps no record of them.
package tokens

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/coinkrazygaming/coinkrazy2-sub002/models"
	"github.com/coinkrazygaming/coinkrazy2-sub002/services"
	"github.com/golang-jwt/jwt/v5"
)

// Claims represents the claim set embedded in an issued token
type Claims struct {
	jwt.RegisteredClaims
	UserID   int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsAdmin  bool   `json:"isAdmin"`
	IsStaff  bool   `json:"isStaff"`
}

// Codec signs principals into HS256 tokens and verifies them
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// Option configures a Codec
type Option func(*Codec)

// WithClock overrides the wall clock used for issuance and expiry checks
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec creates a token codec for the given signing secret
func NewCodec(secret, issuer string, opts ...Option) *Codec {
	c := &Codec{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Issue signs the principal with an expiry of now+ttl
func (c *Codec) Issue(p *models.Principal, ttl time.Duration) (string, error) {
	if p == nil {
		return "", errors.New("cannot issue token for absent principal")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive, got %s", ttl)
	}

	now := c.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(p.ID, 10),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:   p.ID,
		Username: p.Username,
		Email:    p.Email,
		IsAdmin:  p.IsAdmin,
		IsStaff:  p.IsStaff,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and then the expiry of a token.
// Any structural, algorithm or signature problem is reported as
// services.ErrInvalidSignature; a well-signed token past its expiry is
// reported as services.ErrTokenExpired.
func (c *Codec) Verify(tokenString string) (*models.Principal, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, services.WrapError(services.ErrorTypeInvalidSignature, "token signature is invalid", err)
	}

	validator := jwt.NewValidator(
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(c.issuer),
	)
	if err := validator.Validate(claims); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, services.WrapError(services.ErrorTypeExpired, "token has expired", err)
		}
		return nil, services.WrapError(services.ErrorTypeInvalidSignature, "token claims are invalid", err)
	}

	return &models.Principal{
		ID:       claims.UserID,
		Username: claims.Username,
		Email:    claims.Email,
		IsAdmin:  claims.IsAdmin,
		IsStaff:  claims.IsStaff,
	}, nil
}
