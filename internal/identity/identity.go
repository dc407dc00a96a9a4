// Package identity verifies the bearer tokens presented by stream clients.
package identity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrUnauthorized is returned for any token that does not identify a
// subscriber.
var ErrUnauthorized = errors.New("unauthorized")

// Subscriber is the authenticated owner of a stream session.
type Subscriber struct {
	ID        string
	ExpiresAt time.Time
}

// Verifier checks a bearer token.
type Verifier interface {
	Verify(token string) (Subscriber, error)
}

// UserID is the "userId" claim. Tokens from the account service carry the
// numeric users.id, so a JSON number decodes to its decimal string.
type UserID string

func (u *UserID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*u = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*u = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("userId must be a string or number: %w", err)
	}
	*u = UserID(n.String())
	return nil
}

// Claims carries the subscriber id as "userId", falling back to "sub".
type Claims struct {
	UserID UserID `json:"userId,omitempty"`
	jwt.RegisteredClaims
}

// SubscriberID returns the user id claim, or the subject when absent.
func (c *Claims) SubscriberID() string {
	if c.UserID != "" {
		return string(c.UserID)
	}
	return c.Subject
}

// TokenService verifies and issues HS256 tokens.
type TokenService struct {
	secret []byte
	issuer string
	leeway time.Duration
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService builds a TokenService from cfg.
func NewTokenService(cfg Config) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("identity: empty signing secret")
	}
	return &TokenService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		leeway: cfg.Leeway,
		ttl:    cfg.TokenTTL,
		now:    time.Now,
	}, nil
}

// Verify validates signature, expiry and issuer and returns the subscriber.
// All failures wrap ErrUnauthorized.
func (s *TokenService) Verify(tokenString string) (Subscriber, error) {
	if tokenString == "" {
		return Subscriber{}, fmt.Errorf("%w: missing token", ErrUnauthorized)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return Subscriber{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if !token.Valid {
		return Subscriber{}, fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}

	id := claims.SubscriberID()
	if id == "" {
		return Subscriber{}, fmt.Errorf("%w: token has no subscriber id", ErrUnauthorized)
	}

	sub := Subscriber{ID: id}
	if claims.ExpiresAt != nil {
		sub.ExpiresAt = claims.ExpiresAt.Time
	}
	return sub, nil
}

// Issue signs a token for subscriberID valid for the configured TTL.
func (s *TokenService) Issue(subscriberID string) (string, error) {
	if subscriberID == "" {
		return "", errors.New("identity: empty subscriber id")
	}
	now := s.now()
	claims := Claims{
		UserID: UserID(subscriberID),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subscriberID,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
