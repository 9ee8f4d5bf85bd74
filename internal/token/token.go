package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer = "gad.kz"

	defaultAPITTL  = 15 * time.Minute
	telegramTTL    = 7 * 24 * time.Hour
	issuedAtLeeway = 5 * time.Second
)

// Audience declares which system a token is intended for.
type Audience string

const (
	AudienceAPI      Audience = "api"
	AudienceTelegram Audience = "telegram"
)

// Valid reports whether the audience is one of the known values.
func (a Audience) Valid() bool {
	return a == AudienceAPI || a == AudienceTelegram
}

// Claims carries the signed identity of a bearer. Scope travels as a single
// space-joined string, not an array.
type Claims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Aud returns the audience claim. Tokens minted here carry exactly one.
func (c *Claims) Aud() Audience {
	if len(c.Audience) == 0 {
		return ""
	}
	return Audience(c.Audience[0])
}

// Scopes splits the scope claim into its ordered entries.
func (c *Claims) Scopes() []string {
	if strings.TrimSpace(c.Scope) == "" {
		return nil
	}
	return strings.Fields(c.Scope)
}

// HasScope reports whether the token grants the capability.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes() {
		if s == scope {
			return true
		}
	}
	return false
}

// Service issues and verifies HS256-signed bearer tokens. Issuance and
// verification are pure functions of the secret and the clock; nothing is
// persisted, so the Service is safe for concurrent use.
type Service struct {
	secret []byte
	issuer string
	apiTTL time.Duration
	now    func() time.Time
}

// Option configures Service behavior.
type Option func(*Service) error

// WithSecret sets the HMAC signing secret. Required.
func WithSecret(secret string) Option {
	return func(s *Service) error {
		if strings.TrimSpace(secret) == "" {
			return errors.New("token: secret is empty")
		}
		s.secret = []byte(secret)
		return nil
	}
}

// WithIssuer overrides the default issuer claim.
func WithIssuer(issuer string) Option {
	return func(s *Service) error {
		if v := strings.TrimSpace(issuer); v != "" {
			s.issuer = v
		}
		return nil
	}
}

// WithAccessTTL overrides the default lifetime of api-audience tokens.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Service) error {
		if ttl > 0 {
			s.apiTTL = ttl
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs a Service. A signing secret must be supplied.
func NewService(opts ...Option) (*Service, error) {
	svc := &Service{
		issuer: defaultIssuer,
		apiTTL: defaultAPITTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	if len(svc.secret) == 0 {
		return nil, errors.New("token: secret is not configured")
	}
	return svc, nil
}

// IssueOptions tune a single issuance.
type IssueOptions struct {
	// ExpiresIn overrides the audience default TTL when positive.
	ExpiresIn time.Duration
	// Scopes are granted capabilities; order is preserved, duplicates dropped.
	Scopes []string
	// Issuer overrides the service-wide issuer claim.
	Issuer string
}

// Issue signs a token for the subject and audience. Two calls with identical
// inputs still produce distinct tokens: every issuance gets a fresh jti.
func (s *Service) Issue(subject string, audience Audience, opts IssueOptions) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, errors.New("token: subject is required")
	}
	if !audience.Valid() {
		return "", time.Time{}, errors.New("token: unknown audience")
	}

	ttl := opts.ExpiresIn
	if ttl <= 0 {
		if audience == AudienceTelegram {
			ttl = telegramTTL
		} else {
			ttl = s.apiTTL
		}
	}
	issuer := strings.TrimSpace(opts.Issuer)
	if issuer == "" {
		issuer = s.issuer
	}

	now := s.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Scope: strings.Join(normalizeScopes(opts.Scopes), " "),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Audience:  jwt.ClaimStrings{string(audience)},
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify validates the signed blob and returns its claims. expectedAudience
// and requiredScopes are optional constraints; pass the zero values to skip
// them. Verification is self-contained: no store lookup is performed.
func (s *Service) Verify(blob string, expectedAudience Audience, requiredScopes []string) (*Claims, error) {
	blob = strings.TrimSpace(blob)
	if blob == "" {
		return nil, ErrMalformedToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(blob, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrMalformedToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		// Expiry wins over every other defect: a rejected token that is also
		// past its exp claim reports expiry.
		if claims.ExpiresAt != nil && !s.now().Before(claims.ExpiresAt.Time) {
			return nil, ErrExpiredToken
		}
		return nil, ErrMalformedToken
	}
	if !parsed.Valid {
		return nil, ErrMalformedToken
	}
	if err := validateClaims(claims, s.now().UTC()); err != nil {
		return nil, err
	}

	if expectedAudience != "" && claims.Aud() != expectedAudience {
		return nil, ErrAudienceMismatch
	}
	for _, required := range requiredScopes {
		if !claims.HasScope(required) {
			return nil, ErrMissingScope
		}
	}
	return claims, nil
}

func validateClaims(claims *Claims, now time.Time) error {
	if strings.TrimSpace(claims.Subject) == "" {
		return ErrMalformedToken
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return ErrMalformedToken
	}
	if !now.Before(claims.ExpiresAt.Time) {
		return ErrExpiredToken
	}
	if claims.IssuedAt.Time.After(now.Add(issuedAtLeeway)) {
		return ErrMalformedToken
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return ErrMalformedToken
	}
	if !claims.Aud().Valid() {
		return ErrMalformedToken
	}
	return nil
}

func normalizeScopes(scopes []string) []string {
	if len(scopes) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(scopes))
	var out []string
	for _, scope := range scopes {
		scope = strings.TrimSpace(scope)
		if scope == "" {
			continue
		}
		if _, ok := seen[scope]; ok {
			continue
		}
		seen[scope] = struct{}{}
		out = append(out, scope)
	}
	return out
}
