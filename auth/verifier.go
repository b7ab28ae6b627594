package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// Verifier turns a raw credential into a Ctx.
type Verifier interface {
	Verify(ctx context.Context, raw string) (Ctx, error)
}

// minSecretLen is the shortest HS256 secret accepted.
const minSecretLen = 32

// JWTVerifier verifies HS256 bearer tokens whose subject is a user id.
type JWTVerifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewJWTVerifier returns a verifier for tokens signed with secret. A
// non-empty issuer must match the iss claim.
func NewJWTVerifier(secret []byte, issuer string) (*JWTVerifier, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("auth: jwt secret must be at least %d bytes", minSecretLen)
	}
	return &JWTVerifier{secret: secret, issuer: issuer, leeway: 30 * time.Second}, nil
}

func (v *JWTVerifier) Verify(_ context.Context, raw string) (Ctx, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims jwt.RegisteredClaims
	tok, err := jwt.NewParser(opts...).ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil || !tok.Valid {
		return Ctx{}, &Error{Msg: "invalid bearer token", Cause: err}
	}
	return ctxFromSubject(claims.Subject)
}

// SignJWT mints an HS256 token for userID, valid for ttl.
func SignJWT(secret []byte, issuer string, userID int64, ttl time.Duration) (string, error) {
	if len(secret) < minSecretLen {
		return "", fmt.Errorf("auth: jwt secret must be at least %d bytes", minSecretLen)
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func ctxFromSubject(sub string) (Ctx, error) {
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return Ctx{}, &Error{Msg: "invalid subject", Cause: err}
	}
	c, err := NewCtx(id)
	if err != nil {
		return Ctx{}, &Error{Msg: "invalid subject", Cause: err}
	}
	return c, nil
}

// SubjectResolver maps a verified OIDC ID token to a user id.
type SubjectResolver func(ctx context.Context, token *oidc.IDToken) (int64, error)

// NumericSubject uses the subject claim as the user id.
func NumericSubject(_ context.Context, token *oidc.IDToken) (int64, error) {
	return strconv.ParseInt(token.Subject, 10, 64)
}

// OIDCVerifier verifies OIDC ID tokens sent as bearer tokens.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
	resolve  SubjectResolver
}

// OIDCOption configures the ID token verifier.
type OIDCOption func(*oidc.Config)

// WithSkipIssuerCheck disables issuer validation, for providers that issue
// tokens with a per-tenant issuer.
func WithSkipIssuerCheck() OIDCOption {
	return func(c *oidc.Config) { c.SkipIssuerCheck = true }
}

// NewOIDCVerifier performs discovery on issuer and returns a verifier for ID
// tokens issued to clientID.
func NewOIDCVerifier(ctx context.Context, issuer, clientID string, resolve SubjectResolver, opts ...OIDCOption) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to query provider %q: %w", issuer, err)
	}
	cfg := &oidc.Config{ClientID: clientID}
	for _, opt := range opts {
		opt(cfg)
	}
	return NewOIDCVerifierFrom(provider.Verifier(cfg), resolve), nil
}

// NewOIDCVerifierFrom wraps an existing ID token verifier.
func NewOIDCVerifierFrom(v *oidc.IDTokenVerifier, resolve SubjectResolver) *OIDCVerifier {
	if resolve == nil {
		resolve = NumericSubject
	}
	return &OIDCVerifier{verifier: v, resolve: resolve}
}

func (v *OIDCVerifier) Verify(ctx context.Context, raw string) (Ctx, error) {
	token, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return Ctx{}, &Error{Msg: "invalid id token", Cause: err}
	}
	id, err := v.resolve(ctx, token)
	if err != nil {
		return Ctx{}, &Error{Msg: "unknown subject", Cause: err}
	}
	c, err := NewCtx(id)
	if err != nil {
		return Ctx{}, &Error{Msg: "unknown subject", Cause: err}
	}
	return c, nil
}

// VerifierChain tries each verifier in turn and returns the first success.
// If all fail, the first error is returned.
type VerifierChain []Verifier

func (vc VerifierChain) Verify(ctx context.Context, raw string) (Ctx, error) {
	var first error
	for _, v := range vc {
		c, err := v.Verify(ctx, raw)
		if err == nil {
			return c, nil
		}
		if first == nil {
			first = err
		}
	}
	if first == nil {
		first = errors.New("auth: no verifier configured")
	}
	return Ctx{}, first
}
