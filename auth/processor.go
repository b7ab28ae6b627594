package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/mnehpets/onerpc/endpoint"
)

// Processor authenticates requests from a session cookie or an
// "Authorization: Bearer" header and stores the Result on the request
// context.
//
// It never rejects a request: methods that need a caller declare a Ctx
// resource and fail individually when the Result carries an error.
type Processor struct {
	codec  *TokenCodec
	bearer Verifier
	ttl    time.Duration
}

// NewProcessor returns a Processor. Either codec or bearer may be nil to
// disable that source. ttl is the session lifetime used when the cookie is
// refreshed; a session cookie with less than half of ttl left is reissued.
func NewProcessor(codec *TokenCodec, bearer Verifier, ttl time.Duration) *Processor {
	return &Processor{codec: codec, bearer: bearer, ttl: ttl}
}

var _ endpoint.Processor = (*Processor)(nil)

func (p *Processor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	res := p.authenticate(r)
	return next(w, r.WithContext(WithResult(r.Context(), res)))
}

func (p *Processor) authenticate(r *http.Request) Result {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return Result{Source: "bearer", Err: &Error{Msg: "malformed authorization header"}}
		}
		if p.bearer == nil {
			return Result{Source: "bearer", Err: &Error{Msg: "bearer tokens not accepted"}}
		}
		c, err := p.bearer.Verify(r.Context(), strings.TrimSpace(token))
		if err != nil {
			return Result{Source: "bearer", Err: asAuthError(err)}
		}
		return Result{Source: "bearer", Ctx: c}
	}

	if p.codec == nil {
		return Result{Err: ErrNoCredentials}
	}
	cookie, err := r.Cookie(p.codec.Name())
	if err != nil {
		return Result{Err: ErrNoCredentials}
	}
	t, err := p.codec.Open(cookie.Value)
	if err != nil {
		endpoint.Defer(r.Context(), func(w http.ResponseWriter) {
			http.SetCookie(w, p.codec.Clear())
		})
		return Result{Source: "cookie", Err: &Error{Msg: "invalid session", Cause: err}}
	}
	c, err := NewCtx(t.UserID)
	if err != nil {
		return Result{Source: "cookie", Err: asAuthError(err)}
	}

	if p.ttl > 0 && time.Until(time.Unix(t.Expires, 0)) < p.ttl/2 {
		endpoint.Defer(r.Context(), func(w http.ResponseWriter) {
			if fresh, err := p.codec.Cookie(t.UserID, p.ttl); err == nil {
				http.SetCookie(w, fresh)
			}
		})
	}
	return Result{Source: "cookie", Ctx: c}
}

func asAuthError(err error) error {
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Msg: "authentication failed", Cause: err}
}
