package auth

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrTokenFormat  = errors.New("auth: invalid token format")
	ErrTokenInvalid = errors.New("auth: invalid token")
	ErrTokenExpired = errors.New("auth: token expired")
)

// maxTokenLen bounds the attacker-controlled data decoded for one token.
const maxTokenLen = 4096

// KeySize is the key length of the default AEAD.
const KeySize = chacha20poly1305.KeySize

// Token is the payload sealed into a session cookie.
type Token struct {
	UserID  int64 `cbor:"1,keyasint"`
	Expires int64 `cbor:"2,keyasint"` // unix seconds
}

// TokenCodec seals Tokens into cookie values and opens them again.
//
// Format: keyID "." base64url(nonce || AEAD.Seal(token))
//
// The additional data binds the cookie name, domain, path and secure flag.
// keys holds every accepted key; keyID picks the one used for sealing, so
// keys can be rotated by adding a new key and switching keyID.
type TokenCodec struct {
	name     string
	path     string
	domain   string
	secure   bool
	sameSite http.SameSite

	keyID   string
	keys    map[string][]byte
	newAEAD func(key []byte) (cipher.AEAD, error)
	now     func() time.Time
}

// TokenOption configures a TokenCodec.
type TokenOption func(*TokenCodec)

// WithAEAD replaces the default XChaCha20-Poly1305 AEAD.
func WithAEAD(f func([]byte) (cipher.AEAD, error)) TokenOption {
	return func(c *TokenCodec) { c.newAEAD = f }
}

// WithCookiePath sets the cookie path. The default is "/".
func WithCookiePath(path string) TokenOption {
	return func(c *TokenCodec) { c.path = path }
}

// WithCookieDomain sets the cookie domain.
func WithCookieDomain(domain string) TokenOption {
	return func(c *TokenCodec) { c.domain = domain }
}

// WithSecure sets the Secure flag. The default is true.
func WithSecure(secure bool) TokenOption {
	return func(c *TokenCodec) { c.secure = secure }
}

// WithSameSite sets the SameSite attribute. The default is Lax.
func WithSameSite(s http.SameSite) TokenOption {
	return func(c *TokenCodec) { c.sameSite = s }
}

// NewTokenCodec returns a codec for the cookie named cookieName.
func NewTokenCodec(cookieName, keyID string, keys map[string][]byte, opts ...TokenOption) (*TokenCodec, error) {
	c := &TokenCodec{
		name:     cookieName,
		path:     "/",
		secure:   true,
		sameSite: http.SameSiteLaxMode,
		keyID:    keyID,
		keys:     keys,
		newAEAD:  chacha20poly1305.NewX,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if cookieName == "" {
		return nil, errors.New("auth: cookie name must not be empty")
	}
	if _, ok := keys[keyID]; !ok {
		return nil, fmt.Errorf("auth: key %q not found in keys", keyID)
	}
	for id, k := range keys {
		if _, err := c.newAEAD(k); err != nil {
			return nil, fmt.Errorf("auth: invalid key %s: %w", id, err)
		}
	}
	if c.path == "" {
		c.path = "/"
	}
	return c, nil
}

// DecodeKeys decodes base64 (standard or URL, padded or not) keys as they
// appear in configuration.
func DecodeKeys(encoded map[string]string) (map[string][]byte, error) {
	keys := make(map[string][]byte, len(encoded))
	for id, s := range encoded {
		s = strings.TrimRight(strings.TrimSpace(s), "=")
		b, err := base64.RawStdEncoding.DecodeString(s)
		if err != nil {
			if b, err = base64.RawURLEncoding.DecodeString(s); err != nil {
				return nil, fmt.Errorf("auth: key %s: %w", id, err)
			}
		}
		keys[id] = b
	}
	return keys, nil
}

// Name returns the cookie name.
func (c *TokenCodec) Name() string {
	return c.name
}

func (c *TokenCodec) aad() []byte {
	secure := "f"
	if c.secure {
		secure = "t"
	}
	return []byte(c.name + ":" + c.domain + ":" + c.path + ":" + secure)
}

// Seal encodes and encrypts t.
func (c *TokenCodec) Seal(t Token) (string, error) {
	plain, err := cbor.Marshal(t)
	if err != nil {
		return "", err
	}
	aead, err := c.newAEAD(c.keys[c.keyID])
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, plain, c.aad())
	return c.keyID + "." + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open decrypts and decodes value. Expired tokens fail with ErrTokenExpired.
func (c *TokenCodec) Open(value string) (Token, error) {
	if len(value) == 0 || len(value) > maxTokenLen {
		return Token{}, ErrTokenFormat
	}
	keyID, enc, ok := strings.Cut(value, ".")
	if !ok || keyID == "" || enc == "" {
		return Token{}, ErrTokenFormat
	}
	key, ok := c.keys[keyID]
	if !ok {
		return Token{}, ErrTokenInvalid
	}
	sealed, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return Token{}, ErrTokenFormat
	}
	aead, err := c.newAEAD(key)
	if err != nil {
		return Token{}, err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return Token{}, ErrTokenFormat
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, c.aad())
	if err != nil {
		return Token{}, ErrTokenInvalid
	}
	var t Token
	if err := cbor.Unmarshal(plain, &t); err != nil {
		return Token{}, ErrTokenFormat
	}
	if c.now().Unix() >= t.Expires {
		return Token{}, ErrTokenExpired
	}
	return t, nil
}

// Verify implements Verifier for cookie values.
func (c *TokenCodec) Verify(_ context.Context, raw string) (Ctx, error) {
	t, err := c.Open(raw)
	if err != nil {
		return Ctx{}, err
	}
	return NewCtx(t.UserID)
}

// Cookie returns a session cookie for userID valid for ttl.
func (c *TokenCodec) Cookie(userID int64, ttl time.Duration) (*http.Cookie, error) {
	if ttl < time.Second {
		return nil, errors.New("auth: cookie ttl must be at least one second")
	}
	expires := c.now().Add(ttl)
	value, err := c.Seal(Token{UserID: userID, Expires: expires.Unix()})
	if err != nil {
		return nil, err
	}
	return &http.Cookie{
		Name:     c.name,
		Value:    value,
		Path:     c.path,
		Domain:   c.domain,
		MaxAge:   int(ttl / time.Second),
		Expires:  expires,
		Secure:   c.secure,
		HttpOnly: true,
		SameSite: c.sameSite,
	}, nil
}

// Clear returns a cookie that removes the session cookie from the client.
func (c *TokenCodec) Clear() *http.Cookie {
	return &http.Cookie{
		Name:     c.name,
		Path:     c.path,
		Domain:   c.domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   c.secure,
		HttpOnly: true,
		SameSite: c.sameSite,
	}
}
