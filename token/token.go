package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/MrEthical07/authstate"
)

// SigningMethod selects the JWT algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

var (
	// ErrMissingSubject is returned for a token that verifies but names no user.
	ErrMissingSubject = errors.New("token has no subject")
	// ErrMissingSession is returned for a token without a session id.
	ErrMissingSession = errors.New("token has no session id")
)

// Config holds key material and validation rules shared by Verifier and
// Issuer.
type Config struct {
	SigningMethod SigningMethod
	// PrivateKey is the HS256 secret, or an Ed25519 private key (raw or PEM).
	PrivateKey []byte
	// PublicKey is the Ed25519 verification key (raw or PEM).
	PublicKey []byte
	Issuer    string
	Audience  string
	Leeway    time.Duration
	// TTL applies to issued tokens only.
	TTL          time.Duration
	RequireIAT   bool
	MaxFutureIAT time.Duration
	// KeyID is written into issued tokens and, when set, required on
	// verified ones.
	KeyID string
	// VerifyKeys maps kid to key for rotation. When non-empty, every token
	// must carry a kid found here.
	VerifyKeys map[string][]byte
}

// Claims is the provider access-token payload.
type Claims struct {
	Email string `json:"email,omitempty"`
	SID   string `json:"sid"`
	jwt.RegisteredClaims
}

// Session is what a verified token says about the caller.
type Session struct {
	Identity  authstate.Identity
	SessionID string
	ExpiresAt time.Time
}

// Verifier checks signatures and registered claims. It is immutable and safe
// for concurrent use.
type Verifier struct {
	config Config
	now    func() time.Time
}

func normalize(cfg Config) (Config, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return cfg, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return cfg, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 && len(cfg.VerifyKeys) == 0 {
			return cfg, errors.New("hs256 requires a secret")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return cfg, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return cfg, err
			}
		}
	default:
		return cfg, errors.New("unsupported signing method")
	}

	for kid, key := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return cfg, errors.New("verify key map contains empty kid")
		}
		if cfg.SigningMethod == MethodEd25519 {
			if _, err := parseEdPublicKey(key); err != nil {
				return cfg, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return cfg, errors.New("KeyID is not present in VerifyKeys")
		}
	}
	return cfg, nil
}

// NewVerifier validates cfg and returns a Verifier.
func NewVerifier(cfg Config) (*Verifier, error) {
	cfg, err := normalize(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.SigningMethod == MethodEd25519 && len(cfg.PublicKey) == 0 && len(cfg.VerifyKeys) == 0 {
		return nil, errors.New("ed25519 requires public key or verify key set")
	}
	return &Verifier{config: cfg, now: time.Now}, nil
}

// Verify parses tokenStr and returns the session it describes.
func (v *Verifier) Verify(tokenStr string) (Session, error) {
	claims, err := v.parse(tokenStr)
	if err != nil {
		return Session{}, err
	}
	if claims.Subject == "" {
		return Session{}, ErrMissingSubject
	}
	if claims.SID == "" {
		return Session{}, ErrMissingSession
	}

	out := Session{
		Identity:  authstate.Identity{ID: claims.Subject, Email: claims.Email},
		SessionID: claims.SID,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

func (v *Verifier) parse(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{v.method().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(v.config.Leeway))
	}
	if v.config.RequireIAT {
		options = append(options, jwt.WithIssuedAt())
	}
	if v.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.config.Issuer))
	}
	if v.config.Audience != "" {
		options = append(options, jwt.WithAudience(v.config.Audience))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, v.keyFunc)
	if err != nil {
		return nil, err
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.IssuedAt != nil {
		if claims.IssuedAt.Time.After(v.now().Add(v.config.MaxFutureIAT)) {
			return nil, errors.New("token iat too far in the future")
		}
	}
	return claims, nil
}

func (v *Verifier) keyFunc(t *jwt.Token) (any, error) {
	if t.Method.Alg() != v.method().Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	kid, _ := t.Header["kid"].(string)
	if len(v.config.VerifyKeys) > 0 {
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := v.config.VerifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return v.verifyKey(key)
	}
	if v.config.KeyID != "" && kid != v.config.KeyID {
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		return nil, errors.New("unknown kid")
	}

	if v.config.SigningMethod == MethodHS256 {
		return v.config.PrivateKey, nil
	}
	return parseEdPublicKey(v.config.PublicKey)
}

func (v *Verifier) method() jwt.SigningMethod {
	return methodFor(v.config.SigningMethod)
}

func (v *Verifier) verifyKey(key []byte) (any, error) {
	if v.config.SigningMethod == MethodHS256 {
		return key, nil
	}
	return parseEdPublicKey(key)
}

// Issuer signs access tokens. The demo server and tests use it to stand in
// for the identity provider.
type Issuer struct {
	config Config
	key    any
	now    func() time.Time
}

// NewIssuer validates cfg and returns an Issuer. TTL must be positive.
func NewIssuer(cfg Config) (*Issuer, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	cfg, err := normalize(cfg)
	if err != nil {
		return nil, err
	}

	var key any
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 issuer requires a secret")
		}
		key = cfg.PrivateKey
	default:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("ed25519 issuer requires a private key")
		}
		edKey, err := parseEdPrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		key = edKey
	}
	return &Issuer{config: cfg, key: key, now: time.Now}, nil
}

// Issue signs a token for id. An empty sid gets a fresh random session id,
// which is returned alongside the token.
func (i *Issuer) Issue(id authstate.Identity, sid string) (string, string, error) {
	if id.ID == "" {
		return "", "", ErrMissingSubject
	}
	if sid == "" {
		sid = uuid.NewString()
	}

	now := i.now()
	claims := Claims{
		Email: id.Email,
		SID:   sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(i.config.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    i.config.Issuer,
		},
	}
	if i.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{i.config.Audience}
	}

	tok := jwt.NewWithClaims(methodFor(i.config.SigningMethod), claims)
	if i.config.KeyID != "" {
		tok.Header["kid"] = i.config.KeyID
	}
	signed, err := tok.SignedString(i.key)
	if err != nil {
		return "", "", err
	}
	return signed, sid, nil
}

func methodFor(m SigningMethod) jwt.SigningMethod {
	if m == MethodHS256 {
		return jwt.SigningMethodHS256
	}
	return jwt.SigningMethodEdDSA
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
