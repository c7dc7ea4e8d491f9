package jwt

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Algorithm names an HMAC signing method.
type Algorithm string

const (
	HS256 Algorithm = "HS256"
	HS384 Algorithm = "HS384"
	HS512 Algorithm = "HS512"
)

// MinSecretBytes is the shortest accepted signing secret.
const MinSecretBytes = 32

// ErrInvalidAccessToken wraps every verification failure.
var ErrInvalidAccessToken = errors.New("invalid access token")

// Config controls issuance and verification.
type Config struct {
	AccessTTL time.Duration
	Algorithm Algorithm
	Secret    []byte
	Issuer    string
	Audience  string
	Leeway    time.Duration

	// KeyID is stamped into the header when set. VerifyKeys lets tokens signed
	// under a previous secret verify during rotation.
	KeyID      string
	VerifyKeys map[string][]byte

	// Now overrides the verification clock; nil means time.Now.
	Now func() time.Time
}

// Manager signs and parses access tokens. It holds no mutable state.
type Manager struct {
	config Config
	method jwt.SigningMethod
}

// AccessClaims is the token payload.
type AccessClaims struct {
	Email       string   `json:"email,omitempty"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// Subject is what a token is issued for.
type Subject struct {
	AccountID   string
	Email       string
	Roles       []string
	Permissions []string
}

// NewManager validates cfg.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if len(cfg.Secret) < MinSecretBytes {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", MinSecretBytes)
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = HS256
	}
	method, err := signingMethod(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	for kid, key := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key map contains empty kid")
		}
		if len(key) < MinSecretBytes {
			return nil, fmt.Errorf("verify key for kid %q is too short", kid)
		}
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	return &Manager{config: cfg, method: method}, nil
}

// TTL returns the configured access-token lifetime.
func (j *Manager) TTL() time.Duration {
	return j.config.AccessTTL
}

// CreateAccess signs a token for sub issued at now. Roles and permissions are
// de-duplicated and sorted before signing.
func (j *Manager) CreateAccess(sub Subject, now time.Time) (string, *AccessClaims, error) {
	if strings.TrimSpace(sub.AccountID) == "" {
		return "", nil, errors.New("subject account id is empty")
	}

	claims := &AccessClaims{
		Email:       sub.Email,
		Roles:       distinct(sub.Roles),
		Permissions: distinct(sub.Permissions),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.AccountID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.config.AccessTTL)),
			Issuer:    j.config.Issuer,
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	token := jwt.NewWithClaims(j.method, claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	signed, err := token.SignedString(j.config.Secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// ParseAccess verifies signature, algorithm, expiry, issuer and audience.
// Every failure wraps ErrInvalidAccessToken.
func (j *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}
	if j.config.Now != nil {
		options = append(options, jwt.WithTimeFunc(j.config.Now))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != j.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}

		if len(j.config.VerifyKeys) > 0 {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid")
			}
			key, ok := j.config.VerifyKeys[kid]
			if !ok {
				return nil, errors.New("unknown kid")
			}
			return key, nil
		}

		if j.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != j.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}

		return j.config.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAccessToken, err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccessToken, jwt.ErrTokenInvalidClaims)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidAccessToken)
	}

	return claims, nil
}

// IsExpired reports whether err came from an otherwise valid token whose exp
// has passed.
func IsExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}

func signingMethod(alg Algorithm) (jwt.SigningMethod, error) {
	switch Algorithm(strings.ToUpper(string(alg))) {
	case HS256:
		return jwt.SigningMethodHS256, nil
	case HS384:
		return jwt.SigningMethodHS384, nil
	case HS512:
		return jwt.SigningMethodHS512, nil
	default:
		return nil, errors.New("unsupported signing algorithm")
	}
}

func distinct(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
