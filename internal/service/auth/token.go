package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultAccessTokenTTL = 15 * time.Minute
	defaultSigningMethod  = "HS256"
)

var ErrNoToken = errors.New("no bearer token in request")

// Access token manager with sensible defaults
type Config struct {
	// Secret key to sign access token
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// If not set than default is used
	AccessTTL time.Duration
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// The ledger does not log anybody in: it only needs to know who is acting.
// Tokens are issued by the platform identity service sharing the secret (or by gensecret for local runs).
type TokenManager struct {
	key       string
	alg       jwt.SigningMethod
	accessTTL time.Duration
}

func New(cfg Config) (*TokenManager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg := jwt.GetSigningMethod(cfg.Alg)
	if _, ok := alg.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unsupported signing method %q, only HMAC allowed", cfg.Alg)
	}

	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = defaultAccessTokenTTL
	}

	return &TokenManager{
		key:       cfg.SecretKey,
		alg:       alg,
		accessTTL: cfg.AccessTTL,
	}, nil
}

func (m *TokenManager) IssueAccess(actorID uuid.UUID) (IssuedToken, error) {
	now := time.Now().Truncate(time.Second)
	expiresAt := now.Add(m.accessTTL)

	token := jwt.NewWithClaims(m.alg, jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   actorID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})

	signed, err := token.SignedString([]byte(m.key))
	if err != nil {
		return IssuedToken{}, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	return IssuedToken{Value: signed, ExpiresAt: expiresAt}, nil
}

// Parse and validate access token, return actor id it was issued for
func (m *TokenManager) ParseAccess(ctx context.Context, access string) (uuid.UUID, error) {
	claims := &jwt.RegisteredClaims{}

	_, err := jwt.ParseWithClaims(
		access,
		claims,
		func(t *jwt.Token) (any, error) {
			return []byte(m.key), nil
		},
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("error while parsing or validating token. Err: %w", err)
	}

	actorID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("token subject is not an actor id. Err: %w", err)
	}

	return actorID, nil
}

// Authenticate request by 'Authorization: Bearer <token>' header
func (m *TokenManager) Authenticate(ctx context.Context, r *http.Request) (uuid.UUID, error) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(token) == "" {
		return uuid.Nil, ErrNoToken
	}

	return m.ParseAccess(ctx, strings.TrimSpace(token))
}
