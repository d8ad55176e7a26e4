package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const BcryptCost = 12

var (
	ErrNotConfigured      = errors.New("authentication is not properly configured")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Claims is the JWT payload issued at login.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Verifier checks bearer tokens. The websocket gate and the REST middleware
// both depend on this interface only.
type Verifier interface {
	Verify(token string) (*Claims, error)
}

// Authority issues and verifies HS256 tokens for the single admin account.
type Authority struct {
	secret       []byte
	ttl          time.Duration
	username     string
	passwordHash string
	now          func() time.Time
}

func NewAuthority(secret string, ttl time.Duration, username, passwordHash string) *Authority {
	return &Authority{
		secret:       []byte(secret),
		ttl:          ttl,
		username:     username,
		passwordHash: passwordHash,
		now:          time.Now,
	}
}

// Login checks the admin credentials and returns a signed token.
func (a *Authority) Login(username, password string) (string, error) {
	if len(a.secret) == 0 || a.username == "" || a.passwordHash == "" {
		return "", ErrNotConfigured
	}
	if username != a.username || !CheckPassword(password, a.passwordHash) {
		return "", ErrInvalidCredentials
	}
	return a.Issue(username)
}

// Issue signs a token for username valid for the configured TTL.
func (a *Authority) Issue(username string) (string, error) {
	if len(a.secret) == 0 {
		return "", ErrNotConfigured
	}
	now := a.now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry. Every failure maps to ErrInvalidToken.
func (a *Authority) Verify(token string) (*Claims, error) {
	if len(a.secret) == 0 || token == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
