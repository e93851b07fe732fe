package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"jamlink/internal/core/domain"
	"jamlink/pkg/validation"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token expired")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidPairing = errors.New("invalid pairing code")
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

// AuthService pairs presentation clients with the control core and issues
// the bearer tokens the HTTP and websocket bridges check.
type AuthService interface {
	Pair(name, pairingCode string, role domain.ClientRole) (*TokenPair, error)
	GenerateToken(client domain.Client) (string, error)
	GenerateRefreshToken(client domain.Client) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
	ValidateRefreshToken(tokenString string) (*Claims, error)
	CheckPermission(claims *Claims, required domain.ClientRole) error
}

type Claims struct {
	ClientID  domain.ClientID   `json:"client_id"`
	Name      string            `json:"name"`
	Role      domain.ClientRole `json:"role"`
	TokenType string            `json:"token_type"`
	jwt.RegisteredClaims
}

// Client rebuilds the paired client from the token claims.
func (c *Claims) Client() domain.Client {
	return domain.Client{ID: c.ClientID, Name: c.Name, Role: c.Role}
}

type TokenPair struct {
	Client       domain.Client `json:"client"`
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    int           `json:"expires_in"`
}

type authService struct {
	jwtSecret       []byte
	pairingCode     []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	now             func() time.Time
}

// NewAuthService signs tokens with jwtSecret. Pair succeeds only with pairingCode.
func NewAuthService(jwtSecret, pairingCode string, accessTokenTTL, refreshTokenTTL time.Duration) AuthService {
	return &authService{
		jwtSecret:       []byte(jwtSecret),
		pairingCode:     []byte(pairingCode),
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
		now:             time.Now,
	}
}

// Pair registers a new client when the pairing code shown by the host
// matches.
func (s *authService) Pair(name, pairingCode string, role domain.ClientRole) (*TokenPair, error) {
	if subtle.ConstantTimeCompare([]byte(pairingCode), s.pairingCode) != 1 {
		return nil, ErrInvalidPairing
	}
	if err := validation.ValidateUsername(name); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if role == "" {
		role = domain.RoleController
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidArgument, role)
	}

	client := domain.Client{
		ID:       domain.ClientID(uuid.New().String()),
		Name:     name,
		Role:     role,
		PairedAt: s.now(),
	}
	access, err := s.GenerateToken(client)
	if err != nil {
		return nil, err
	}
	refresh, err := s.GenerateRefreshToken(client)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		Client:       client,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(s.accessTokenTTL / time.Second),
	}, nil
}

// GenerateToken issues a short-lived access token.
func (s *authService) GenerateToken(client domain.Client) (string, error) {
	return s.sign(client, tokenAccess, s.accessTokenTTL)
}

func (s *authService) GenerateRefreshToken(client domain.Client) (string, error) {
	return s.sign(client, tokenRefresh, s.refreshTokenTTL)
}

func (s *authService) sign(client domain.Client, tokenType string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := &Claims{
		ClientID:  client.ID,
		Name:      client.Name,
		Role:      client.Role,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(client.ID),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken accepts access tokens only.
func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	return s.parse(tokenString, tokenAccess)
}

// ValidateRefreshToken accepts refresh tokens only.
func (s *authService) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return s.parse(tokenString, tokenRefresh)
}

func (s *authService) parse(tokenString, tokenType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType != tokenType || !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// CheckPermission fails with ErrUnauthorized when the role is below required.
func (s *authService) CheckPermission(claims *Claims, required domain.ClientRole) error {
	if claims == nil || !claims.Role.Allows(required) {
		return ErrUnauthorized
	}
	return nil
}

type clientContextKey struct{}

func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, clientContextKey{}, claims)
}

func ClaimsFromContext(ctx context.Context) (*Claims, error) {
	claims, ok := ctx.Value(clientContextKey{}).(*Claims)
	if !ok || claims == nil {
		return nil, ErrUnauthorized
	}
	return claims, nil
}
