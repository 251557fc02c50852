package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/AnshRaj112/serenify-auth/internal/apperr"
	"github.com/AnshRaj112/serenify-auth/internal/store"
)

type TokenKind string

const (
	AccessToken  TokenKind = "access"
	RefreshToken TokenKind = "refresh"
)

const invalidTokenMessage = "Invalid or expired token"

var errWrongTokenKind = errors.New("token kind mismatch")

// Claims is the JWT payload for both token kinds. Refresh tokens always
// carry an ID (jti) that must still be registered for the user.
type Claims struct {
	Kind TokenKind `json:"typ"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	// Rotate makes Refresh revoke the presented token and return a new one.
	Rotate     bool
	MaxPerUser int
}

// TokenService signs and verifies bearer tokens. Access and refresh tokens
// use different secrets so a token of one kind never verifies as the other.
type TokenService struct {
	cfg      TokenConfig
	registry store.RefreshTokenRegistry
	now      func() time.Time
}

func NewTokenService(cfg TokenConfig, registry store.RefreshTokenRegistry, now func() time.Time) *TokenService {
	if now == nil {
		now = time.Now
	}
	if cfg.MaxPerUser <= 0 {
		cfg.MaxPerUser = 10
	}
	return &TokenService{cfg: cfg, registry: registry, now: now}
}

func (s *TokenService) secret(kind TokenKind) []byte {
	if kind == RefreshToken {
		return []byte(s.cfg.RefreshSecret)
	}
	return []byte(s.cfg.AccessSecret)
}

func (s *TokenService) sign(userID uuid.UUID, kind TokenKind, ttl time.Duration, jti string) (string, error) {
	now := s.now()
	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret(kind))
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

func (s *TokenService) IssueAccessToken(userID uuid.UUID) (string, error) {
	return s.sign(userID, AccessToken, s.cfg.AccessTTL, "")
}

// IssueRefreshToken signs a refresh token and registers its id for userID.
func (s *TokenService) IssueRefreshToken(ctx context.Context, userID uuid.UUID) (string, error) {
	jti := uuid.NewString()
	token, err := s.sign(userID, RefreshToken, s.cfg.RefreshTTL, jti)
	if err != nil {
		return "", err
	}
	if err := s.registry.AddRefreshToken(ctx, userID, jti, s.cfg.MaxPerUser); err != nil {
		return "", fmt.Errorf("register refresh token: %w", err)
	}
	return token, nil
}

func (s *TokenService) IssuePair(ctx context.Context, userID uuid.UUID) (*TokenPair, error) {
	access, err := s.IssueAccessToken(userID)
	if err != nil {
		return nil, err
	}
	refresh, err := s.IssueRefreshToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Verify checks signature, expiry, issuer and kind. Every failure is the
// same TokenInvalid error; the jwt cause stays wrapped for logging.
func (s *TokenService) Verify(token string, kind TokenKind) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret(kind), nil
	})
	if err != nil {
		return nil, apperr.TokenInvalid(invalidTokenMessage, err)
	}
	if claims.Kind != kind {
		return nil, apperr.TokenInvalid(invalidTokenMessage, errWrongTokenKind)
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, apperr.TokenInvalid(invalidTokenMessage, err)
	}
	if kind == RefreshToken && claims.ID == "" {
		return nil, apperr.TokenInvalid(invalidTokenMessage, errors.New("refresh token without id"))
	}
	return claims, nil
}

// VerifyAccess returns the user an access token was issued to.
func (s *TokenService) VerifyAccess(token string) (uuid.UUID, error) {
	claims, err := s.Verify(token, AccessToken)
	if err != nil {
		return uuid.Nil, err
	}
	return claims.UserID(), nil
}

// UserID returns the subject of verified claims.
func (c *Claims) UserID() uuid.UUID {
	id, _ := uuid.Parse(c.Subject)
	return id
}

type RefreshResult struct {
	UserID      uuid.UUID
	AccessToken string
	// RefreshToken is only set when rotation is enabled.
	RefreshToken string
}

// Refresh exchanges a registered refresh token for a new access token.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	claims, err := s.Verify(refreshToken, RefreshToken)
	if err != nil {
		return nil, err
	}
	userID := claims.UserID()

	if s.cfg.Rotate {
		removed, err := s.registry.RemoveRefreshToken(ctx, userID, claims.ID)
		if err != nil {
			return nil, err
		}
		if !removed {
			return nil, apperr.TokenInvalid("Invalid refresh token", nil)
		}
	} else {
		ok, err := s.registry.HasRefreshToken(ctx, userID, claims.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.TokenInvalid("Invalid refresh token", nil)
		}
	}

	res := &RefreshResult{UserID: userID}
	if res.AccessToken, err = s.IssueAccessToken(userID); err != nil {
		return nil, err
	}
	if s.cfg.Rotate {
		if res.RefreshToken, err = s.IssueRefreshToken(ctx, userID); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Revoke unregisters a refresh token. It reports the owning user and
// whether the token was still registered.
func (s *TokenService) Revoke(ctx context.Context, refreshToken string) (uuid.UUID, bool, error) {
	claims, err := s.Verify(refreshToken, RefreshToken)
	if err != nil {
		return uuid.Nil, false, err
	}
	removed, err := s.registry.RemoveRefreshToken(ctx, claims.UserID(), claims.ID)
	if err != nil {
		return uuid.Nil, false, err
	}
	return claims.UserID(), removed, nil
}

// RevokeAll drops every refresh token of the user.
func (s *TokenService) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	return s.registry.ClearRefreshTokens(ctx, userID)
}
