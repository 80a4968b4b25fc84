package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/trunov/mediafinalizer/internal/cache"
	"github.com/trunov/mediafinalizer/internal/config"
	"github.com/trunov/mediafinalizer/internal/entities"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden means the caller is authenticated but not a member of the org.
	ErrForbidden = errors.New("forbidden")
)

// MembershipStore resolves a user's role in an organization. An empty role
// with a nil error means the user is not a member.
type MembershipStore interface {
	MembershipRole(ctx context.Context, orgID, userID string) (entities.Role, error)
}

// RoleCache is optional; a nil cache always reads through to the store.
type RoleCache interface {
	Get(ctx context.Context, key string) (string, error)
	Store(ctx context.Context, key string, ttl time.Duration, value string) error
}

// Claims is the token payload. OrgID and Role are set by the identity
// provider when the token is minted for a single organization.
type Claims struct {
	OrgID string `json:"org_id,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Service struct {
	secret  []byte
	issuer  string
	members MembershipStore
	cache   RoleCache
	ttl     time.Duration
	logger  *zap.Logger
}

func New(cfg config.AuthConfig, members MembershipStore, roles RoleCache, logger *zap.Logger) *Service {
	return &Service{
		secret:  []byte(cfg.JWTSecret),
		issuer:  cfg.JWTIssuer,
		members: members,
		cache:   roles,
		ttl:     time.Duration(cfg.MembershipCacheTTL) * time.Second,
		logger:  logger.Named("auth"),
	}
}

// Resolve validates the bearer token and returns the caller with their role
// in orgID.
func (s *Service) Resolve(ctx context.Context, bearer, orgID string) (entities.Caller, error) {
	claims, err := s.parse(bearer)
	if err != nil {
		s.logger.Info("token rejected", zap.Error(err))
		return entities.Caller{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	caller := entities.Caller{UserID: claims.Subject, OrgID: orgID}

	if claims.OrgID == orgID && claims.Role != "" {
		caller.Role = entities.ParseRole(claims.Role)
	} else {
		caller.Role, err = s.membership(ctx, orgID, claims.Subject)
		if err != nil {
			return entities.Caller{}, err
		}
	}

	if !caller.Role.Known() {
		return caller, fmt.Errorf("%w: user %s has no role in org %s", ErrForbidden, caller.UserID, orgID)
	}
	return caller, nil
}

func (s *Service) parse(bearer string) (*Claims, error) {
	token := strings.TrimSpace(bearer)
	if token == "" {
		return nil, errors.New("missing bearer token")
	}
	if len(s.secret) == 0 {
		return nil, errors.New("token secret not configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}
	if _, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

func (s *Service) membership(ctx context.Context, orgID, userID string) (entities.Role, error) {
	key := orgID + ":" + userID

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			return entities.Role(cached), nil
		case !errors.Is(err, cache.ErrMiss):
			s.logger.Warn("membership cache read failed", zap.String("org_id", orgID), zap.Error(err))
		}
	}

	role, err := s.members.MembershipRole(ctx, orgID, userID)
	if err != nil {
		return "", fmt.Errorf("resolve membership: %w", err)
	}

	if s.cache != nil && s.ttl > 0 {
		if err := s.cache.Store(ctx, key, s.ttl, string(role)); err != nil {
			s.logger.Warn("membership cache write failed", zap.String("org_id", orgID), zap.Error(err))
		}
	}
	return role, nil
}
