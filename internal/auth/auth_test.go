package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trunov/mediafinalizer/internal/cache"
	"github.com/trunov/mediafinalizer/internal/config"
	"github.com/trunov/mediafinalizer/internal/entities"
	"github.com/trunov/mediafinalizer/internal/redisholder"
)

const (
	secret = "test-secret"
	issuer = "rugbycodex"
)

type members struct {
	roles map[string]entities.Role
	calls int
	err   error
}

func (m *members) MembershipRole(_ context.Context, orgID, userID string) (entities.Role, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.roles[orgID+":"+userID], nil
}

func sign(t *testing.T, key string, method jwt.SigningMethod, claims Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return tok
}

func claimsFor(sub string) Claims {
	return Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   sub,
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
}

func newService(m MembershipStore, c RoleCache) *Service {
	return New(config.AuthConfig{JWTSecret: secret, JWTIssuer: issuer, MembershipCacheTTL: 60}, m, c, zap.NewNop())
}

func TestResolveUsesTokenRoleForMatchingOrg(t *testing.T) {
	m := &members{}
	c := claimsFor("U1")
	c.OrgID, c.Role = "O1", "Coach"

	caller, err := newService(m, nil).Resolve(context.Background(), sign(t, secret, jwt.SigningMethodHS256, c), "O1")
	require.NoError(t, err)
	assert.Equal(t, entities.Caller{UserID: "U1", OrgID: "O1", Role: entities.RoleCoach}, caller)
	assert.Zero(t, m.calls)
}

func TestResolveFallsBackToMembershipAndCaches(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rc.Close()

	m := &members{roles: map[string]entities.Role{"O2:U1": entities.RoleMember}}
	c := claimsFor("U1")
	c.OrgID, c.Role = "O1", "owner"
	svc := newService(m, cache.NewCache("members", redisholder.NewHolder(rc)))
	tok := sign(t, secret, jwt.SigningMethodHS256, c)

	for i := 0; i < 3; i++ {
		caller, err := svc.Resolve(context.Background(), tok, "O2")
		require.NoError(t, err)
		assert.Equal(t, entities.RoleMember, caller.Role)
	}
	assert.Equal(t, 1, m.calls)
	assert.True(t, mr.Exists("members:O2:U1"))
}

func TestResolveNonMemberIsForbidden(t *testing.T) {
	svc := newService(&members{}, nil)
	_, err := svc.Resolve(context.Background(), sign(t, secret, jwt.SigningMethodHS256, claimsFor("U1")), "O1")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestResolveRejectsBadTokens(t *testing.T) {
	svc := newService(&members{}, nil)

	expired := claimsFor("U1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	wrongIssuer := claimsFor("U1")
	wrongIssuer.Issuer = "someone-else"

	noExpiry := claimsFor("U1")
	noExpiry.ExpiresAt = nil

	tests := map[string]string{
		"empty":         "",
		"garbage":       "not.a.jwt",
		"wrong secret":  sign(t, "other", jwt.SigningMethodHS256, claimsFor("U1")),
		"wrong method":  sign(t, secret, jwt.SigningMethodHS512, claimsFor("U1")),
		"expired":       sign(t, secret, jwt.SigningMethodHS256, expired),
		"wrong issuer":  sign(t, secret, jwt.SigningMethodHS256, wrongIssuer),
		"no subject":    sign(t, secret, jwt.SigningMethodHS256, claimsFor("")),
		"no expiration": sign(t, secret, jwt.SigningMethodHS256, noExpiry),
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Resolve(context.Background(), tok, "O1")
			assert.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}

func TestResolveWithoutSecretRejectsEverything(t *testing.T) {
	svc := New(config.AuthConfig{JWTIssuer: issuer}, &members{}, nil, zap.NewNop())
	_, err := svc.Resolve(context.Background(), sign(t, secret, jwt.SigningMethodHS256, claimsFor("U1")), "O1")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestResolveMembershipStoreError(t *testing.T) {
	boom := errors.New("db down")
	svc := newService(&members{err: boom}, nil)
	_, err := svc.Resolve(context.Background(), sign(t, secret, jwt.SigningMethodHS256, claimsFor("U1")), "O1")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrForbidden)
}

func TestResolveBrokenCacheStillResolves(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rc.Close()
	mr.Close()

	m := &members{roles: map[string]entities.Role{"O1:U1": entities.RoleAdmin}}
	caller, err := newService(m, cache.NewCache("members", redisholder.NewHolder(rc))).Resolve(context.Background(), sign(t, secret, jwt.SigningMethodHS256, claimsFor("U1")), "O1")
	require.NoError(t, err)
	assert.Equal(t, entities.RoleAdmin, caller.Role)
}
