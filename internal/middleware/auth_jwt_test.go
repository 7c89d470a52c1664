package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/repository"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

const testSecret = "test-jwt-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(secret))
	assert.NoError(t, err)
	return signed
}

func validClaims(tv int) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"sub":  int64(1),
		"name": "taro",
		"role": "USER",
		"tv":   tv,
		"iat":  now.Unix(),
		"exp":  now.Add(15 * time.Minute).Unix(),
	}
}

// AuthJWTを通した後に呼ばれたかを見るだけのハンドラ
func callWithAuth(t *testing.T, authz string) (*httptest.ResponseRecorder, echo.Context, bool) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	reached := false
	mw := AuthJWT(config.Config{JWTSecret: testSecret})
	err := mw(func(c echo.Context) error {
		reached = true
		return c.NoContent(http.StatusOK)
	})(c)
	assert.NoError(t, err)

	return rec, c, reached
}

func TestAuthJWT_MissingHeader(t *testing.T) {
	rec, _, reached := callWithAuth(t, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, reached)
}

func TestAuthJWT_MalformedToken(t *testing.T) {
	rec, _, reached := callWithAuth(t, "Bearer not.a.jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, reached)
}

func TestAuthJWT_WrongSecret(t *testing.T) {
	token := signToken(t, "other-secret", validClaims(0))
	rec, _, reached := callWithAuth(t, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, reached)
}

func TestAuthJWT_ExpiredToken(t *testing.T) {
	claims := validClaims(0)
	claims["exp"] = time.Now().Add(-time.Minute).Unix()
	token := signToken(t, testSecret, claims)

	rec, _, reached := callWithAuth(t, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, reached)
}

func TestAuthJWT_ValidTokenSetsContext(t *testing.T) {
	token := signToken(t, testSecret, validClaims(3))
	rec, c, reached := callWithAuth(t, "Bearer "+token)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reached)
	assert.Equal(t, int64(1), c.Get(CtxUserIDKey))
	assert.Equal(t, "USER", c.Get(CtxUserRoleKey))
	assert.Equal(t, "taro", c.Get(CtxUserNameKey))
	assert.Equal(t, 3, c.Get(CtxTokenVersionKey))
}

func TestAdminRoleGuard(t *testing.T) {
	cases := []struct {
		name     string
		role     any
		wantCode int
		wantPass bool
	}{
		{name: "admin passes", role: "ADMIN", wantCode: http.StatusOK, wantPass: true},
		{name: "user rejected", role: "USER", wantCode: http.StatusForbidden},
		{name: "missing role", role: nil, wantCode: http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			if tc.role != nil {
				c.Set(CtxUserRoleKey, tc.role)
			}

			reached := false
			err := AdminRoleGuard()(func(c echo.Context) error {
				reached = true
				return c.NoContent(http.StatusOK)
			})(c)
			assert.NoError(t, err)
			assert.Equal(t, tc.wantCode, rec.Code)
			assert.Equal(t, tc.wantPass, reached)
		})
	}
}

type tvUserRepoStub struct {
	repository.UserRepository
	user *model.User
}

func (s *tvUserRepoStub) FindByID(ctx context.Context, userID int64) (*model.User, error) {
	return s.user, nil
}

func TestTokenVersionGuard_StaleTokenRejected(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(CtxUserIDKey, int64(1))
	c.Set(CtxTokenVersionKey, 1)

	// DB側はロール変更でtoken_versionが2に上がっている
	guard := TokenVersionGuard(&tvUserRepoStub{user: &model.User{ID: 1, TokenVersion: 2, IsActive: true}})
	err := guard(func(c echo.Context) error {
		t.Fatal("stale token must not pass")
		return nil
	})(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokenVersionGuard_MatchingVersionPasses(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(CtxUserIDKey, int64(1))
	c.Set(CtxTokenVersionKey, 2)

	guard := TokenVersionGuard(&tvUserRepoStub{user: &model.User{ID: 1, TokenVersion: 2, IsActive: true}})
	reached := false
	err := guard(func(c echo.Context) error {
		reached = true
		return c.NoContent(http.StatusOK)
	})(c)
	assert.NoError(t, err)
	assert.True(t, reached)
}

// 管理者に停止されたユーザーはtvが合っていても入れない
func TestTokenVersionGuard_InactiveUserRejected(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(CtxUserIDKey, int64(1))
	c.Set(CtxTokenVersionKey, 2)

	guard := TokenVersionGuard(&tvUserRepoStub{user: &model.User{ID: 1, TokenVersion: 2, IsActive: false}})
	err := guard(func(c echo.Context) error {
		t.Fatal("inactive user must not pass")
		return nil
	})(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
