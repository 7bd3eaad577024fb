package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/reservation-sync/internal/utils"
)

const testSecret = "test-secret"

func serve(t *testing.T, token string, mw ...echo.MiddlewareFunc) (*httptest.ResponseRecorder, string) {
	t.Helper()
	e := echo.New()
	var seen string
	h := func(c echo.Context) error {
		seen = TenantID(c)
		return c.NoContent(http.StatusNoContent)
	}
	e.GET("/x", h, mw...)
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec, seen
}

func TestJWTAuthSetsTenant(t *testing.T) {
	tok, err := utils.NewAccessToken(testSecret, "t1", "", RoleStaff, time.Minute)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	rec, tenant := serve(t, tok.Token, JWTAuth(testSecret))
	if rec.Code != http.StatusNoContent || tenant != "t1" {
		t.Fatalf("code=%d tenant=%q", rec.Code, tenant)
	}
}

func TestJWTAuthRejects(t *testing.T) {
	noTenant := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u", "exp": time.Now().Add(time.Minute).Unix()})
	signed, _ := noTenant.SignedString([]byte(testSecret))
	wrongKey, _ := utils.NewAccessToken("other", "t1", "", RoleStaff, time.Minute)
	expired, _ := utils.NewAccessToken(testSecret, "t1", "", RoleStaff, -time.Minute)

	for name, tok := range map[string]string{
		"missing":   "",
		"no tenant": signed,
		"wrong key": wrongKey.Token,
		"expired":   expired.Token,
	} {
		rec, _ := serve(t, tok, JWTAuth(testSecret))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, rec.Code)
		}
	}
}

func TestRequireRole(t *testing.T) {
	viewer, _ := utils.NewAccessToken(testSecret, "t1", "", RoleViewer, time.Minute)
	rec, _ := serve(t, viewer.Token, JWTAuth(testSecret), RequireRole(RoleStaff, RoleAdmin))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("viewer should be forbidden, got %d", rec.Code)
	}
	staff, _ := utils.NewAccessToken(testSecret, "t1", "", RoleStaff, time.Minute)
	rec, _ = serve(t, staff.Token, JWTAuth(testSecret), RequireRole(RoleStaff, RoleAdmin))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("staff should pass, got %d", rec.Code)
	}
}

func TestTokenBucketDisabledWithoutRedis(t *testing.T) {
	mw := NewTokenBucket(rateCfg(), nil)
	rec, _ := serve(t, "", mw)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("limiter without redis should pass through, got %d", rec.Code)
	}
}
