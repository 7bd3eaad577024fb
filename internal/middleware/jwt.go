package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "net/http"               // HTTP status codes for responses
    "strings"               // string utilities for prefix checking and trimming

    "github.com/golang-jwt/jwt/v5" // JWT library for parsing and validating tokens
    "github.com/labstack/echo/v4"  // Echo framework used for defining middleware and handlers
)

// Context keys set by JWTAuth.
const (
    ContextTenant = "tenant_id"
    ContextUser   = "user_id"
    ContextRole   = "role"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// injects the token's tenant, subject and role claims into the request
// context.  Every reservation route is tenant scoped, so a token without a
// non-empty "tenant" claim is rejected.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            raw := strings.TrimPrefix(auth, "Bearer ")

            // Only HMAC signatures are accepted.
            tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
                if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
                    return nil, echo.ErrUnauthorized
                }
                return []byte(secret), nil
            })
            if err != nil || !tok.Valid {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }

            claims, ok := tok.Claims.(jwt.MapClaims)
            if !ok {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
            }
            tenant, _ := claims["tenant"].(string)
            if strings.TrimSpace(tenant) == "" {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token has no tenant"})
            }

            c.Set(ContextTenant, tenant)
            if sub, ok := claims["sub"].(string); ok {
                c.Set(ContextUser, sub)
            }
            if role, ok := claims["role"].(string); ok {
                c.Set(ContextRole, role)
            }
            return next(c)
        }
    }
}

// TenantID returns the tenant stored by JWTAuth, or "" when absent.
func TenantID(c echo.Context) string {
    s, _ := c.Get(ContextTenant).(string)
    return s
}
