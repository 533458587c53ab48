package middleware

// identity.go holds the caller lookup shared by the rate limiter and the
// response cache.

import (
    "github.com/labstack/echo/v4"
)

// subject returns the authenticated caller's ID as set by JWTAuth, or
// "anon" for unauthenticated requests.
func subject(c echo.Context) string {
    if s, ok := c.Get(CtxUserID).(string); ok && s != "" {
        return s
    }
    return "anon"
}
