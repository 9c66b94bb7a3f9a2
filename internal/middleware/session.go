package middleware // reusable HTTP middleware for the API

import (
    "net/http"
    "strconv"
    "strings"

    "github.com/golang-jwt/jwt/v5"
    "github.com/labstack/echo/v4"
)

// SessionCookie is the name of the HttpOnly cookie carrying the session JWT.
const SessionCookie = "dataroom_session"

// SessionAuth returns an Echo middleware that authenticates the request
// from the session cookie, falling back to an Authorization bearer header
// for non-browser clients.  On success the user id is stored in the
// context under "user_id" for handlers to read via UserID().
func SessionAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            raw := ""
            if cookie, err := c.Cookie(SessionCookie); err == nil && cookie.Value != "" {
                raw = cookie.Value
            } else if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
                raw = strings.TrimPrefix(auth, "Bearer ")
            }
            if raw == "" {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
            }

            tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
                // Only HS256 tokens are ever issued; reject anything else.
                if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
                    return nil, echo.ErrUnauthorized
                }
                return []byte(secret), nil
            })
            if err != nil || !tok.Valid {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid session"})
            }
            claims, ok := tok.Claims.(jwt.MapClaims)
            if !ok {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid session"})
            }
            uid, ok := subjectID(claims)
            if !ok || uid == 0 {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid session"})
            }

            c.Set("user_id", uid)
            return next(c)
        }
    }
}

// OptionalSession is like SessionAuth but never rejects the request: a
// missing or invalid session simply leaves the context without a user id.
// Used by the status endpoint, which reports authentication state instead
// of enforcing it.
func OptionalSession(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            raw := ""
            if cookie, err := c.Cookie(SessionCookie); err == nil && cookie.Value != "" {
                raw = cookie.Value
            } else if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
                raw = strings.TrimPrefix(auth, "Bearer ")
            }
            if raw == "" {
                return next(c)
            }
            tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
                if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
                    return nil, echo.ErrUnauthorized
                }
                return []byte(secret), nil
            })
            if err == nil && tok.Valid {
                if claims, ok := tok.Claims.(jwt.MapClaims); ok {
                    if uid, ok := subjectID(claims); ok && uid != 0 {
                        c.Set("user_id", uid)
                    }
                }
            }
            return next(c)
        }
    }
}

// UserID extracts the authenticated user id placed into the context by
// SessionAuth.  The second return value is false on unauthenticated
// requests (routes registered without the middleware).
func UserID(c echo.Context) (uint64, bool) {
    uid, ok := c.Get("user_id").(uint64)
    return uid, ok
}

// subjectID converts the JWT "sub" claim to a user id.  JWT numeric values
// decode as float64; some clients re-issue them as strings.
func subjectID(claims jwt.MapClaims) (uint64, bool) {
    switch v := claims["sub"].(type) {
    case float64:
        return uint64(v), true
    case string:
        n, err := strconv.ParseUint(v, 10, 64)
        return n, err == nil
    }
    return 0, false
}
