package handler

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/drive-dataroom/internal/config"
	"github.com/iliyamo/drive-dataroom/internal/gdrive"
	"github.com/iliyamo/drive-dataroom/internal/middleware"
	"github.com/iliyamo/drive-dataroom/internal/repository"
	"github.com/iliyamo/drive-dataroom/internal/service"
	"github.com/iliyamo/drive-dataroom/internal/utils"
)

// OAuth state markers.  The retry marker bounds the scope-mismatch
// recovery to a single automatic round trip through Google.
const (
	stateInitial = "initial"
	stateRetry   = "retry"
)

// AuthHandler bundles dependencies for the auth endpoints: the OAuth
// handshake, the exchange-token bridge and session management.
type AuthHandler struct {
	Cfg      config.Config
	Users    *repository.UserRepo
	Creds    *repository.CredentialRepo
	Provider *gdrive.Provider
	Bridge   *service.SessionBridge
}

func NewAuthHandler(cfg config.Config, u *repository.UserRepo, cr *repository.CredentialRepo, p *gdrive.Provider, b *service.SessionBridge) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Creds: cr, Provider: p, Bridge: b}
}

// ----- DTOs -----

type exchangeReq struct {
	Token string `json:"token"`
}

type userView struct {
	ID        uint64 `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Picture   string `json:"picture"`
	CreatedAt string `json:"created_at"`
}

func toUserView(u repository.User) userView {
	return userView{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Picture:   u.Picture,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Login starts the OAuth flow: it discards any pre-existing session for
// this browser (a stale cookie from a parallel login attempt would collide
// with the new one) and hands the client the authorization URL to
// redirect to.
func (h *AuthHandler) Login(c echo.Context) error {
	h.clearSessionCookie(c)
	return c.JSON(http.StatusOK, echo.Map{"auth_url": h.Provider.AuthCodeURL(stateInitial)})
}

// Callback consumes Google's redirect.  Whatever goes wrong in here, the
// browser always lands back on the frontend with a sanitized one-line
// message, never on a raw error page.
func (h *AuthHandler) Callback(c echo.Context) error {
	if msg := c.QueryParam("error"); msg != "" {
		return h.redirectError(c, "authorization was denied: "+msg)
	}
	code := c.QueryParam("code")
	if code == "" {
		return h.redirectError(c, "missing authorization code")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	tok, err := h.Provider.Exchange(ctx, code)
	if err != nil {
		log.Printf("auth: code exchange failed: %v", err)
		return h.redirectError(c, "could not complete google sign-in")
	}

	// Verify the grant covers everything we asked for.  Google caches
	// prior partial authorizations; one forced-consent retry recovers
	// from that, after which the mismatch is surfaced to the user.
	if !gdrive.HasRequiredScopes(tok) {
		if c.QueryParam("state") != stateRetry {
			return c.Redirect(http.StatusTemporaryRedirect, h.Provider.AuthCodeURL(stateRetry))
		}
		return h.redirectError(c, "required google drive permissions were not granted")
	}

	ui, err := h.Provider.Userinfo(ctx, tok)
	if err != nil {
		log.Printf("auth: userinfo fetch failed: %v", err)
		return h.redirectError(c, "could not fetch google account info")
	}

	user, err := h.Users.LookupOrCreate(ctx, ui.ID, ui.Email, ui.Name, ui.Picture)
	if err != nil {
		log.Printf("auth: user resolve failed: %v", err)
		return h.redirectError(c, "could not create user account")
	}

	var expiresAt *time.Time
	if !tok.Expiry.IsZero() {
		t := tok.Expiry.UTC()
		expiresAt = &t
	}
	if err := h.Creds.Upsert(ctx, user.ID, tok.AccessToken, tok.RefreshToken, tok.TokenType, expiresAt); err != nil {
		log.Printf("auth: credential upsert failed: %v", err)
		return h.redirectError(c, "could not store google credentials")
	}

	h.Bridge.Sweep(ctx)

	raw, err := h.Bridge.Mint(ctx, user.ID, h.Cfg.ExchangeTTLMin)
	if err != nil {
		log.Printf("auth: exchange token mint failed: %v", err)
		return h.redirectError(c, "could not establish session")
	}

	// The exchange token rides the redirect; the Google tokens never
	// leave the server.
	return c.Redirect(http.StatusTemporaryRedirect,
		h.Cfg.FrontendURL+"?auth=success&token="+url.QueryEscape(raw))
}

// Exchange redeems a one-shot exchange token for a session cookie.
func (h *AuthHandler) Exchange(c echo.Context) error {
	var req exchangeReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	userID, err := h.Bridge.Redeem(ctx, strings.TrimSpace(req.Token))
	if err != nil {
		if errors.Is(err, repository.ErrTokenInvalid) || errors.Is(err, repository.ErrTokenExpired) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token exchange failed"})
	}

	user, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}

	session, err := utils.NewSessionToken(h.Cfg.JWTSecret, user.ID, h.Cfg.SessionTTLHours)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue session failed"})
	}
	h.setSessionCookie(c, session)

	return c.JSON(http.StatusOK, echo.Map{
		"authenticated": true,
		"user":          toUserView(user),
	})
}

// Status reports whether the caller has a live session backed by a stored
// Google credential.  It never fails: any problem reads as "not
// authenticated".
func (h *AuthHandler) Status(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusOK, echo.Map{"authenticated": false})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	user, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusOK, echo.Map{"authenticated": false})
	}
	if _, err := h.Creds.GetByUser(ctx, uid); err != nil {
		return c.JSON(http.StatusOK, echo.Map{"authenticated": false})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"authenticated": true,
		"user":          toUserView(user),
	})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	user, err := h.Users.GetByID(ctx, uid)
	if err == sql.ErrNoRows {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}
	return c.JSON(http.StatusOK, toUserView(user))
}

// Logout clears the session cookie.  The server keeps no session state
// beyond the cookie, so this is all there is to it.
func (h *AuthHandler) Logout(c echo.Context) error {
	h.clearSessionCookie(c)
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// DeleteAccount removes the user and everything the user owns: file
// records, credential, pending exchange tokens and the on-disk blobs.
// Records go first in one transaction; blobs are removed after the
// commit succeeds.
func (h *AuthHandler) DeleteAccount(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	paths, err := h.Users.PurgeUser(ctx, uid)
	if err != nil {
		log.Printf("auth: account purge failed for user %d: %v", uid, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "account deletion failed"})
	}
	for _, p := range paths {
		if rmErr := os.Remove(p); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Printf("auth: blob cleanup failed for %s: %v", p, rmErr)
		}
	}

	h.clearSessionCookie(c)
	return c.JSON(http.StatusOK, echo.Map{"message": "account deleted"})
}

// redirectError sends the browser back to the frontend with a sanitized
// single-line error message embedded in the query string.  The message
// must survive being part of a URL, so newlines are stripped and the rest
// percent-encoded.
func (h *AuthHandler) redirectError(c echo.Context, msg string) error {
	msg = strings.NewReplacer("\n", " ", "\r", " ").Replace(msg)
	return c.Redirect(http.StatusTemporaryRedirect,
		h.Cfg.FrontendURL+"?auth=error&message="+url.QueryEscape(msg))
}

func (h *AuthHandler) setSessionCookie(c echo.Context, session utils.SessionToken) {
	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.Exp,
		HttpOnly: true,
		Secure:   h.Cfg.Env == "prod",
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.Cfg.Env == "prod",
		SameSite: http.SameSiteLaxMode,
	})
}
