package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// CookieOptions configures the session cookie
type CookieOptions struct {
	Name     string
	Domain   string
	Path     string
	Secure   bool
	SameSite http.SameSite
	// LegacyNames are older cookie names that are cleared on login and logout
	LegacyNames []string
}

// ParseSameSite maps lax, strict or none to http.SameSite. Anything else is strict.
func ParseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}

// AuthCookies sets and clears the HttpOnly session cookie
type AuthCookies struct {
	opts CookieOptions
}

// NewAuthCookies creates a cookie manager
func NewAuthCookies(opts CookieOptions) *AuthCookies {
	if opts.Name == "" {
		opts.Name = "auth_token"
	}
	if opts.Path == "" {
		opts.Path = "/"
	}
	if opts.SameSite == 0 {
		opts.SameSite = http.SameSiteStrictMode
	}
	return &AuthCookies{opts: opts}
}

// Set writes the session token. The cookie lives as long as the token.
func (a *AuthCookies) Set(c *gin.Context, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}

	a.clearLegacy(c)
	c.SetSameSite(a.opts.SameSite)
	c.SetCookie(a.opts.Name, token, maxAge, a.opts.Path, a.opts.Domain, a.opts.Secure, true)
}

// Clear expires the session cookie and every legacy cookie
func (a *AuthCookies) Clear(c *gin.Context) {
	c.SetSameSite(a.opts.SameSite)
	c.SetCookie(a.opts.Name, "", -1, a.opts.Path, a.opts.Domain, a.opts.Secure, true)
	a.clearLegacy(c)
}

func (a *AuthCookies) clearLegacy(c *gin.Context) {
	for _, name := range a.opts.LegacyNames {
		if name == "" || name == a.opts.Name {
			continue
		}
		c.SetSameSite(a.opts.SameSite)
		c.SetCookie(name, "", -1, a.opts.Path, a.opts.Domain, a.opts.Secure, true)
	}
}

// Token returns the session token from the cookie or an Authorization: Bearer header
func (a *AuthCookies) Token(c *gin.Context) string {
	if v, err := c.Cookie(a.opts.Name); err == nil && v != "" {
		return v
	}

	scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}
