package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/gatekeeper/core"
)

// Cookies persists credentials as HttpOnly, Secure, SameSite=None cookies
type Cookies struct {
	AccessName  string
	RefreshName string
	Domain      string
	Now         func() time.Time
}

// DefaultCookies uses the cookie names browsers already hold
func DefaultCookies() Cookies {
	return Cookies{AccessName: "token", RefreshName: "refreshToken"}
}

// Read collects the presented credentials. The access credential falls back
// to an Authorization bearer header for non-browser clients.
func (k Cookies) Read(c *gin.Context) core.Presented {
	var p core.Presented
	if v, err := c.Cookie(k.AccessName); err == nil {
		p.Access = v
	}
	if p.Access == "" {
		p.Access = bearerToken(c.GetHeader("Authorization"))
	}
	if v, err := c.Cookie(k.RefreshName); err == nil {
		p.Refresh = v
	}
	return p
}

// Write stores a renewed pair
func (k Cookies) Write(c *gin.Context, renewal *core.Renewal) {
	if renewal == nil {
		return
	}
	k.set(c, k.AccessName, renewal.Access.Token, k.maxAge(renewal.Access.ExpiresAt))
	k.set(c, k.RefreshName, renewal.Refresh.Token, k.maxAge(renewal.Refresh.ExpiresAt))
}

// Clear erases the credentials named by cleanup
func (k Cookies) Clear(c *gin.Context, cleanup core.Cleanup) {
	if cleanup.Has(core.KindAccess) {
		k.set(c, k.AccessName, "", -1)
	}
	if cleanup.Has(core.KindRefresh) {
		k.set(c, k.RefreshName, "", -1)
	}
}

func (k Cookies) set(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteNoneMode)
	c.SetCookie(name, value, maxAge, "/", k.Domain, true, true)
}

func (k Cookies) maxAge(expiresAt time.Time) int {
	now := time.Now
	if k.Now != nil {
		now = k.Now
	}
	secs := int(expiresAt.Sub(now()) / time.Second)
	if secs <= 0 {
		return -1
	}
	return secs
}

func bearerToken(value string) string {
	const bearer = "Bearer "
	if len(value) <= len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return ""
	}
	return strings.TrimSpace(value[len(bearer):])
}
