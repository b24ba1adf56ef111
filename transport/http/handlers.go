package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/gatekeeper/core"
)

// SessionHandlers contains HTTP handlers for session endpoints
type SessionHandlers struct {
	guard        SessionAuthenticator
	cookies      Cookies
	exposeReason bool
}

// NewSessionHandlers creates new session handlers
func NewSessionHandlers(guard SessionAuthenticator, cookies Cookies, exposeReason bool) *SessionHandlers {
	return &SessionHandlers{
		guard:        guard,
		cookies:      cookies,
		exposeReason: exposeReason,
	}
}

type identityResponse struct {
	ID    core.SubjectID `json:"id"`
	Email string         `json:"email,omitempty"`
	Name  string         `json:"name,omitempty"`
}

// Logout ends the session and always clears both cookies
func (h *SessionHandlers) Logout(c *gin.Context) {
	err := h.guard.Logout(c.Request.Context(), h.cookies.Read(c))
	h.cookies.Clear(c, core.ClearBoth)
	if err != nil {
		abortAuth(c, authFailure(err), h.exposeReason)
		return
	}

	respondOK(c, gin.H{"message": "Logged out"})
}

// Me returns the authenticated identity
func (h *SessionHandlers) Me(c *gin.Context) {
	ident, ok := IdentityFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{
			Status:  statusError,
			Code:    "INTERNAL_ERROR",
			Message: "Identity not found in context",
		})
		return
	}

	respondOK(c, identityResponse{ID: ident.ID, Email: ident.Email, Name: ident.Name})
}

// Authorize confirms the session for forward-auth proxies
func (h *SessionHandlers) Authorize(c *gin.Context) {
	// The middleware already rejected anything unauthenticated
	ident, _ := IdentityFrom(c)
	c.Header("X-Auth-Subject", ident.ID.String())

	respondOK(c, gin.H{"authorized": true, "id": ident.ID})
}

// Healthz reports liveness
func Healthz(c *gin.Context) {
	respondOK(c, gin.H{"healthy": true})
}
