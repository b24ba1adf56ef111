package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/layer-3/gatekeeper/core"
)

const (
	statusSuccess = "SUCCESS"
	statusError   = "ERROR"

	codeAuthentication = "AUTHENTICATION_ERROR"
	messageAuthFailed  = "Authentication failed. Please check your credentials."

	retryAfterSeconds = "1"
)

type successResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, successResponse{Status: statusSuccess, Data: data})
}

// authFailure maps any error to the rejection it represents
func authFailure(err error) *core.AuthError {
	var authErr *core.AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	return core.Reject(core.ReasonInvalidCredential, core.ClearNone, err)
}

// abortAuth writes the uniform authentication error.
// The reason is only exposed when exposeReason is set.
func abortAuth(c *gin.Context, authErr *core.AuthError, exposeReason bool) {
	status := http.StatusUnauthorized
	if authErr.Retryable() {
		status = http.StatusServiceUnavailable
		c.Header("Retry-After", retryAfterSeconds)
	}

	body := errorResponse{Status: statusError, Code: codeAuthentication, Message: messageAuthFailed}
	if exposeReason {
		body.Reason = string(authErr.Reason)
	}
	c.AbortWithStatusJSON(status, body)
}
