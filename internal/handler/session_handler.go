package handler

import (
	"net/http"

	"commune-chat/internal/auth"
	"commune-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

// SessionHandler is the sign-in boundary. Tokens are minted elsewhere; these
// endpoints tell this service a verified user came online or went away so the
// presence lifecycle can follow.
type SessionHandler struct {
	provider *auth.Provider
}

func NewSessionHandler(provider *auth.Provider) *SessionHandler {
	return &SessionHandler{provider: provider}
}

func (h *SessionHandler) Open(c *gin.Context) {
	userID, ok := auth.UserFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	h.provider.NotifySignedIn(userID)
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *SessionHandler) Close(c *gin.Context) {
	userID, ok := auth.UserFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	h.provider.NotifySignedOut(userID)
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}
