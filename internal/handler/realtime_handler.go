package handler

import (
	"net/http"

	"commune-chat/internal/auth"
	"commune-chat/internal/presence"
	"commune-chat/internal/store"
	"commune-chat/internal/transport/httpdto"
	"commune-chat/internal/typing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type RealtimeHandler struct {
	tracker       *typing.Coordinator
	presence      *presence.Tracker
	conversations *store.ConversationStore
}

func NewRealtimeHandler(coordinator *typing.Coordinator, tracker *presence.Tracker, conversations *store.ConversationStore) *RealtimeHandler {
	return &RealtimeHandler{
		tracker:       coordinator,
		presence:      tracker,
		conversations: conversations,
	}
}

func (h *RealtimeHandler) StartTyping(c *gin.Context) {
	userID, conversationID, ok := h.typingArgs(c)
	if !ok {
		return
	}
	if err := h.tracker.Start(c.Request.Context(), userID, conversationID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *RealtimeHandler) StopTyping(c *gin.Context) {
	userID, conversationID, ok := h.typingArgs(c)
	if !ok {
		return
	}
	if err := h.tracker.Stop(c.Request.Context(), userID, conversationID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *RealtimeHandler) TypingUsers(c *gin.Context) {
	userID, conversationID, ok := h.typingArgs(c)
	if !ok {
		return
	}
	users, err := h.tracker.TypingUsers(c.Request.Context(), conversationID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(users))
}

func (h *RealtimeHandler) OnlineUsers(c *gin.Context) {
	users, err := h.presence.OnlineUsers(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(users))
}

// typingArgs authenticates, parses the conversation id and checks membership.
func (h *RealtimeHandler) typingArgs(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := auth.UserFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return uuid.Nil, uuid.Nil, false
	}

	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid conversation id", "INVALID_REQUEST"))
		return uuid.Nil, uuid.Nil, false
	}

	member, err := h.conversations.IsParticipant(c.Request.Context(), conversationID, userID)
	if err != nil {
		writeError(c, err)
		return uuid.Nil, uuid.Nil, false
	}
	if !member {
		c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("forbidden", "FORBIDDEN"))
		return uuid.Nil, uuid.Nil, false
	}

	return userID, conversationID, true
}
