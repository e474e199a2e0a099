package handler

import (
	"net/http"

	"commune-chat/internal/auth"
	"commune-chat/internal/store"
	"commune-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ConversationHandler struct {
	conversations *store.ConversationStore
	queries       *store.Queries
}

func NewConversationHandler(conversations *store.ConversationStore, queries *store.Queries) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, queries: queries}
}

func (h *ConversationHandler) List(c *gin.Context) {
	userID, ok := auth.UserFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	items, err := h.queries.Conversations(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(items))
}

func (h *ConversationHandler) Create(c *gin.Context) {
	var req httpdto.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	creatorID, ok := auth.UserFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	memberIDs := make([]uuid.UUID, 0, len(req.Members))
	for _, idStr := range req.Members {
		id, err := uuid.Parse(idStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid member id", "INVALID_REQUEST"))
			return
		}
		memberIDs = append(memberIDs, id)
	}

	summary, err := h.conversations.Create(c.Request.Context(), creatorID, store.CreateConversationSpec{
		Kind:           req.Kind,
		Name:           req.Name,
		Description:    req.Description,
		IsPrivate:      req.IsPrivate,
		ParticipantIDs: memberIDs,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	// Every member's list gains the new conversation, not just the creator's.
	for _, p := range summary.Participants {
		h.queries.Cache().Invalidate(store.ConversationsKey(p.UserID))
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(summary))
}

func (h *ConversationHandler) MarkRead(c *gin.Context) {
	userID, ok := auth.UserFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid conversation id", "INVALID_REQUEST"))
		return
	}

	if err := h.conversations.MarkRead(c.Request.Context(), userID, conversationID); err != nil {
		writeError(c, err)
		return
	}

	h.queries.Cache().Invalidate(store.ConversationsKey(userID))
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}
