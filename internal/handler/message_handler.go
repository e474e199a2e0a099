package handler

import (
	"net/http"

	"commune-chat/internal/auth"
	"commune-chat/internal/store"
	"commune-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type MessageHandler struct {
	messages *store.MessageStore
	queries  *store.Queries
}

func NewMessageHandler(messages *store.MessageStore, queries *store.Queries) *MessageHandler {
	return &MessageHandler{messages: messages, queries: queries}
}

func (h *MessageHandler) List(c *gin.Context) {
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

	items, err := h.queries.Messages(c.Request.Context(), userID, conversationID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(items))
}

func (h *MessageHandler) Send(c *gin.Context) {
	var req httpdto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

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

	input := store.SendMessageInput{
		ConversationID: conversationID,
		Content:        req.Content,
		Kind:           req.Kind,
		FileURL:        req.FileURL,
		FileName:       req.FileName,
	}
	if req.ReplyToID != "" {
		replyTo, err := uuid.Parse(req.ReplyToID)
		if err != nil {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid reply_to_id", "INVALID_REQUEST"))
			return
		}
		input.ReplyToID = &replyTo
	}

	view, err := h.messages.Send(c.Request.Context(), userID, input)
	if err != nil {
		writeError(c, err)
		return
	}

	h.queries.InvalidateAfterMessageChange(c.Request.Context(), conversationID, userID)
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(view))
}

func (h *MessageHandler) Delete(c *gin.Context) {
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
	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid message id", "INVALID_REQUEST"))
		return
	}

	if err := h.messages.Delete(c.Request.Context(), userID, messageID); err != nil {
		writeError(c, err)
		return
	}

	h.queries.InvalidateAfterMessageChange(c.Request.Context(), conversationID, userID)
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *MessageHandler) AddReaction(c *gin.Context) {
	var req httpdto.ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

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
	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid message id", "INVALID_REQUEST"))
		return
	}

	if err := h.messages.AddReaction(c.Request.Context(), userID, messageID, req.Emoji); err != nil {
		writeError(c, err)
		return
	}

	h.queries.Cache().Invalidate(store.MessagesKey(conversationID))
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *MessageHandler) RemoveReaction(c *gin.Context) {
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
	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid message id", "INVALID_REQUEST"))
		return
	}
	emoji := c.Param("emoji")
	if emoji == "" {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid emoji", "INVALID_REQUEST"))
		return
	}

	if err := h.messages.RemoveReaction(c.Request.Context(), userID, messageID, emoji); err != nil {
		writeError(c, err)
		return
	}

	h.queries.Cache().Invalidate(store.MessagesKey(conversationID))
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}
