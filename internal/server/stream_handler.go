package server

import (
	"net/http"
	"strings"

	"commune-chat/internal/auth"
	"commune-chat/internal/feed"
	"commune-chat/internal/session"
	"commune-chat/internal/store"
	"commune-chat/internal/synccache"
	"commune-chat/internal/typing"
	"commune-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamHandler upgrades /v1/stream to a WebSocket. A stream connection
// doubles as a sign-in: presence starts when the socket opens and stops when
// it closes.
type StreamHandler struct {
	provider *auth.Provider
	sessions *session.Manager
	feed     feed.Feed
	cache    *synccache.Cache
	convs    *store.ConversationStore
	typing   *typing.Coordinator
	log      *logger.Logger
}

func NewStreamHandler(provider *auth.Provider, sessions *session.Manager, f feed.Feed, cache *synccache.Cache, convs *store.ConversationStore, coordinator *typing.Coordinator, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		provider: provider,
		sessions: sessions,
		feed:     f,
		cache:    cache,
		convs:    convs,
		typing:   coordinator,
		log:      log,
	}
}

func (h *StreamHandler) Handle(c *gin.Context) {
	token := h.extractToken(c)
	userID, err := h.provider.UserFromToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Errorf("websocket upgrade for %s: %v", userID, err)
		return
	}

	h.sessions.SignIn(userID)
	client := NewClient(conn, userID, h.feed, h.cache, h.convs, h.typing, h.log, func() {
		h.sessions.SignOut(userID)
	})
	go client.Run()
}

func (h *StreamHandler) extractToken(c *gin.Context) string {
	token := c.Query("token")
	if token != "" {
		return token
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}

	return ""
}
