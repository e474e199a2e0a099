package server_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"commune-chat/internal/feed"
	"commune-chat/internal/server"
	"commune-chat/internal/synccache"
	"commune-chat/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

// Even when the global streams fail to attach, the connection must tear down
// through the close callback so the session refcount drops.
func TestRunReleasesSessionWhenAttachFails(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	log := logger.NewNop()
	f := feed.NewRedisFeed(client, log)
	if err := f.Close(); err != nil {
		t.Fatalf("close feed: %v", err)
	}

	released := make(chan struct{})
	ran := make(chan struct{})
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		c := server.NewClient(conn, uuid.New(), f, synccache.New(log), nil, nil, log, func() {
			close(released)
		})
		c.Run()
		close(ran)
	}))
	t.Cleanup(srv.Close)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after the attach failure")
	}
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("close callback never fired")
	}
}
