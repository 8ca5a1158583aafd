package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// echoServer upgrades incoming requests and drains frames until the client
// goes away.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestWSConn_SerializesConcurrentWrites(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, err := NewDialer().Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(CloseNormal, "done")

	// gorilla/websocket panics on overlapping writers, so simultaneous
	// heartbeat pings and user sends must be serialized by the wrapper.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if err := conn.WriteJSON(outbound{Type: "ping"}); err != nil {
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestWSConn_CloseSendsNormalClosure(t *testing.T) {
	codeCh := make(chan int, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				if ce, ok := err.(*websocket.CloseError); ok {
					codeCh <- ce.Code
				}
				return
			}
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, err := NewDialer().Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := conn.Close(CloseNormal, "switching chats"); err != nil {
		t.Fatalf("close: %v", err)
	}

	select {
	case code := <-codeCh:
		if code != CloseNormal {
			t.Errorf("server saw close code %d, want %d", code, CloseNormal)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw a close frame")
	}
}
