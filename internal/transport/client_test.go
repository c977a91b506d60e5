package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/tws-session/internal/event"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testClientConfig() ClientConfig {
	return ClientConfig{
		ClientID:         7,
		HandshakeTimeout: time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

// drain reads until the connection closes.
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

type collector struct {
	mu     sync.Mutex
	events []event.Event
}

func (c *collector) handle(ev event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) wait(t *testing.T, n int) []event.Event {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		if len(c.events) >= n {
			out := append([]event.Event(nil), c.events...)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %d events", n)
	return nil
}

func TestClient_OpenSendsHello(t *testing.T) {
	hello := make(chan []byte, 1)
	server := mockWSServer(t, func(conn *websocket.Conn) {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		hello <- msg
		drain(conn)
	})
	defer server.Close()

	client := NewClient(testClientConfig(), nil)
	if err := client.Open(context.Background(), wsURL(server)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer client.Close()

	if !client.IsOpen() {
		t.Error("expected IsOpen to return true")
	}

	select {
	case msg := <-hello:
		var env struct {
			Type string           `json:"type"`
			Data map[string]int64 `json:"data"`
		}
		if err := json.Unmarshal(msg, &env); err != nil {
			t.Fatalf("unmarshal hello: %v", err)
		}
		if env.Type != ReqStartAPI {
			t.Errorf("hello type = %q, want %q", env.Type, ReqStartAPI)
		}
		if env.Data["client_id"] != 7 {
			t.Errorf("client_id = %d, want 7", env.Data["client_id"])
		}
	case <-time.After(time.Second):
		t.Fatal("no hello received")
	}
}

func TestClient_OpenTwice(t *testing.T) {
	server := mockWSServer(t, drain)
	defer server.Close()

	client := NewClient(testClientConfig(), nil)
	if err := client.Open(context.Background(), wsURL(server)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer client.Close()

	if err := client.Open(context.Background(), wsURL(server)); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("second Open error = %v, want ErrAlreadyOpen", err)
	}
}

func TestClient_Send(t *testing.T) {
	received := make(chan []byte, 2)
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- msg
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(), nil)
	if err := client.Open(context.Background(), wsURL(server)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer client.Close()
	<-received // hello

	req := Request{Type: ReqMktData, ID: 42, Payload: map[string]string{"symbol": "AAPL"}}
	if err := client.Send(context.Background(), req); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case msg := <-received:
		want := `{"type":"req_mkt_data","id":42,"data":{"symbol":"AAPL"}}`
		if string(msg) != want {
			t.Errorf("received %s, want %s", msg, want)
		}
	case <-time.After(time.Second):
		t.Fatal("request not received")
	}
}

func TestClient_SendNotConnected(t *testing.T) {
	client := NewClient(testClientConfig(), nil)

	err := client.Send(context.Background(), Request{Type: ReqCurrentTime})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestClient_DeliversEvents(t *testing.T) {
	events := []event.Event{
		event.NextValidID{OrderID: 100},
		event.ManagedAccounts{Accounts: []string{"DU123"}},
		event.TickPrice{ReqID: 5, Field: 1, Price: 101.25},
	}

	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.ReadMessage() // hello
		for _, ev := range events {
			frame, err := EncodeEvent(ev)
			if err != nil {
				t.Errorf("encode: %v", err)
				return
			}
			conn.WriteMessage(websocket.TextMessage, frame)
		}
		// Garbage in the middle of the stream is skipped.
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"mystery"}`))
		frame, _ := EncodeEvent(event.CurrentTime{Time: 1700000000})
		conn.WriteMessage(websocket.TextMessage, frame)
		drain(conn)
	})
	defer server.Close()

	var got collector
	client := NewClient(testClientConfig(), nil)
	client.SetHandler(got.handle)
	if err := client.Open(context.Background(), wsURL(server)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer client.Close()

	received := got.wait(t, 4)

	if ev, ok := received[0].(event.NextValidID); !ok || ev.OrderID != 100 {
		t.Errorf("event 0 = %#v, want NextValidID{100}", received[0])
	}
	if ev, ok := received[1].(event.ManagedAccounts); !ok || len(ev.Accounts) != 1 {
		t.Errorf("event 1 = %#v, want ManagedAccounts", received[1])
	}
	if ev, ok := received[2].(event.TickPrice); !ok || ev.Price != 101.25 {
		t.Errorf("event 2 = %#v, want TickPrice", received[2])
	}
	if ev, ok := received[3].(event.CurrentTime); !ok || ev.Time != 1700000000 {
		t.Errorf("event 3 = %#v, want CurrentTime", received[3])
	}
}

func TestClient_ConnectionLost(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.ReadMessage() // hello
		// Returning closes the connection from the server side.
	})
	defer server.Close()

	var got collector
	client := NewClient(testClientConfig(), nil)
	client.SetHandler(got.handle)
	if err := client.Open(context.Background(), wsURL(server)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	received := got.wait(t, 1)
	if _, ok := received[0].(event.ConnectionClosed); !ok {
		t.Fatalf("event = %#v, want ConnectionClosed", received[0])
	}
	if client.IsOpen() {
		t.Error("expected IsOpen to return false after loss")
	}
}

func TestClient_CloseIsQuiet(t *testing.T) {
	server := mockWSServer(t, drain)
	defer server.Close()

	var got collector
	client := NewClient(testClientConfig(), nil)
	client.SetHandler(got.handle)
	if err := client.Open(context.Background(), wsURL(server)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	got.mu.Lock()
	defer got.mu.Unlock()
	if len(got.events) != 0 {
		t.Errorf("requested close reported %d events", len(got.events))
	}
}

func TestClient_Reopen(t *testing.T) {
	server := mockWSServer(t, drain)
	defer server.Close()

	client := NewClient(testClientConfig(), nil)
	for i := 0; i < 2; i++ {
		if err := client.Open(context.Background(), wsURL(server)); err != nil {
			t.Fatalf("Open #%d failed: %v", i+1, err)
		}
		if err := client.Close(); err != nil {
			t.Fatalf("Close #%d failed: %v", i+1, err)
		}
	}
}

func TestClient_PingHandler(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		go drain(conn)
		if err := conn.WriteControl(websocket.PingMessage, []byte("heartbeat"), time.Now().Add(time.Second)); err != nil {
			t.Logf("ping error: %v", err)
			return
		}
		time.Sleep(500 * time.Millisecond)
	})
	defer server.Close()

	client := NewClient(testClientConfig(), nil)
	if err := client.Open(context.Background(), wsURL(server)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer client.Close()

	time.Sleep(200 * time.Millisecond)

	if !client.IsOpen() {
		t.Error("expected client to be open after ping")
	}
}

func TestClient_StaleConnection(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Never read, so pongs are never sent back.
		time.Sleep(time.Second)
	})
	defer server.Close()

	cfg := testClientConfig()
	cfg.PingInterval = 20 * time.Millisecond
	cfg.PingTimeout = 10 * time.Millisecond

	var got collector
	client := NewClient(cfg, nil)
	client.SetHandler(got.handle)
	if err := client.Open(context.Background(), wsURL(server)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	received := got.wait(t, 1)
	closed, ok := received[0].(event.ConnectionClosed)
	if !ok {
		t.Fatalf("event = %#v, want ConnectionClosed", received[0])
	}
	if !errors.Is(closed.Err, ErrStaleConnection) {
		t.Errorf("Err = %v, want ErrStaleConnection", closed.Err)
	}
}

func TestDefaultClientConfig(t *testing.T) {
	cfg := DefaultClientConfig()
	if cfg.PingTimeout != 60*time.Second {
		t.Errorf("PingTimeout = %v, want 60s", cfg.PingTimeout)
	}
	if cfg.MaxRequestsPerSec != 50 {
		t.Errorf("MaxRequestsPerSec = %v, want 50", cfg.MaxRequestsPerSec)
	}
}
