package wsmux

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/habitatcp/controlplane/internal/busx"
	"github.com/nats-io/nats.go"
)

func startTestBus(t *testing.T) *busx.Server {
	t.Helper()
	srv, err := busx.Start(busx.ServerConfig{Port: -1, StoreDir: t.TempDir()})
	if err != nil {
		t.Fatalf("start bus: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

func dialMux(t *testing.T, srv *busx.Server) *websocket.Conn {
	t.Helper()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := Serve(w, r, srv.Conn(), nil); err != nil {
			t.Logf("serve: %v", err)
		}
	})
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestSubscribeForwardsBusArrivals(t *testing.T) {
	srv := startTestBus(t)
	conn := dialMux(t, srv)

	if err := conn.WriteJSON(frame{Type: "subscribe", Key: "ns.test.subject"}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	time.Sleep(50 * time.Millisecond) // allow the bus subscription to register

	if err := srv.Conn().Publish("ns.test.subject", []byte(`{"value":42}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got frame
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read forwarded frame: %v", err)
	}
	if got.Type != "data" || got.Key != "ns.test.subject" {
		t.Fatalf("unexpected forwarded frame: %+v", got)
	}
	if string(got.Payload) != `{"value":42}` {
		t.Fatalf("expected JSON payload preserved, got %s", got.Payload)
	}
}

func TestSubscribeIsIdempotent(t *testing.T) {
	srv := startTestBus(t)
	conn := dialMux(t, srv)

	for i := 0; i < 2; i++ {
		if err := conn.WriteJSON(frame{Type: "subscribe", Key: "ns.idem"}); err != nil {
			t.Fatalf("write subscribe: %v", err)
		}
	}
	time.Sleep(50 * time.Millisecond)

	if err := srv.Conn().Publish("ns.idem", []byte(`"once"`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first frame
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read: %v", err)
	}

	// A second subscribe for the same key must not create a duplicate
	// subscription — assert no second forwarded frame arrives quickly.
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var second frame
	if err := conn.ReadJSON(&second); err == nil {
		t.Fatalf("expected no duplicate forward from idempotent subscribe, got %+v", second)
	}
}

func TestUnsubscribeStopsForwarding(t *testing.T) {
	srv := startTestBus(t)
	conn := dialMux(t, srv)

	if err := conn.WriteJSON(frame{Type: "subscribe", Key: "ns.stop"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := conn.WriteJSON(frame{Type: "unsubscribe", Key: "ns.stop"}); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if err := srv.Conn().Publish("ns.stop", []byte(`"ignored"`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var got frame
	if err := conn.ReadJSON(&got); err == nil {
		t.Fatalf("expected no frame after unsubscribe, got %+v", got)
	}
}

func TestPublishFrameFireAndForget(t *testing.T) {
	srv := startTestBus(t)
	conn := dialMux(t, srv)

	received := make(chan []byte, 1)
	sub, err := srv.Conn().Subscribe("ns.client-publish", func(msg *nats.Msg) {
		received <- msg.Data
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()
	time.Sleep(50 * time.Millisecond)

	if err := conn.WriteJSON(frame{Type: "publish", Key: "ns.client-publish", Payload: []byte(`{"x":1}`)}); err != nil {
		t.Fatalf("publish frame: %v", err)
	}

	select {
	case data := <-received:
		if string(data) != `{"x":1}` {
			t.Fatalf("unexpected published payload: %s", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected the client's publish frame to reach the bus")
	}
}

func TestActiveConnectionsTracksLifetime(t *testing.T) {
	srv := startTestBus(t)
	before := ActiveConnections()

	conn := dialMux(t, srv)
	deadline := time.Now().Add(time.Second)
	for ActiveConnections() != before+1 {
		if time.Now().After(deadline) {
			t.Fatalf("expected ActiveConnections to increment after dial, got %d (before=%d)", ActiveConnections(), before)
		}
		time.Sleep(time.Millisecond)
	}

	conn.Close()
	deadline = time.Now().Add(time.Second)
	for ActiveConnections() != before {
		if time.Now().After(deadline) {
			t.Fatalf("expected ActiveConnections to return to %d after close, got %d", before, ActiveConnections())
		}
		time.Sleep(time.Millisecond)
	}
}
