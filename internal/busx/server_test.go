package busx

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

func TestStartAndShutdown(t *testing.T) {
	srv, err := Start(ServerConfig{Port: -1, StoreDir: t.TempDir()})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer srv.Shutdown()

	if srv.Port() <= 0 {
		t.Fatalf("expected a concrete listening port, got %d", srv.Port())
	}
	if !srv.Conn().IsConnected() {
		t.Fatalf("expected in-process connection to be connected")
	}
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	srv, err := Start(ServerConfig{Port: -1, StoreDir: t.TempDir()})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer srv.Shutdown()

	received := make(chan []byte, 1)
	sub, err := srv.Conn().Subscribe("test.subject", func(msg *nats.Msg) {
		received <- msg.Data
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if err := srv.Conn().Publish("test.subject", []byte("hello")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case data := <-received:
		if string(data) != "hello" {
			t.Fatalf("unexpected payload: %s", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected to receive published message")
	}
}
