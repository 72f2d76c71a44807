// Package wsmux implements the WsMultiplexer of spec.md §4.9: per
// WebSocket connection, a dynamic subject-keyed set of bus subscriptions
// that forward arrivals to the client and accept fire-and-forget
// publishes from it.
package wsmux

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
)

var activeConnections atomic.Int64

// ActiveConnections returns the number of WebSocket connections currently
// being served, for the metrics endpoint.
func ActiveConnections() int64 {
	return activeConnections.Load()
}

// Upgrader is the shared gorilla upgrader; origin checking is left to
// the caller's reverse proxy / auth layer, matching the teacher's
// permissive development-mode default.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// frame is the client->server and server->client wire shape.
type frame struct {
	Type    string          `json:"type"`
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Mux serves one WebSocket connection's lifetime: subscribe/unsubscribe/
// publish frame handling, and forwarding bus arrivals back to the client.
type Mux struct {
	conn *websocket.Conn
	nc   *nats.Conn
	log  *slog.Logger

	writeMu sync.Mutex

	subsMu sync.Mutex
	subs   map[string]*nats.Subscription
}

// Serve upgrades r into a WebSocket and runs the connection's frame loop
// until the client disconnects or the connection errors. All subscription
// tasks are aborted on return (spec.md §4.9).
func Serve(w http.ResponseWriter, r *http.Request, nc *nats.Conn, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	m := &Mux{conn: conn, nc: nc, log: log, subs: make(map[string]*nats.Subscription)}
	activeConnections.Add(1)
	defer activeConnections.Add(-1)
	defer m.closeAll()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Debug("wsmux: dropping malformed frame", "error", err)
			continue
		}
		switch f.Type {
		case "subscribe":
			m.subscribe(f.Key)
		case "unsubscribe":
			m.unsubscribe(f.Key)
		case "publish":
			m.publish(f.Key, f.Payload)
		default:
			log.Debug("wsmux: unknown frame type", "type", f.Type)
		}
	}
}

// subscribe is idempotent: subscribing twice on the same key is a no-op
// (spec.md §4.9).
func (m *Mux) subscribe(key string) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if _, ok := m.subs[key]; ok {
		return
	}

	sub, err := m.nc.Subscribe(key, func(msg *nats.Msg) {
		m.forward(key, msg.Data)
	})
	if err != nil {
		m.log.Warn("wsmux: subscribe failed", "key", key, "error", err)
		return
	}
	m.subs[key] = sub
}

func (m *Mux) unsubscribe(key string) {
	m.subsMu.Lock()
	sub, ok := m.subs[key]
	if ok {
		delete(m.subs, key)
	}
	m.subsMu.Unlock()
	if ok {
		_ = sub.Unsubscribe()
	}
}

func (m *Mux) publish(key string, payload json.RawMessage) {
	if err := m.nc.Publish(key, payload); err != nil {
		m.log.Warn("wsmux: publish failed", "key", key, "error", err)
	}
}

// forward delivers one bus arrival to the client as {key, payload}.
// payload is embedded as JSON if it parses, else as a raw string — the
// client should not have to guess which. A write failure (client gone)
// drops the subscription that produced it.
func (m *Mux) forward(key string, data []byte) {
	var payload json.RawMessage
	if json.Valid(data) {
		payload = data
	} else {
		encoded, err := json.Marshal(string(data))
		if err != nil {
			return
		}
		payload = encoded
	}

	out, err := json.Marshal(frame{Type: "data", Key: key, Payload: payload})
	if err != nil {
		return
	}

	m.writeMu.Lock()
	err = m.conn.WriteMessage(websocket.TextMessage, out)
	m.writeMu.Unlock()
	if err != nil {
		m.log.Debug("wsmux: forward failed, dropping subscription", "key", key, "error", err)
		m.unsubscribe(key)
	}
}

func (m *Mux) closeAll() {
	m.subsMu.Lock()
	subs := m.subs
	m.subs = make(map[string]*nats.Subscription)
	m.subsMu.Unlock()

	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	_ = m.conn.Close()
}
