package busx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
)

// TelemetryInserter is the subset of TimeSeriesCache BusBrokerCore feeds.
// Kept as a narrow interface so busx never imports internal/tscache and
// introduces a cycle.
type TelemetryInserter interface {
	Insert(subject string, value json.RawMessage, timestampMs int64)
}

// AlarmSampleHandler processes a live-alarm sample (spec.md §4.2).
type AlarmSampleHandler interface {
	HandleLiveAlarmSample(ctx context.Context, source string, payload json.RawMessage) error
}

// AlarmActionHandler processes a bus-delivered alarm action (spec.md §4.2).
type AlarmActionHandler interface {
	HandleAlarmAction(ctx context.Context, payload json.RawMessage) error
}

// TopologyObserver applies a remotely-observed topology replacement
// without re-broadcasting (spec.md §4.3, feedback-loop prevention).
type TopologyObserver interface {
	ApplyRemote(payload json.RawMessage) error
}

// BrokerConfig wires BusBrokerCore's collaborators and subject config.
type BrokerConfig struct {
	Subjects          Subjects
	IngestionPrefixes []string
	Telemetry         TelemetryInserter
	Alarms            AlarmSampleHandler
	AlarmActions      AlarmActionHandler
	Topology          TopologyObserver
	Logger            *slog.Logger
}

// BusBrokerCore is the multi-subject fan-in dispatcher of spec.md §4.6. It
// owns no bus connection of its own — it subscribes against the *Server's
// in-process connection and hands arrivals to its collaborators. Each
// logical subscription (telemetry per prefix, status feedback, alarm
// events, alarm actions, topology) is delivered on its own NATS dispatcher goroutine,
// so a slow handler never stalls the others; a subscription that fails
// to establish at startup is logged and skipped rather than aborting the
// whole core.
type BusBrokerCore struct {
	conn *nats.Conn
	cfg  BrokerConfig
	log  *slog.Logger

	subsMu sync.Mutex
	subs   []*nats.Subscription
}

// New creates a BusBrokerCore bound to conn. Call Start to declare
// subscriptions.
func New(conn *nats.Conn, cfg BrokerConfig) *BusBrokerCore {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &BusBrokerCore{conn: conn, cfg: cfg, log: log}
}

// Start declares the four logical subscription roles described in
// spec.md §4.6 plus a status-feedback role, establishing them concurrently via an errgroup.Group
// joined at the end. It never returns an error itself: a subscription
// failure is logged and that role is simply absent for the life of the
// core (spec.md §9, "a subscription failure at startup simply reduces
// the select's arity") — the joined error only drives the summary
// warning, not a Start failure.
func (b *BusBrokerCore) Start(ctx context.Context) {
	var g errgroup.Group

	for _, prefix := range b.cfg.IngestionPrefixes {
		role := "telemetry:" + prefix
		subject := b.cfg.Subjects.IngestionWildcard(prefix)
		g.Go(func() error {
			return b.subscribe(subject, role, func(msg *nats.Msg) {
				if b.cfg.Telemetry == nil {
					return
				}
				b.cfg.Telemetry.Insert(msg.Subject, json.RawMessage(msg.Data), time.Now().UnixMilli())
			})
		})
	}

	// Status samples feed the time-series cache the same way telemetry
	// does — RecipeOrchestrator's wait_for_state polling reads them back
	// from there (spec.md §4.7), oblivious to the fact they are status
	// rather than sensor data.
	g.Go(func() error {
		return b.subscribe(b.cfg.Subjects.StatusWildcard(), "status-feedback", func(msg *nats.Msg) {
			if b.cfg.Telemetry == nil {
				return
			}
			b.cfg.Telemetry.Insert(msg.Subject, json.RawMessage(msg.Data), time.Now().UnixMilli())
		})
	})

	g.Go(func() error {
		return b.subscribe(b.cfg.Subjects.SwimlaneAlarmWildcard(), "alarm-events", func(msg *nats.Msg) {
			if b.cfg.Alarms == nil {
				return
			}
			if err := b.cfg.Alarms.HandleLiveAlarmSample(ctx, msg.Subject, json.RawMessage(msg.Data)); err != nil {
				b.log.Warn("alarm sample handler failed", "subject", msg.Subject, "error", err)
			}
		})
	})

	g.Go(func() error {
		return b.subscribe(b.cfg.Subjects.AlarmAction(), "alarm-actions", func(msg *nats.Msg) {
			if b.cfg.AlarmActions == nil {
				return
			}
			if err := b.cfg.AlarmActions.HandleAlarmAction(ctx, json.RawMessage(msg.Data)); err != nil {
				b.log.Warn("alarm action handler failed", "error", err)
			}
		})
	})

	g.Go(func() error {
		return b.subscribe(b.cfg.Subjects.Topology(), "topology", func(msg *nats.Msg) {
			if b.cfg.Topology == nil {
				return
			}
			if err := b.cfg.Topology.ApplyRemote(json.RawMessage(msg.Data)); err != nil {
				b.log.Warn("topology observer failed", "error", err)
			}
		})
	})

	if err := g.Wait(); err != nil {
		b.log.Warn("one or more bus subscriptions failed to establish", "error", err)
	}
}

func (b *BusBrokerCore) subscribe(subject, role string, fn nats.MsgHandler) error {
	sub, err := b.conn.Subscribe(subject, fn)
	if err != nil {
		b.log.Warn("bus subscription failed, role disabled", "role", role, "subject", subject, "error", err)
		return fmt.Errorf("busx: subscribe role %q: %w", role, err)
	}
	b.subsMu.Lock()
	b.subs = append(b.subs, sub)
	b.subsMu.Unlock()
	return nil
}

// Stop unsubscribes every declared role.
func (b *BusBrokerCore) Stop() {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil
}

// Publish is a thin pass-through used by collaborators (LifecycleBridge,
// RecipeOrchestrator, AlarmEngine, TopologyStore) that need to publish
// without importing nats.go themselves.
func (b *BusBrokerCore) Publish(subject string, data []byte) error {
	return b.conn.Publish(subject, data)
}

// Conn exposes the underlying connection for components that need raw
// subscribe access (WsMultiplexer).
func (b *BusBrokerCore) Conn() *nats.Conn { return b.conn }
