// Package notify publishes revision status transitions over Redis pub/sub
// (DOMAIN STACK: "a pub/sub channel publishing revision status
// transitions... mirroring internal/realtime/bus's redisBus"), letting an
// external viewer subscribe to "my revision just became COMPLETE" instead
// of polling. Purely additive: nil-safe throughout, so a caller that never
// sets REDIS_ADDR gets silent no-op notifications.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/brightforge/modelengine/internal/ids"
	"github.com/brightforge/modelengine/internal/platform/envutil"
	"github.com/brightforge/modelengine/internal/platform/logger"
)

// StatusEvent is one revision status transition published on the channel
// (6.4: GEN_SEL_TREE -> GEN_WEB_STASH -> COMPLETE, or ERROR).
type StatusEvent struct {
	Database   string    `json:"database"`
	Project    string    `json:"project"`
	RevisionID ids.UUID  `json:"revision_id"`
	Status     string    `json:"status"`
}

// Notifier publishes StatusEvents on a single Redis channel.
type Notifier struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

// New connects to REDIS_ADDR and returns a Notifier, or (nil, nil) if
// REDIS_ADDR is unset — the caller is expected to pass the (possibly nil)
// result straight into commit.New, whose every method is nil-safe.
func New(log *logger.Logger) (*Notifier, error) {
	addr := strings.TrimSpace(envutil.GetEnv("REDIS_ADDR", "", log))
	if addr == "" {
		return nil, nil
	}
	channel := envutil.GetEnv("REDIS_CHANNEL_REVISIONS", "modelengine.revisions", log)

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("notify: redis ping: %w", err)
	}

	return &Notifier{log: log.With("component", "notify.Notifier"), rdb: rdb, channel: channel}, nil
}

// Publish sends ev on the configured channel. Errors are logged, not
// returned: a notification failure must never fail a commit (4.4's status
// machine is the source of truth for visible state, not the notifier).
func (n *Notifier) Publish(ctx context.Context, ev StatusEvent) {
	if n == nil || n.rdb == nil {
		return
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		n.log.Warn("failed to marshal status event", "error", err)
		return
	}
	if err := n.rdb.Publish(ctx, n.channel, raw).Err(); err != nil {
		n.log.Warn("failed to publish status event", "error", err)
	}
}

// Subscribe starts a background forwarder invoking onEvent for every
// StatusEvent received on the channel, until ctx is cancelled. Mirrors the
// teacher's redisBus.StartForwarder shape.
func (n *Notifier) Subscribe(ctx context.Context, onEvent func(StatusEvent)) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	sub := n.rdb.Subscribe(ctx, n.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("notify: subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok || msg == nil {
					_ = sub.Close()
					return
				}
				var ev StatusEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					n.log.Warn("bad status event payload", "error", err)
					continue
				}
				onEvent(ev)
			}
		}
	}()
	return nil
}

// Close releases the underlying Redis client.
func (n *Notifier) Close() error {
	if n == nil || n.rdb == nil {
		return nil
	}
	return n.rdb.Close()
}
