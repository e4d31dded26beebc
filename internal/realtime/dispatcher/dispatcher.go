// Package dispatcher implements C10: a dedicated, non-pooled LISTEN
// connection that resolves each realtime_message notification into a hub
// broadcast and/or webhook delivery. Grounded on the teacher's
// internal/platform reconnect-with-backoff idiom (applied there to the
// migration runner's connection retry) generalized to a long-lived listener
// loop.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/insforge/core/internal/realtime/hub"
	"github.com/insforge/core/internal/realtime/webhook"
	"github.com/insforge/core/internal/telemetry"
)

const (
	listenChannel = "realtime_message"
	maxAttempts   = 10
	baseBackoff   = 5 * time.Second
)

// message mirrors the relevant columns of realtime.messages.
type message struct {
	ID         string
	ChannelID  string
	Channel    string
	Event      string
	Payload    []byte
	SenderType string
	SenderID   *string
}

// channel mirrors the relevant columns of realtime.channels.
type channel struct {
	ID          string
	Pattern     string
	WebhookURLs []string
	Enabled     bool
}

// Dispatcher owns the dedicated LISTEN connection's lifecycle.
type Dispatcher struct {
	connString string
	hub        *hub.Hub
	webhooks   *webhook.Sender
	logger     *slog.Logger
}

// New constructs a Dispatcher. connString must point at the same database
// as the application pool; the connection it opens is never shared with
// the pool, per spec.md §5's resource-discipline rule.
func New(connString string, h *hub.Hub, webhooks *webhook.Sender, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{connString: connString, hub: h, webhooks: webhooks, logger: logger}
}

// Run drives the reconnect loop until ctx is cancelled or attempts are
// exhausted. Initialisation is idempotent: calling Run again after a clean
// ctx cancellation simply reopens the connection.
func (d *Dispatcher) Run(ctx context.Context) {
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return
		}

		if attempt > 0 {
			if attempt > maxAttempts {
				d.logger.Error("realtime listener exhausted reconnect attempts, stopping")
				return
			}
			delay := baseBackoff * time.Duration(1<<uint(attempt-1))
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		if err := d.listenOnce(ctx); err != nil {
			d.logger.Warn("realtime listener disconnected", "attempt", attempt, "error", err)
			continue
		}

		// listenOnce only returns nil when ctx was cancelled cleanly.
		return
	}
}

func (d *Dispatcher) listenOnce(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, d.connString)
	if err != nil {
		return fmt.Errorf("connecting listener: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+listenChannel); err != nil {
		return fmt.Errorf("issuing LISTEN: %w", err)
	}
	d.logger.Info("realtime listener connected")

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("waiting for notification: %w", err)
		}

		d.handleNotification(ctx, conn, notification.Payload)
	}
}

// handleNotification resolves a message id into a row, then a channel row,
// and fans it out to the hub/webhooks. Failures are logged and swallowed so
// one bad row never brings down the listener.
func (d *Dispatcher) handleNotification(ctx context.Context, conn *pgx.Conn, messageID string) {
	msg, ok, err := d.fetchMessage(ctx, conn, messageID)
	if err != nil {
		d.logger.Error("fetching realtime message", "id", messageID, "error", err)
		return
	}
	if !ok {
		return
	}

	ch, ok, err := d.fetchChannel(ctx, conn, msg.ChannelID)
	if err != nil {
		d.logger.Error("fetching realtime channel", "channel_id", msg.ChannelID, "error", err)
		return
	}
	if !ok || !ch.Enabled {
		return
	}

	wsCount := d.hub.GetRoomSize(msg.Channel)
	if wsCount > 0 {
		senderID := ""
		if msg.SenderID != nil {
			senderID = *msg.SenderID
		}
		d.hub.BroadcastToRoom(msg.Channel, msg.Event, msg.Payload, msg.SenderType, senderID, msg.ID)
	}

	var whDelivered int
	if len(ch.WebhookURLs) > 0 {
		results := d.webhooks.SendToAll(ctx, ch.WebhookURLs, webhook.Message{
			Event:   msg.Event,
			Channel: msg.Channel,
			ID:      msg.ID,
			Payload: msg.Payload,
		})
		for _, r := range results {
			if r.Success {
				whDelivered++
			}
		}
	}

	if err := d.updateCounters(ctx, conn, msg.ID, wsCount, len(ch.WebhookURLs), whDelivered); err != nil {
		d.logger.Error("updating delivery counters", "id", msg.ID, "error", err)
	}

	telemetry.RealtimeMessagesDispatchedTotal.Inc()
}

func (d *Dispatcher) fetchMessage(ctx context.Context, conn *pgx.Conn, id string) (message, bool, error) {
	var m message
	err := conn.QueryRow(ctx,
		`SELECT id, channel_id, channel_name, event_name, payload, sender_type, sender_id
		 FROM realtime.messages WHERE id = $1`, id,
	).Scan(&m.ID, &m.ChannelID, &m.Channel, &m.Event, &m.Payload, &m.SenderType, &m.SenderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return message{}, false, nil
	}
	if err != nil {
		return message{}, false, err
	}
	return m, true, nil
}

func (d *Dispatcher) fetchChannel(ctx context.Context, conn *pgx.Conn, id string) (channel, bool, error) {
	var c channel
	err := conn.QueryRow(ctx,
		`SELECT id, pattern, webhook_urls, enabled FROM realtime.channels WHERE id = $1`, id,
	).Scan(&c.ID, &c.Pattern, &c.WebhookURLs, &c.Enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return channel{}, false, nil
	}
	if err != nil {
		return channel{}, false, err
	}
	return c, true, nil
}

func (d *Dispatcher) updateCounters(ctx context.Context, conn *pgx.Conn, id string, wsCount, whAudience, whDelivered int) error {
	_, err := conn.Exec(ctx,
		`UPDATE realtime.messages
		 SET ws_audience_count = $2, wh_audience_count = $3, wh_delivered_count = $4
		 WHERE id = $1`,
		id, wsCount, whAudience, whDelivered,
	)
	return err
}
