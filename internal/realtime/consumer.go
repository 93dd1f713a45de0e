package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/betslip/internal/metrics"
	"github.com/mcdev12/betslip/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// State is the connection state of the push channel.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
)

// Message types delivered on the push channel.
const (
	MessageTypeHeartbeat   = "heartbeat"
	MessageTypeLiveScores  = "live_scores"
	MessageTypeResolved    = "match_resolved"
	MessageTypeOddsUpdated = "odds_updated"
)

// Config holds configuration for the realtime consumer.
type Config struct {
	URL                string
	HeartbeatInterval  time.Duration
	BaseReconnectDelay time.Duration
	MaxReconnectDelay  time.Duration
	// RefreshInterval drives the foreground-independent periodic refresh
	// that runs regardless of channel health.
	RefreshInterval time.Duration
	// ChangedWindow is how long the per-event "recently changed" marker
	// stays set after an odds update.
	ChangedWindow time.Duration
	RefetchRate   rate.Limit
	RefetchBurst  int
}

func DefaultConfig(url string) Config {
	return Config{
		URL:                url,
		HeartbeatInterval:  25 * time.Second,
		BaseReconnectDelay: time.Second,
		MaxReconnectDelay:  60 * time.Second,
		RefreshInterval:    5 * time.Minute,
		ChangedWindow:      10 * time.Second,
		RefetchRate:        rate.Limit(5),
		RefetchBurst:       10,
	}
}

// MirrorSink defines what the consumer needs from the local mirror. All
// merges are wholesale replacement of keyed entries.
type MirrorSink interface {
	ReplaceScores(updates map[string]models.LiveScoreUpdate)
	ApplyEvent(event models.Event)
	ApplyBetRecord(record models.BetRecord)
	MarkChanged(eventID string)
	ClearChanged(eventID string)
	SelectionEventIDs() []string
}

// RefetchAPI defines what the consumer needs for background refetches
type RefetchAPI interface {
	GetEvents(ctx context.Context, eventIDs []string) ([]models.Event, error)
	GetBetRecord(ctx context.Context, eventID string) (*models.BetRecord, error)
}

// Consumer maintains the reconnecting push connection delivering live
// scores, settlement notifications and odds changes. It is an explicitly
// owned object with an open/close lifecycle; the host injects it into
// whichever view needs live data. Failures are never fatal: on persistent
// disconnection the system degrades to periodic-refresh-only while
// reconnection keeps being attempted under capped exponential backoff.
type Consumer struct {
	config  Config
	dialer  *websocket.Dialer
	clock   clockwork.Clock
	sink    MirrorSink
	api     RefetchAPI
	limiter *rate.Limiter

	// OnCountdown, if set, receives the time remaining until the next
	// periodic refresh, once per second.
	OnCountdown func(remaining time.Duration)

	mu           sync.Mutex
	state        State
	conn         *websocket.Conn
	failures     int
	markerTimers map[string]clockwork.Timer
}

func NewConsumer(config Config, sink MirrorSink, api RefetchAPI, clock clockwork.Clock) *Consumer {
	return &Consumer{
		config:       config,
		dialer:       websocket.DefaultDialer,
		clock:        clock,
		sink:         sink,
		api:          api,
		limiter:      rate.NewLimiter(config.RefetchRate, config.RefetchBurst),
		state:        StateDisconnected,
		markerTimers: make(map[string]clockwork.Timer),
	}
}

// State returns the current connection state.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run connects and consumes until the context is cancelled, reconnecting
// indefinitely under capped exponential backoff. The periodic refresh loop
// runs for the same lifetime, independent of channel health.
func (c *Consumer) Run(ctx context.Context) {
	go c.refreshLoop(ctx)

	for ctx.Err() == nil {
		c.setState(StateConnecting)
		conn, resp, err := c.dialer.DialContext(ctx, c.config.URL, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			c.setState(StateDisconnected)
			c.waitReconnect(ctx)
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.failures = 0
		c.state = StateConnected
		c.mu.Unlock()
		log.Info().Str("url", c.config.URL).Msg("push channel connected")

		c.serve(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.state = StateDisconnected
		c.mu.Unlock()
		c.clearMarkerTimers()

		if ctx.Err() != nil {
			break
		}
		c.waitReconnect(ctx)
	}

	c.setState(StateDisconnected)
	log.Info().Msg("push channel consumer stopped")
}

// Close tears down the current connection, unblocking the read loop. The
// Run context governs whether a reconnect follows.
func (c *Consumer) Close() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
	c.clearMarkerTimers()
}

// ReconnectDelay computes the backoff before the given consecutive failed
// attempt: min(base * 2^(failures-1), ceiling).
func (c *Consumer) ReconnectDelay(failures int) time.Duration {
	delay := c.config.BaseReconnectDelay
	for i := 1; i < failures && delay < c.config.MaxReconnectDelay; i++ {
		delay *= 2
	}
	if delay > c.config.MaxReconnectDelay {
		delay = c.config.MaxReconnectDelay
	}
	return delay
}

func (c *Consumer) waitReconnect(ctx context.Context) {
	c.mu.Lock()
	c.failures++
	failures := c.failures
	c.mu.Unlock()

	metrics.Reconnects.Inc()
	delay := c.ReconnectDelay(failures)
	log.Debug().Int("failures", failures).Dur("delay", delay).Msg("scheduling reconnect")

	select {
	case <-ctx.Done():
	case <-c.clock.After(delay):
	}
}

// serve runs the heartbeat writer and the read loop for one connection.
// Returns when the connection closes for any reason.
func (c *Consumer) serve(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := c.clock.NewTicker(c.config.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.Chan():
				if err := conn.WriteJSON(frame{Type: MessageTypeHeartbeat}); err != nil {
					log.Debug().Err(err).Msg("heartbeat write failed")
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("push channel closed unexpectedly")
			} else {
				log.Debug().Err(err).Msg("push channel closed")
			}
			return
		}
		c.Dispatch(ctx, raw)
	}
}

func (c *Consumer) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}
