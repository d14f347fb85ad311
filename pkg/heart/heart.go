package heart

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/wsomgr/pkg/log"
	"github.com/cuemby/wsomgr/pkg/metrics"
	"nhooyr.io/websocket"
)

// Heart sends one outbound stream of heartbeats to a single peer,
// reconnecting on failure. A manager process runs one Heart per other
// manager in Config, each announcing this manager's own token.
type Heart struct {
	peerAddress       string
	token             string
	beatInterval      time.Duration
	reconnectInterval time.Duration
}

// New creates a Heart dialing ws://peerAddress/heartbeats/<token>.
func New(peerAddress, token string, beatInterval, reconnectInterval time.Duration) *Heart {
	if beatInterval <= 0 {
		beatInterval = time.Second
	}
	if reconnectInterval <= 0 {
		reconnectInterval = 3 * time.Second
	}
	return &Heart{
		peerAddress:       peerAddress,
		token:             token,
		beatInterval:      beatInterval,
		reconnectInterval: reconnectInterval,
	}
}

func (h *Heart) name() string { return fmt.Sprintf("heart#%s", h.token) }

func (h *Heart) url() string {
	return fmt.Sprintf("ws://%s/heartbeats/%s", h.peerAddress, h.token)
}

// BeatForever beats until ctx is cancelled, reconnecting indefinitely
// on any transport error.
func (h *Heart) BeatForever(ctx context.Context) {
	h.BeatUntil(ctx, func() bool { return true })
}

// BeatUntil beats until ctx is cancelled or predicate returns false
// (checked between beats, not mid-beat), reconnecting on error.
func (h *Heart) BeatUntil(ctx context.Context, predicate func() bool) {
	logger := log.WithToken(h.token)
	for ctx.Err() == nil && predicate() {
		conn, _, err := websocket.Dial(ctx, h.url(), nil)
		if err != nil {
			logger.Error().Err(err).Msg("heart connection refused")
			metrics.HeartbeatReconnectsTotal.WithLabelValues(h.peerAddress).Inc()
			if !sleepOrDone(ctx, h.reconnectInterval) {
				return
			}
			continue
		}
		logger.Info().Str("peer", h.peerAddress).Msg("heart connection established")

		err = h.beatLoop(ctx, conn, predicate)
		_ = conn.Close(websocket.StatusNormalClosure, "")
		if err != nil {
			logger.Error().Err(err).Msg("heart connection closed")
		}
		if !sleepOrDone(ctx, h.reconnectInterval) {
			return
		}
	}
}

func (h *Heart) beatLoop(ctx context.Context, conn *websocket.Conn, predicate func() bool) error {
	for predicate() {
		timer := time.NewTimer(h.beatInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		if err := conn.Write(ctx, websocket.MessageText, nil); err != nil {
			return err
		}
		metrics.HeartbeatsSentTotal.WithLabelValues(h.peerAddress).Inc()
	}
	return nil
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
