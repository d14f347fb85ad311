package heart

import (
	"fmt"
	"net/http"

	"github.com/cuemby/wsomgr/pkg/log"
	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
)

// Handler upgrades inbound /heartbeats/{token} connections and records
// every frame received into a Table.
type Handler struct {
	table *Table
}

// NewHandler wraps table as an http.Handler.
func NewHandler(table *Table) *Handler {
	return &Handler{table: table}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	logger := log.WithToken(token)

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("heartbeat upgrade failed")
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	if !h.table.IsExpected(token) {
		logger.Warn().Msg("heartbeat for unplanned token")
		_ = conn.Close(websocket.StatusPolicyViolation, fmt.Sprintf("Did not expect token '%s'", token))
		return
	}

	h.table.Beat(token)
	logger.Debug().Msg("heartbeat connection opened")

	for {
		_, _, err := conn.Read(ctx)
		if err != nil {
			logger.Debug().Err(err).Msg("heartbeat connection closed")
			return
		}
		h.table.Beat(token)
	}
}
