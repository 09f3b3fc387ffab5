package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
)

// ProgressStream handles GET /compressions/events. It upgrades to a
// websocket, sends the current slot state, then forwards every progress
// event published while the client stays connected.
func (h *Handlers) ProgressStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	// Subscribe before reading the state so nothing falls in between.
	sub := h.orchestrator.Subscribe()
	defer sub.Close()

	state := h.orchestrator.State()
	if err := writeStreamMessage(conn, StreamMessage{Type: StreamMessageState, State: &state}); err != nil {
		h.logger.Debug("progress stream closed", slog.String("error", err.Error()))
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	h.logger.Debug("progress stream opened", slog.String("remote_addr", r.RemoteAddr))
	for {
		select {
		case <-done:
			h.logger.Debug("progress stream client left", slog.String("remote_addr", r.RemoteAddr))
			return
		case ev, ok := <-sub.C():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(streamWriteWait))
				return
			}
			if err := writeStreamMessage(conn, StreamMessage{Type: StreamMessageProgress, Event: &ev}); err != nil {
				h.logger.Debug("progress stream write failed", slog.String("error", err.Error()))
				return
			}
			if ev.Kind.IsTerminal() {
				h.logger.Debug("progress stream relayed job end",
					slog.String("job_id", ev.JobID),
					slog.String("kind", string(ev.Kind)),
				)
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}

func writeStreamMessage(conn *websocket.Conn, msg StreamMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

// originChecker accepts requests without an Origin header, any origin when
// "*" is listed, and otherwise exact matches of scheme://host.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[u.Scheme+"://"+u.Host]
		return ok
	}
}
