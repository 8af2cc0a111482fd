// Package admin exposes the relay over HTTP: Prometheus metrics, a health
// report and a WebSocket entry point that speaks the same line protocol as
// the TCP listener.
package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/andy6609/relaychat/internal/chat"
)

// Relay is the part of the chat server the admin surface needs.
type Relay interface {
	Serve(conn net.Conn) error
	Registry() *chat.Registry
}

// NewRouter wires /metrics, /healthz and /ws. ctx bounds the lifetime of
// every WebSocket session started through it.
func NewRouter(ctx context.Context, relay Relay, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", healthHandler(relay))
	r.Get("/ws", wsHandler(ctx, relay, logger))
	return r
}

func healthHandler(relay Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(relay.Registry().Stats())
	}
}

// wsHandler turns each WebSocket into a net.Conn where one text message is
// one frame, then blocks in Serve for the session's lifetime.
func wsHandler(ctx context.Context, relay Relay, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error("websocket accept error", "addr", r.RemoteAddr, "error", err)
			return
		}

		conn := websocket.NetConn(ctx, ws, websocket.MessageText)
		if err := relay.Serve(conn); err != nil {
			logger.Warn("websocket session refused", "addr", r.RemoteAddr, "error", err)
		}
	}
}
