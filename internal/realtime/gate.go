package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sakif/starblog/internal/model"
)

// TokenVerifier is satisfied by *auth.TokenService.
type TokenVerifier interface {
	Verify(token string) (*model.Principal, error)
}

// SocketGate authorizes the websocket handshake. The token travels in the
// "token" query parameter of the upgrade request, since browsers cannot set
// headers on a websocket handshake. There is no anonymous socket mode.
type SocketGate struct {
	hub      *Hub
	tokens   TokenVerifier
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewSocketGate accepts browser handshakes only from allowedOrigin. Requests
// without an Origin header (non-browser clients) are let through.
func NewSocketGate(hub *Hub, tokens TokenVerifier, allowedOrigin string, logger *slog.Logger) *SocketGate {
	allowedOrigin = strings.TrimRight(allowedOrigin, "/")
	return &SocketGate{
		hub:    hub,
		tokens: tokens,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || strings.EqualFold(origin, allowedOrigin)
			},
		},
	}
}

func (g *SocketGate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		writeHandshakeError(w, "Authentication error: No token provided")
		return
	}
	p, err := g.tokens.Verify(token)
	if err != nil {
		g.logger.Debug("socket handshake rejected", slog.String("error", err.Error()))
		writeHandshakeError(w, "Authentication error: Invalid token")
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		g.logger.Debug("socket upgrade failed", slog.String("error", err.Error()))
		return
	}
	g.attach(conn, p)
}

// attach joins an upgraded connection to its user's channel.
func (g *SocketGate) attach(conn *websocket.Conn, p *model.Principal) {
	if p == nil || p.ID == 0 {
		g.logger.Warn("socket without principal, closing")
		closeWith(conn, websocket.ClosePolicyViolation, "unauthenticated")
		return
	}

	client, err := g.hub.Register(p.ID, conn)
	if err != nil {
		g.logger.Warn("socket registration refused",
			slog.Int64("user_id", p.ID),
			slog.String("error", err.Error()),
		)
		closeWith(conn, websocket.CloseTryAgainLater, err.Error())
		return
	}

	g.logger.Debug("socket connected", slog.Int64("user_id", p.ID))
	go client.WritePump()
	go client.ReadPump()
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	_ = conn.Close()
}

func writeHandshakeError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized", "message": msg})
}
