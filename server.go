package docroom

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// disconnectTimeout bounds the persistence work triggered by a vanished
// connection; the request context is already dead by then.
const disconnectTimeout = 10 * time.Second

// ServerConfig configures the websocket front end.
type ServerConfig struct {
	Coordinator *Coordinator
	Logger      zerolog.Logger

	// MessagesPerSecond and Burst bound inbound message rates per
	// connection. Zero disables limiting.
	MessagesPerSecond float64
	Burst             int
}

// Server terminates websocket connections and feeds decoded protocol events
// into the Coordinator. It implements http.Handler for the /ws endpoint.
type Server struct {
	coordinator *Coordinator
	upgrader    websocket.Upgrader
	logger      zerolog.Logger
	msgRate     rate.Limit
	burst       int
}

func NewServer(cfg ServerConfig) *Server {
	burst := cfg.Burst
	if cfg.MessagesPerSecond > 0 && burst <= 0 {
		burst = int(cfg.MessagesPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &Server{
		coordinator: cfg.Coordinator,
		logger:      cfg.Logger.With().Str("component", "ws").Logger(),
		msgRate:     rate.Limit(cfg.MessagesPerSecond),
		burst:       burst,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	var limiter *rate.Limiter
	if s.msgRate > 0 {
		limiter = rate.NewLimiter(s.msgRate, s.burst)
	}
	conn, err := newConn(ws, limiter, s.logger)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to set up connection")
		_ = ws.Close()
		return
	}

	getMetrics().openConnections.Inc()
	s.logger.Info().Str("conn", conn.ID()).Str("remote", r.RemoteAddr).Msg("client connected")

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go conn.writePump()
	s.readLoop(r.Context(), conn)

	//the request context dies with the socket; disconnect cleanup gets its own
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	s.coordinator.HandleDisconnect(ctx, conn)

	_ = ws.Close()
	getMetrics().openConnections.Dec()
	s.logger.Info().Str("conn", conn.ID()).Msg("client disconnected")
}

func (s *Server) readLoop(ctx context.Context, conn *Conn) {
	for {
		_, raw, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn().Err(err).Str("conn", conn.ID()).Msg("websocket read error")
			}
			return
		}
		if !conn.allow() {
			//over the inbound rate limit; drop, same as any other misuse
			s.logger.Debug().Str("conn", conn.ID()).Msg("rate limited message dropped")
			continue
		}
		s.dispatch(ctx, conn, raw)
	}
}

func (s *Server) dispatch(ctx context.Context, conn *Conn, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.logger.Debug().Err(err).Str("conn", conn.ID()).Msg("malformed envelope dropped")
		return
	}

	switch env.Event {
	case EventJoinDocument:
		var p JoinPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			s.logger.Debug().Err(err).Str("conn", conn.ID()).Msg("malformed join dropped")
			return
		}
		s.coordinator.HandleJoin(ctx, conn, p.DocID)
	case EventEdit:
		var p EditPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			s.logger.Debug().Err(err).Str("conn", conn.ID()).Msg("malformed edit dropped")
			return
		}
		s.coordinator.HandleEdit(ctx, conn, p)
	case EventRequestLock:
		var p RequestLockPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			s.logger.Debug().Err(err).Str("conn", conn.ID()).Msg("malformed lock request dropped")
			return
		}
		s.coordinator.HandleRequestLock(ctx, conn, p.DocID)
	case EventReleaseLock:
		var p ReleaseLockPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			s.logger.Debug().Err(err).Str("conn", conn.ID()).Msg("malformed release dropped")
			return
		}
		s.coordinator.HandleReleaseLock(ctx, conn, p)
	default:
		s.logger.Debug().Str("conn", conn.ID()).Str("event", env.Event).Msg("unknown event dropped")
	}
}
