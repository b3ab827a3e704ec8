package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"eraforge.game/internal/metrics"
	"eraforge.game/internal/protocol"
	"eraforge.game/internal/sim/game"
	"eraforge.game/internal/sim/state"
)

type Config struct {
	Game    *game.Game
	Logger  *log.Logger
	Metrics *metrics.Collectors

	// IntentRate and IntentBurst bound intents per connection; zero values
	// mean 20/s with a burst of 40.
	IntentRate  rate.Limit
	IntentBurst int
	// QueueSize bounds pending outbound messages per connection.
	QueueSize int
}

type Server struct {
	game    *game.Game
	log     *log.Logger
	metrics *metrics.Collectors

	rate  rate.Limit
	burst int
	queue int

	upgrader websocket.Upgrader
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.IntentRate <= 0 {
		cfg.IntentRate = 20
	}
	if cfg.IntentBurst <= 0 {
		cfg.IntentBurst = 40
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &Server{
		game:    cfg.Game,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		rate:    cfg.IntentRate,
		burst:   cfg.IntentBurst,
		queue:   cfg.QueueSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

type session struct {
	id   string
	out  chan []byte
	seq  atomic.Uint64
	want map[string]bool
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(conn)
		if sess == nil {
			return
		}
		s.metrics.SessionOpened()
		defer s.metrics.SessionClosed()
		s.log.Printf("session %s connected from %s", sess.id, r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		listener := s.game.Store.AddListener(state.EventAll, func(n state.Notification) {
			s.push(sess, n)
		})
		defer s.game.Store.RemoveListener(state.EventAll, listener)

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		limiter := rate.NewLimiter(s.rate, s.burst)
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			reply := s.handleMessage(sess, limiter, msg)
			if reply == nil {
				continue
			}
			b, err := json.Marshal(reply)
			if err != nil {
				s.log.Printf("session %s: encode reply: %v", sess.id, err)
				continue
			}
			select {
			case sess.out <- b:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}
		s.log.Printf("session %s closed", sess.id)
	}
}

func (s *Server) handleMessage(sess *session, limiter *rate.Limiter, msg []byte) any {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.ErrorMsg{Type: protocol.TypeError, Code: protocol.ErrProtoBadRequest, Message: "invalid json"}
	}
	if base.Type != protocol.TypeIntent {
		return protocol.ErrorMsg{Type: protocol.TypeError, Code: protocol.ErrProtoBadRequest, Message: "unexpected message type " + base.Type}
	}
	in, err := protocol.DecodeIntent(msg)
	if err != nil {
		return protocol.ErrorMsg{Type: protocol.TypeError, Code: protocol.ErrProtoBadRequest, Message: err.Error()}
	}
	if !limiter.Allow() {
		return protocol.OutcomeMsg{Type: protocol.TypeOutcome, ID: in.ID, Intent: in.Intent, Code: protocol.ErrRateLimit, Message: "too many intents"}
	}
	out := s.game.Handle(in.Intent, in.Target)
	return protocol.OutcomeMsg{
		Type:    protocol.TypeOutcome,
		ID:      in.ID,
		Intent:  in.Intent,
		OK:      out.OK,
		Code:    out.Code,
		Message: out.Reason,
		Data:    out.Data,
	}
}

// push enqueues a notification without blocking the engine; a full queue
// drops it.
func (s *Server) push(sess *session, n state.Notification) {
	if len(sess.want) > 0 && !sess.want[string(n.Event)] {
		return
	}
	b, err := json.Marshal(protocol.NotifyMsg{
		Type:  protocol.TypeNotify,
		Seq:   sess.seq.Add(1),
		Event: string(n.Event),
		Data:  n.Data,
	})
	if err != nil {
		s.log.Printf("session %s: encode %s: %v", sess.id, n.Event, err)
		return
	}
	select {
	case sess.out <- b:
	default:
		s.metrics.NotificationDropped()
	}
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil
	}
	hello, err := protocol.DecodeHello(msg)
	if err != nil {
		s.log.Printf("handshake: %v", err)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad HELLO"), time.Now().Add(time.Second))
		return nil
	}

	sess := &session{id: uuid.NewString(), out: make(chan []byte, s.queue)}
	if len(hello.Notifications) > 0 {
		sess.want = map[string]bool{}
		for _, ev := range hello.Notifications {
			sess.want[ev] = true
		}
	}

	snap := s.game.State()
	stateJSON, err := json.Marshal(snap)
	if err != nil {
		return nil
	}
	cats := s.game.Store.Catalogs()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.id,
		GameID:          snap.GameID,
		Catalogs: protocol.CatalogDigests{
			Resources:  cats.Resources.Digest,
			Eras:       cats.Eras.Digest,
			Migrations: cats.Migrations.Digest,
			Combined:   cats.Digest(),
		},
		State:   stateJSON,
		Intents: protocol.Intents,
	}
	if err := writeJSON(conn, welcome); err != nil {
		return nil
	}
	return sess
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
