// Package ws streams generated maps to renderer clients over websocket.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"terracell.ai/internal/protocol"
	"terracell.ai/internal/sim/regen"
	"terracell.ai/internal/sim/terrain/gen"
	"terracell.ai/internal/sim/tuning"
)

// MapSource is the part of the regeneration controller the stream needs.
type MapSource interface {
	MapID() string
	Current() *gen.Output
	Config() tuning.MapGen
	Subscribe(buf int) (uint64, <-chan regen.Update)
	Unsubscribe(id uint64)
	Trigger() bool
	UpdateConfig(cfg tuning.MapGen) error
}

type Options struct {
	TickRateHz int
	// AllowControl lets sessions that ask for it send REGEN and CONFIG.
	AllowControl bool
	// ControlMinInterval rate-limits REGEN/CONFIG per session.
	ControlMinInterval time.Duration
}

type Server struct {
	src  MapSource
	opts Options
	log  *log.Logger

	upgrader websocket.Upgrader
	schemas  *protocol.Validator

	sessions atomic.Int64
	sent     atomic.Uint64
}

func NewServer(src MapSource, opts Options, logger *log.Logger) (*Server, error) {
	v, err := protocol.DefaultValidator()
	if err != nil {
		return nil, err
	}
	if opts.TickRateHz <= 0 {
		opts.TickRateHz = 10
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		src:     src,
		opts:    opts,
		log:     logger,
		schemas: v,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s, nil
}

// Sessions reports connected clients that finished the handshake.
func (s *Server) Sessions() int64 { return s.sessions.Load() }

// MessagesSent counts MAP and BIOMES messages queued to clients.
func (s *Server) MessagesSent() uint64 { return s.sent.Load() }

type session struct {
	id      string
	hello   protocol.HelloMsg
	control bool
	out     chan []byte

	// Last map on the wire. Written by handshake, then only by the forwarder.
	sentGen    uint64
	sentDigest string

	mu          sync.Mutex
	lastControl time.Time
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Subscribe first so a regeneration racing the handshake is not lost.
		subID, updates := s.src.Subscribe(1)
		defer s.src.Unsubscribe(subID)

		sess := s.handshake(conn)
		if sess == nil {
			return
		}
		s.sessions.Add(1)
		defer s.sessions.Add(-1)
		s.log.Printf("ws: session %s (%s) connected control=%v", sess.id, sess.hello.ClientName, sess.control)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

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

		// Map forwarder.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case u := <-updates:
					s.forward(ctx, sess, u)
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			s.handleInbound(ctx, sess, msg)
		}
		s.log.Printf("ws: session %s closed", sess.id)
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
		reject(conn, protocol.ErrProtoBadRequest, "expected HELLO")
		return nil
	}
	if !protocol.SupportsVersion(base.ProtocolVersion) {
		reject(conn, protocol.ErrProtoVersion, "unsupported protocol_version "+base.ProtocolVersion)
		return nil
	}
	if err := s.schemas.Validate(protocol.TypeHello, msg); err != nil {
		reject(conn, protocol.ErrProtoBadRequest, err.Error())
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		reject(conn, protocol.ErrProtoBadRequest, err.Error())
		return nil
	}

	sess := &session{
		id:      uuid.NewString(),
		hello:   hello,
		control: s.opts.AllowControl && hello.Capabilities.Control,
		out:     make(chan []byte, 16),
	}

	cur := s.src.Current()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.id,
		MapID:           s.src.MapID(),
		Generation:      cur.Generation,
		TickRateHz:      s.opts.TickRateHz,
		Control:         sess.control,
		MapGen:          protocol.FromMapGen(s.src.Config()),
		Biomes:          protocol.BiomeRefs(cur.Classifier),
	}
	if err := writeJSON(conn, welcome); err != nil {
		return nil
	}
	// Current map follows WELCOME.
	if err := writeJSON(conn, protocol.NewMapMsg(s.src.MapID(), cur, hello.Capabilities.CompactElevation)); err != nil {
		return nil
	}
	s.sent.Add(1)
	sess.sentGen, sess.sentDigest = cur.Generation, cur.Digest
	return sess
}

func (s *Server) forward(ctx context.Context, sess *session, u regen.Update) {
	if sess.stale(u) {
		return
	}
	var msg any
	switch {
	case u.Kind == regen.UpdateBiomes && sess.hello.Capabilities.RecolorUpdates:
		msg = protocol.NewBiomesMsg(s.src.MapID(), u.Output)
	default:
		msg = protocol.NewMapMsg(s.src.MapID(), u.Output, sess.hello.Capabilities.CompactElevation)
	}
	if s.enqueue(ctx, sess, msg) {
		s.sent.Add(1)
		sess.sentGen, sess.sentDigest = u.Output.Generation, u.Output.Digest
	}
}

// stale reports whether u is older than or equal to the map the client already has.
// A recolour keeps its generation, so BIOMES at the same generation pass when the digest moved.
func (sess *session) stale(u regen.Update) bool {
	g := u.Output.Generation
	switch {
	case g < sess.sentGen:
		return true
	case g > sess.sentGen:
		return false
	case u.Kind == regen.UpdateMap:
		return true
	default:
		return u.Output.Digest == sess.sentDigest
	}
}

func (s *Server) handleInbound(ctx context.Context, sess *session, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		s.enqueue(ctx, sess, protocol.NewError(protocol.ErrProtoBadRequest, "malformed json"))
		return
	}
	switch base.Type {
	case protocol.TypeRegen, protocol.TypeConfig:
	default:
		s.enqueue(ctx, sess, protocol.NewError(protocol.ErrProtoBadRequest, "unexpected message type "+base.Type))
		return
	}
	if err := s.schemas.Validate(base.Type, msg); err != nil {
		s.enqueue(ctx, sess, protocol.NewAck(base.Type, "", false, protocol.ErrProtoBadRequest, err.Error()))
		return
	}
	if !sess.control {
		s.enqueue(ctx, sess, protocol.NewAck(base.Type, "", false, protocol.ErrNotAllowed, "control not enabled for this session"))
		return
	}
	if !sess.allow(time.Now(), s.opts.ControlMinInterval) {
		s.enqueue(ctx, sess, protocol.NewAck(base.Type, "", false, protocol.ErrRateLimit, "too many control messages"))
		return
	}

	switch base.Type {
	case protocol.TypeRegen:
		var m protocol.RegenMsg
		_ = json.Unmarshal(msg, &m)
		queued := s.src.Trigger()
		note := ""
		if !queued {
			note = "coalesced with pending regeneration"
		}
		s.enqueue(ctx, sess, protocol.NewAck(protocol.TypeRegen, m.RequestID, true, "", note))

	case protocol.TypeConfig:
		var m protocol.ConfigMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			s.enqueue(ctx, sess, protocol.NewAck(protocol.TypeConfig, "", false, protocol.ErrProtoBadRequest, err.Error()))
			return
		}
		cfg := m.MapGen.Apply(s.src.Config())
		if err := s.src.UpdateConfig(cfg); err != nil {
			s.enqueue(ctx, sess, protocol.NewAck(protocol.TypeConfig, m.RequestID, false, protocol.ErrBadConfig, err.Error()))
			return
		}
		if m.Regenerate {
			s.src.Trigger()
		}
		s.log.Printf("ws: session %s updated config seed=%#x grid=%d regen=%v", sess.id, cfg.Seed, cfg.GridSize, m.Regenerate)
		s.enqueue(ctx, sess, protocol.NewAck(protocol.TypeConfig, m.RequestID, true, "", ""))
	}
}

func (sess *session) allow(now time.Time, minInterval time.Duration) bool {
	if minInterval <= 0 {
		return true
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !sess.lastControl.IsZero() && now.Sub(sess.lastControl) < minInterval {
		return false
	}
	sess.lastControl = now
	return true
}

func (s *Server) enqueue(ctx context.Context, sess *session, v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Printf("ws: marshal: %v", err)
		return false
	}
	select {
	case sess.out <- b:
		return true
	case <-ctx.Done():
		return false
	}
}

func reject(conn *websocket.Conn, code, message string) {
	_ = writeJSON(conn, protocol.NewError(code, message))
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	}
	return nil
}
