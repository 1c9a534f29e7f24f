// Package debugws streams live render statistics to local inspector clients
// over websocket and accepts a few debug commands back.
package debugws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"voxelview.ai/internal/protocol"
)

const (
	clientQueue  = 32
	commandQueue = 16
	maxEvery     = 600
)

type Server struct {
	log       *log.Logger
	sessionID string
	params    protocol.WorldParams

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu      sync.Mutex
	clients map[string]*client

	commands chan protocol.CommandMsg

	published atomic.Uint64
	dropped   atomic.Uint64
}

type client struct {
	id    string
	every int
	out   chan []byte
}

type Stats struct {
	Clients   int
	Published uint64
	Dropped   uint64
}

func NewServer(sessionID string, params protocol.WorldParams, logger *log.Logger) *Server {
	return &Server{
		log:       logger,
		sessionID: sessionID,
		params:    params,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only
		},
		clients:  map[string]*client{},
		commands: make(chan protocol.CommandMsg, commandQueue),
	}
}

// Commands delivers validated inspector commands to the frame loop.
func (s *Server) Commands() <-chan protocol.CommandMsg { return s.commands }

func (s *Server) Stats() Stats {
	s.mu.Lock()
	n := len(s.clients)
	s.mu.Unlock()
	return Stats{Clients: n, Published: s.published.Load(), Dropped: s.dropped.Load()}
}

// Publish fans a frame out to subscribed clients. Slow clients lose frames.
func (s *Server) Publish(m protocol.StatsMsg) {
	m.Type = protocol.TypeStats
	m.ProtocolVersion = protocol.Version
	m.SessionID = s.sessionID
	s.broadcast(m, func(c *client) bool {
		return c.every <= 1 || m.Frame%uint64(c.every) == 0
	})
}

// PublishError reports a failure from the frame loop, such as a failed
// command, to every client.
func (s *Server) PublishError(e protocol.ErrorMsg) {
	e.Type = protocol.TypeError
	e.ProtocolVersion = protocol.Version
	s.broadcast(e, nil)
}

func (s *Server) broadcast(v any, want func(*client) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.clients) == 0 {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		s.printf("debugws: marshal: %v", err)
		return
	}
	for _, c := range s.clients {
		if want != nil && !want(c) {
			continue
		}
		select {
		case c.out <- b:
			s.published.Add(1)
		default:
			s.dropped.Add(1)
		}
	}
}

func (s *Server) printf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send HELLO first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var hello protocol.HelloMsg
		if err := json.Unmarshal(msg, &hello); err != nil || hello.Type != protocol.TypeHello {
			closeWith(conn, websocket.ClosePolicyViolation, "expected HELLO")
			return
		}
		if hello.ProtocolVersion != protocol.Version {
			writeJSON(conn, protocol.NewError(protocol.ErrProtoVersion, "unsupported protocol_version "+hello.ProtocolVersion))
			closeWith(conn, websocket.ClosePolicyViolation, "bad version")
			return
		}

		welcome := protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       s.sessionID,
			WorldParams:     s.params,
		}
		if err := writeJSON(conn, welcome); err != nil {
			return
		}

		c := &client{
			id:    fmt.Sprintf("I%d", s.nextID.Add(1)),
			every: normalizeEvery(hello.EveryFrames),
			out:   make(chan []byte, clientQueue),
		}
		s.mu.Lock()
		s.clients[c.id] = c
		s.mu.Unlock()
		s.printf("debugws: %s connected (%s)", c.id, hello.ClientName)
		defer func() {
			s.mu.Lock()
			delete(s.clients, c.id)
			s.mu.Unlock()
			s.printf("debugws: %s disconnected", c.id)
		}()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-c.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: commands.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if e := s.handleCommand(msg); e != nil {
				b, _ := json.Marshal(e)
				select {
				case c.out <- b:
				default:
				}
			}
		}

		cancel()
		closeWith(conn, websocket.CloseNormalClosure, "bye")

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// handleCommand validates and queues one inbound message. A non-nil result
// is sent back to the client.
func (s *Server) handleCommand(msg []byte) *protocol.ErrorMsg {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		e := protocol.NewError(protocol.ErrProtoBadRequest, "bad json")
		return &e
	}
	if base.Type != protocol.TypeCommand {
		e := protocol.NewError(protocol.ErrProtoBadRequest, "unexpected message type "+base.Type)
		return &e
	}
	var cmd protocol.CommandMsg
	if err := json.Unmarshal(msg, &cmd); err != nil {
		e := protocol.NewError(protocol.ErrBadRequest, "bad command")
		return &e
	}
	switch cmd.Command {
	case protocol.CommandCycleDebug, protocol.CommandRebuildAll:
	case protocol.CommandDebugLevel:
		if cmd.Level < 0 || cmd.Level > 2 {
			e := protocol.NewError(protocol.ErrBadRequest, fmt.Sprintf("debug level %d out of range", cmd.Level))
			return &e
		}
	default:
		e := protocol.NewError(protocol.ErrUnknownCommand, "unknown command "+cmd.Command)
		return &e
	}
	select {
	case s.commands <- cmd:
		return nil
	default:
		e := protocol.NewError(protocol.ErrBusy, "command queue full")
		return &e
	}
}

func normalizeEvery(n int) int {
	if n <= 0 {
		return 1
	}
	if n > maxEvery {
		return maxEvery
	}
	return n
}

func writeJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(v)
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
