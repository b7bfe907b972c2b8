package observer

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"fluxgrid.ai/internal/protocol"
	"fluxgrid.ai/internal/sim/grid"
	"fluxgrid.ai/internal/sim/tuning"
)

// Server serves the read-only event feed of one grid: an HTTP bootstrap
// endpoint and a websocket that replays the journal from a cursor and
// then streams live events. Observers never mutate grid state.
type Server struct {
	grid           *grid.Grid
	limits         tuning.FeedLimits
	catalogsDigest string
	log            *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

func NewServer(g *grid.Grid, limits tuning.FeedLimits, catalogsDigest string, logger *log.Logger) *Server {
	if limits.SubscriberBuffer <= 0 {
		limits.SubscriberBuffer = 256
	}
	if limits.BatchMax <= 0 {
		limits.BatchMax = 500
	}
	if limits.WriteTimeoutMs <= 0 {
		limits.WriteTimeoutMs = 5000
	}
	return &Server{
		grid:           g,
		limits:         limits,
		catalogsDigest: catalogsDigest,
		log:            logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) bootstrapMsg() protocol.BootstrapMsg {
	return protocol.BootstrapMsg{
		Type:            protocol.TypeBootstrap,
		ProtocolVersion: protocol.Version,
		GridID:          s.grid.ID(),
		Seq:             s.grid.CurrentSeq(),
		CatalogsDigest:  s.catalogsDigest,
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(s.bootstrapMsg())
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

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		if base.Type != protocol.TypeSubscribe || base.ProtocolVersion != protocol.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}
		var sub protocol.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		s.normalizeSubscribe(&sub)

		sid := s.nextID.Add(1)
		writeTimeout := time.Duration(s.limits.WriteTimeoutMs) * time.Millisecond

		if err := s.writeJSON(conn, writeTimeout, s.bootstrapMsg()); err != nil {
			return
		}

		// Register for live events before replaying the backlog so no
		// event falls between the two.
		live, cancel := s.grid.Subscribe(s.limits.SubscriberBuffer)
		defer cancel()

		cursor := sub.Cursor
		for {
			items, next := s.grid.EventsSince(cursor, sub.BatchMax)
			if len(items) == 0 {
				break
			}
			cursor = next
			if err := s.writeJSON(conn, writeTimeout, protocol.EventBatchMsg{
				Type:            protocol.TypeEventBatch,
				ProtocolVersion: protocol.Version,
				Events:          items,
				NextCursor:      next,
				GridID:          s.grid.ID(),
			}); err != nil {
				return
			}
		}

		// Reader goroutine: the feed is write-only after the handshake, so
		// the only reads we expect are pings and the close frame.
		readErr := make(chan error, 1)
		go func() {
			for {
				_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
				if _, _, err := conn.ReadMessage(); err != nil {
					readErr <- err
					return
				}
			}
		}()

		if s.log != nil {
			s.log.Printf("[observer] session %d subscribed grid=%s cursor=%d", sid, s.grid.ID(), cursor)
		}

		for {
			select {
			case err := <-readErr:
				_ = err
				return
			case e, ok := <-live:
				if !ok {
					return
				}
				seq := eventSeq(e)
				if seq <= cursor {
					// Already delivered by the backlog replay.
					continue
				}
				cursor = seq
				if err := s.writeJSON(conn, writeTimeout, protocol.EventBatchMsg{
					Type:            protocol.TypeEventBatch,
					ProtocolVersion: protocol.Version,
					Events:          []protocol.EventBatchItem{{Cursor: seq, Event: e}},
					NextCursor:      seq,
					GridID:          s.grid.ID(),
				}); err != nil {
					return
				}
			}
		}
	}
}

func (s *Server) writeJSON(conn *websocket.Conn, timeout time.Duration, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (s *Server) normalizeSubscribe(sub *protocol.SubscribeMsg) {
	if sub.BatchMax <= 0 {
		sub.BatchMax = s.limits.BatchMax
	}
	if s.limits.BatchMax > 0 && sub.BatchMax > s.limits.BatchMax {
		sub.BatchMax = s.limits.BatchMax
	}
}

func eventSeq(e protocol.Event) uint64 {
	switch v := e["seq"].(type) {
	case uint64:
		return v
	case int64:
		return uint64(v)
	case float64:
		return uint64(v)
	}
	return 0
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
