package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"ropesim/internal/metrics"
	"ropesim/internal/protocol"
	"ropesim/internal/runner"
	"ropesim/internal/sim/rope"
	"ropesim/internal/sim/tuning"
)

var (
	errExpectedHello = errors.New("expected HELLO")
	errBadVersion    = errors.New("bad protocol_version")
)

// Server streams a simulation over a websocket. The client sends one HELLO
// carrying a command document; the server answers with FRAME messages
// followed by a RESULT (or an ERROR) and closes the connection.
type Server struct {
	runner  *runner.Runner
	metrics *metrics.Metrics
	log     *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(r *runner.Runner, m *metrics.Metrics, logger *log.Logger) *Server {
	return &Server{
		runner:  r,
		metrics: m,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		s.metrics.StreamOpened()
		defer s.metrics.StreamClosed()

		tune := s.runner.Tuning()
		hello, cmds, err := s.handshake(conn, tune.Server.MaxBodyBytes)
		if err != nil {
			_ = writeJSON(conn, protocol.NewErrorMsg(err))
			closeWith(conn, websocket.ClosePolicyViolation, protocol.CodeOf(err))
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		maxQ := tune.Server.MaxQueue
		if maxQ <= 0 {
			maxQ = 8
		}
		out := make(chan []byte, maxQ)
		done := make(chan struct{})

		// Writer goroutine.
		go func() {
			defer close(done)
			for b := range out {
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					// Drain so the producer never blocks on a dead client.
					for range out {
					}
					return
				}
			}
		}()

		// Reader goroutine: only watches for the client going away.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					cancel()
					return
				}
			}
		}()

		send := func(v any) error {
			b, err := json.Marshal(v)
			if err != nil {
				return err
			}
			select {
			case out <- b:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		every := uint64(hello.FrameEvery)
		if every == 0 {
			every = uint64(tune.Server.FrameEvery)
		}
		if every == 0 {
			every = 1
		}

		req := runner.Request{
			Source:   "ws",
			Commands: cmds,
			Parts:    tuning.PartsFor(hello.Followers),
			OnStep: func(p tuning.Part, st rope.Step) error {
				if st.Index%every != 0 {
					return nil
				}
				return send(protocol.FrameMsg{
					Type:            protocol.TypeFrame,
					ProtocolVersion: protocol.Version,
					Part:            p.Name,
					Step:            st.Index,
					Command:         st.Command,
					Knots:           st.State.Knots(),
					Digest:          rope.StateDigest(st.Index, st.State),
				})
			},
		}
		res, err := s.runner.Run(ctx, req)
		s.metrics.ObserveRun("ws", res, err)
		if err != nil {
			if ctx.Err() == nil && s.log != nil {
				s.log.Printf("ws run failed: %v", err)
			}
			_ = send(protocol.NewErrorMsg(err))
		} else {
			_ = send(ResultMsg(res))
		}
		close(out)
		<-done
		closeWith(conn, websocket.CloseNormalClosure, "")
	}
}

func (s *Server) handshake(conn *websocket.Conn, maxBytes int64) (protocol.CommandDoc, []rope.Command, error) {
	if maxBytes > 0 {
		conn.SetReadLimit(maxBytes)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return protocol.CommandDoc{}, nil, &protocol.ParseError{Code: protocol.ErrProtoBadRequest, Err: err}
	}
	_ = conn.SetReadDeadline(time.Time{})

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		return protocol.CommandDoc{}, nil, &protocol.ParseError{Code: protocol.ErrProtoBadRequest, Err: errExpectedHello}
	}
	if base.ProtocolVersion != "" && base.ProtocolVersion != protocol.Version {
		return protocol.CommandDoc{}, nil, &protocol.ParseError{Code: protocol.ErrProtoBadRequest, Err: errBadVersion}
	}
	hello, err := protocol.DecodeCommandDoc(msg)
	if err != nil {
		return hello, nil, err
	}
	cmds, err := hello.RopeCommands()
	if err != nil {
		return hello, nil, err
	}
	return hello, cmds, nil
}

// ResultMsg converts a finished run to its wire form.
func ResultMsg(res runner.Result) protocol.ResultMsg {
	msg := protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		RunID:           res.RunID,
		Parts:           make([]protocol.PartResult, 0, len(res.Report.Parts)),
	}
	for _, p := range res.Report.Parts {
		msg.Parts = append(msg.Parts, protocol.PartResult{
			Name:      p.Part.Name,
			Followers: p.Part.Followers,
			Steps:     p.Steps,
			Distinct:  p.Distinct,
			Tail:      p.Final.Tail(),
			Digest:    p.Digest,
		})
	}
	return msg
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}
