// Package httpapi serves simulation runs, the run index and metrics over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ropesim/internal/metrics"
	"ropesim/internal/persistence/indexdb"
	"ropesim/internal/protocol"
	"ropesim/internal/runner"
	"ropesim/internal/sim/geom"
	"ropesim/internal/sim/rope"
	"ropesim/internal/sim/tuning"
	"ropesim/internal/transport/ws"
)

var errIndexDisabled = errors.New("run index disabled")

type Config struct {
	Runner *runner.Runner
	// Index backs the /v1/runs routes. Nil answers them with 404.
	Index    *indexdb.SQLiteIndex
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	// Stream is mounted on /v1/ws when set.
	Stream *ws.Server
	Logger *log.Logger
}

type Server struct {
	cfg Config
}

// NewHandler builds the router.
func NewHandler(cfg Config) http.Handler {
	s := &Server{cfg: cfg}
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok\n"))
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/simulate", s.Simulate)
		r.Get("/runs", s.ListRuns)
		r.Get("/runs/{runID}/parts", s.ListParts)
		r.Get("/runs/{runID}/parts/{part}/trail", s.Trail)
		if cfg.Stream != nil {
			r.Get("/ws", cfg.Stream.Handler())
		}
	})
	return r
}

// Simulate handles POST /v1/simulate. A JSON body is a command document; any
// other body is the plain "<letter> <n>" line format, with parts taken from
// the followers query parameter (e.g. ?followers=1,9).
func (s *Server) Simulate(w http.ResponseWriter, r *http.Request) {
	tune := s.cfg.Runner.Tuning()
	if tune.Server.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, tune.Server.MaxBodyBytes)
	}

	var (
		cmds      []rope.Command
		followers []int
		err       error
	)
	if isJSON(r.Header.Get("Content-Type")) {
		cmds, followers, err = decodeJSONBody(r.Body)
	} else {
		cmds, err = protocol.ParseCommands(r.Body)
		if err == nil {
			followers, err = parseFollowers(r.URL.Query().Get("followers"))
		}
	}
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			err = &protocol.ParseError{Code: protocol.ErrLimit, Err: fmt.Errorf("body exceeds %d bytes", mbe.Limit)}
		}
		s.writeError(w, err)
		return
	}

	res, err := s.cfg.Runner.Run(r.Context(), runner.Request{
		Source:   "http",
		Commands: cmds,
		Parts:    tuning.PartsFor(followers),
	})
	s.cfg.Metrics.ObserveRun("http", res, err)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ws.ResultMsg(res))
}

func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Index == nil {
		s.writeStatus(w, http.StatusNotFound, errIndexDisabled)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, &protocol.ParseError{Code: protocol.ErrBadRequest, Err: fmt.Errorf("bad limit %q", v)})
			return
		}
		limit = n
	}
	runs, err := s.cfg.Index.Runs(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if runs == nil {
		runs = []indexdb.RunRow{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) ListParts(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Index == nil {
		s.writeStatus(w, http.StatusNotFound, errIndexDisabled)
		return
	}
	runID := chi.URLParam(r, "runID")
	parts, err := s.cfg.Index.Parts(r.Context(), runID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(parts) == 0 {
		s.writeStatus(w, http.StatusNotFound, fmt.Errorf("no run %q", runID))
		return
	}
	writeJSON(w, http.StatusOK, parts)
}

// Trail renders the visited tail cells of one part as a text grid.
func (s *Server) Trail(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Index == nil {
		s.writeStatus(w, http.StatusNotFound, errIndexDisabled)
		return
	}
	runID, part := chi.URLParam(r, "runID"), chi.URLParam(r, "part")
	visited, err := s.cfg.Index.Visited(r.Context(), runID, part)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(visited) == 0 {
		s.writeStatus(w, http.StatusNotFound, fmt.Errorf("no part %q in run %q", part, runID))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, rope.RenderTrail(visited, geom.Origin)+"\n")
}

func decodeJSONBody(body io.Reader) ([]rope.Command, []int, error) {
	b, err := io.ReadAll(body)
	if err != nil {
		return nil, nil, err
	}
	doc, err := protocol.DecodeCommandDoc(b)
	if err != nil {
		return nil, nil, err
	}
	cmds, err := doc.RopeCommands()
	if err != nil {
		return nil, nil, err
	}
	return cmds, doc.Followers, nil
}

func parseFollowers(v string) ([]int, error) {
	if v == "" {
		return nil, nil
	}
	fields := strings.Split(v, ",")
	if len(fields) > protocol.MaxParts {
		return nil, &protocol.ParseError{Code: protocol.ErrBadRequest, Err: fmt.Errorf("followers: at most %d parts, got %d", protocol.MaxParts, len(fields))}
	}
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, &protocol.ParseError{Code: protocol.ErrBadRequest, Err: fmt.Errorf("bad followers %q", v)}
		}
		out = append(out, n)
	}
	if err := protocol.CheckFollowers(out); err != nil {
		return nil, err
	}
	return out, nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if protocol.IsClientError(protocol.CodeOf(err)) {
		status = http.StatusBadRequest
	} else if s.cfg.Logger != nil {
		s.cfg.Logger.Printf("http: %v", err)
	}
	s.writeStatus(w, status, err)
}

func (s *Server) writeStatus(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, protocol.NewErrorMsg(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
