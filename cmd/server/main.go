package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"ropesim/internal/metrics"
	"ropesim/internal/persistence/indexdb"
	"ropesim/internal/runner"
	"ropesim/internal/sim/tuning"
	"ropesim/internal/transport/httpapi"
	"ropesim/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		dataDir    = flag.String("data", "./data", "runtime data directory (empty disables snapshots and step logs)")
		dbPath     = flag.String("db", "", "sqlite run index path (default: <data>/index/runs.sqlite)")
		disableDB  = flag.Bool("disable_db", false, "disable the run index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
	}

	var idx *indexdb.SQLiteIndex
	if !*disableDB && tune.Persistence.Index {
		p := strings.TrimSpace(*dbPath)
		if p == "" && *dataDir != "" {
			p = filepath.Join(*dataDir, "index", "runs.sqlite")
		}
		if p != "" {
			idx, err = indexdb.OpenSQLite(p)
			if err != nil {
				logger.Fatalf("open index: %v", err)
			}
			defer idx.Close()
			logger.Printf("run index: %s", p)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	run := runner.New(runner.Config{
		DataDir: *dataDir,
		Tuning:  tune,
		Index:   idx,
		Logger:  logger,
	})
	api := httpapi.NewHandler(httpapi.Config{
		Runner:   run,
		Index:    idx,
		Metrics:  m,
		Gatherer: reg,
		Stream:   ws.NewServer(run, m, logger),
		Logger:   logger,
	})

	mux := http.NewServeMux()
	mux.Handle("/", api)
	if envBool("ROPESIM_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (ROPESIM_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signalContext()
	defer cancel()
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
