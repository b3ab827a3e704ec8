package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net"
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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eraforge.game/internal/metrics"
	"eraforge.game/internal/persistence/journal"
	"eraforge.game/internal/persistence/savestore"
	"eraforge.game/internal/sim/catalogs"
	"eraforge.game/internal/sim/game"
	"eraforge.game/internal/sim/production"
	"eraforge.game/internal/sim/tuning"
	"eraforge.game/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		backend    = flag.String("backend", "sqlite", "save backend: sqlite, file or memory")
		speed      = flag.Float64("speed", 1, "worker speed multiplier")
		seed       = flag.Uint64("seed", 0, "rng seed (0 = time based)")
		noJournal  = flag.Bool("disable_journal", false, "disable the milestone journal")
		intentRate = flag.Float64("intent_rate", 20, "max intents per second per connection")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}

	_ = os.MkdirAll(*dataDir, 0o755)
	saves, err := savestore.Open(*backend, *dataDir)
	if err != nil {
		logger.Fatalf("save backend: %v", err)
	}
	defer saves.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New()
	if err := m.Register(reg); err != nil {
		logger.Fatalf("metrics: %v", err)
	}

	s := *seed
	if s == 0 {
		s = uint64(time.Now().UnixNano())
	}
	g, err := game.New(game.Config{
		Catalogs:    cats,
		Tuning:      tune,
		Persistence: saves,
		Logger:      log.New(os.Stdout, "[game] ", log.LstdFlags|log.Lmicroseconds),
		Metrics:     m,
		RNG:         production.NewRNG(s),
		Speed:       *speed,
	})
	if err != nil {
		logger.Fatalf("game: %v", err)
	}

	if !*noJournal {
		j := journal.Open(filepath.Join(*dataDir, "journal"), logger)
		j.Attach(g.Store)
		defer func() {
			if err := j.Close(); err != nil {
				logger.Printf("journal close: %v", err)
			}
		}()
	}

	switch err := g.Store.Load(); {
	case err == nil:
		st := g.State()
		logger.Printf("resumed game %s in %s", st.GameID, st.Era)
	case errors.Is(err, savestore.ErrNotFound):
		logger.Printf("no save in slot %q; starting fresh", tune.SaveSlot)
	default:
		logger.Printf("load failed, starting fresh: %v", err)
	}
	if started := g.Resume(); len(started) > 0 {
		logger.Printf("workers running: %s", strings.Join(started, ","))
	}

	ctx, cancel := signalContext()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := g.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("game stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	if envBool("EF_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				State   any `json:"state"`
				Gate    any `json:"gate"`
				Feeding any `json:"feeding"`
				Workers any `json:"running_workers"`
			}{
				State:   g.State(),
				Gate:    g.GateStatus(),
				Feeding: g.Feeding(),
				Workers: g.Scheduler.Running(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/save", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			out := g.SaveGame()
			rw.Header().Set("Content-Type", "application/json")
			if !out.OK {
				rw.WriteHeader(http.StatusServiceUnavailable)
			}
			_ = json.NewEncoder(rw).Encode(out)
		})
	} else {
		logger.Printf("admin endpoints disabled (EF_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("EF_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(ws.Config{
		Game:       g,
		Logger:     log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds),
		Metrics:    m,
		IntentRate: rateLimit(*intentRate),
	}).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Printf("ListenAndServe: %v", err)
		cancel()
	}
	<-done
	g.Close()
	logger.Printf("shutdown complete")
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

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
