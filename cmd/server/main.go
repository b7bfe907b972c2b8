package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
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

	"fluxgrid.ai/internal/protocol"
	"fluxgrid.ai/internal/sim/catalogs"
	"fluxgrid.ai/internal/sim/grid"
	"fluxgrid.ai/internal/sim/multigrid"
	"fluxgrid.ai/internal/sim/tuning"
	"fluxgrid.ai/internal/transport/observer"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		gridID     = flag.String("grid", "grid_1", "grid id when no grids.yaml is given")
		gridsPath  = flag.String("grids", "", "path to grids.yaml (optional; hosts several grids)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		rootName   = flag.String("root", "op_root", "root authority principal")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index (events/audits/snapshots)")

		snapshotEvery = flag.Duration("snapshot_every", time.Minute, "periodic snapshot interval (0 to disable)")
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
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Default()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}
	if tune.ProtocolVersion != protocol.Version {
		logger.Fatalf("tuning protocol_version %q does not match binary %q", tune.ProtocolVersion, protocol.Version)
	}

	gcfg, err := multigrid.Load(*gridsPath, *gridID)
	if err != nil {
		logger.Fatalf("load grids config: %v", err)
	}
	mgr, err := multigrid.NewManager(gcfg, cats, tune, multigrid.Options{
		DataDir:   *dataDir,
		ConfigDir: *configDir,
		Root:      grid.Principal(*rootName),
		DisableDB: *disableDB,
	})
	if err != nil {
		logger.Fatalf("start grids: %v", err)
	}
	defer mgr.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if *snapshotEvery > 0 {
		go func() {
			t := time.NewTicker(*snapshotEvery)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					for _, id := range mgr.GridIDs() {
						if in := mgr.Instance(id); in.Index != nil {
							in.Index.RecordSnapshot(in.Grid.Snapshot())
						}
					}
				}
			}
		}()
	}

	api := newAPIServer(mgr, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP fluxgrid_journal_seq Newest journal sequence number.\n")
		fmt.Fprintf(rw, "# TYPE fluxgrid_journal_seq gauge\n")
		fmt.Fprintf(rw, "# HELP fluxgrid_sources Anchored orchestrator count.\n")
		fmt.Fprintf(rw, "# TYPE fluxgrid_sources gauge\n")
		fmt.Fprintf(rw, "# HELP fluxgrid_assemblies Anchored consumer count.\n")
		fmt.Fprintf(rw, "# TYPE fluxgrid_assemblies gauge\n")
		fmt.Fprintf(rw, "# HELP fluxgrid_production_units Current production across all sources.\n")
		fmt.Fprintf(rw, "# TYPE fluxgrid_production_units gauge\n")
		fmt.Fprintf(rw, "# HELP fluxgrid_reserved_units Reserved production across all sources.\n")
		fmt.Fprintf(rw, "# TYPE fluxgrid_reserved_units gauge\n")

		for _, id := range mgr.GridIDs() {
			st := mgr.Instance(id).Grid.Snapshot()
			var reserved, production int64
			for _, s := range st.Sources {
				reserved += s.ReservedTotal
				production += s.CurrentProduction
			}
			fmt.Fprintf(rw, "fluxgrid_journal_seq{grid=%q} %d\n", st.ID, st.Seq)
			fmt.Fprintf(rw, "fluxgrid_sources{grid=%q} %d\n", st.ID, len(st.Sources))
			fmt.Fprintf(rw, "fluxgrid_assemblies{grid=%q} %d\n", st.ID, len(st.Assemblies))
			fmt.Fprintf(rw, "fluxgrid_production_units{grid=%q} %d\n", st.ID, production)
			fmt.Fprintf(rw, "fluxgrid_reserved_units{grid=%q} %d\n", st.ID, reserved)
		}
	})

	enableAdminHTTP := envBool("FG_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("FG_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints; ?grid= selects an instance, the
		// default grid otherwise.
		mux.HandleFunc("/admin/v1/grids", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(map[string]any{
				"default": mgr.DefaultID(),
				"grids":   mgr.GridIDs(),
			})
		})
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			in, ok := adminInstance(mgr, rw, r)
			if !ok {
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(in.Grid.Snapshot())
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			in, ok := adminInstance(mgr, rw, r)
			if !ok {
				return
			}
			st := in.Grid.Snapshot()
			if in.Index != nil {
				in.Index.RecordSnapshot(st)
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "grid": st.ID, "seq": st.Seq})
		})
		mux.HandleFunc("/admin/v1/op", api.Handler())

		obs := make(map[string]*observer.Server, len(mgr.GridIDs()))
		for _, id := range mgr.GridIDs() {
			obs[id] = observer.NewServer(mgr.Instance(id).Grid, tune.Feed, cats.CombinedDigest(), logger)
		}
		pick := func(r *http.Request) *observer.Server {
			id := r.URL.Query().Get("grid")
			if id == "" {
				id = mgr.DefaultID()
			}
			return obs[id]
		}
		mux.HandleFunc("/admin/v1/observer/bootstrap", func(rw http.ResponseWriter, r *http.Request) {
			srv := pick(r)
			if srv == nil {
				http.Error(rw, "unknown grid", http.StatusNotFound)
				return
			}
			srv.BootstrapHandler()(rw, r)
		})
		mux.HandleFunc("/admin/v1/observer/ws", func(rw http.ResponseWriter, r *http.Request) {
			srv := pick(r)
			if srv == nil {
				http.Error(rw, "unknown grid", http.StatusNotFound)
				return
			}
			srv.WSHandler()(rw, r)
		})
	} else {
		logger.Printf("admin endpoints disabled (FG_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (FG_ENABLE_PPROF_HTTP=false)")
	}

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

	logger.Printf("grids=%s default=%s listening on %s", strings.Join(mgr.GridIDs(), ","), mgr.DefaultID(), *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func adminInstance(mgr *multigrid.Manager, rw http.ResponseWriter, r *http.Request) (*multigrid.Instance, bool) {
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return nil, false
	}
	in := mgr.Instance(r.URL.Query().Get("grid"))
	if in == nil {
		http.Error(rw, "unknown grid", http.StatusNotFound)
		return nil, false
	}
	return in, true
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

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
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
