package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	persistlog "terracell.ai/internal/persistence/log"
	"terracell.ai/internal/persistence/snapshot"
	"terracell.ai/internal/sim/regen"
	"terracell.ai/internal/sim/tuning"
	"terracell.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		mapID      = flag.String("map", "map_1", "map id")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (generations + snapshot/seed metadata)")

		seed = flag.String("seed", "", "override mapgen seed (decimal or 0x hex)")
		grid = flag.Int("grid", -1, "override mapgen grid size (-1 keeps tuning)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")

		allowControl    = flag.Bool("allow_control", false, "accept REGEN/CONFIG from websocket clients that request control")
		controlInterval = flag.Duration("control_interval", 500*time.Millisecond, "minimum interval between control messages per session")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	mapDir := filepath.Join(*dataDir, "maps", *mapID)
	_ = os.MkdirAll(mapDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(mapDir)
	}

	// Required for a fresh map; a snapshot carries its own mapgen config.
	tune, err := tuning.Load(tp)
	if err != nil {
		if snapshotToLoad == "" || !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if s := strings.TrimSpace(*seed); s != "" {
		v, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			logger.Fatalf("bad -seed %q: %v", s, err)
		}
		tune.MapGen.Seed = v
	}
	if *grid >= 0 {
		tune.MapGen.GridSize = *grid
	}
	if err := tune.Validate(); err != nil {
		logger.Fatalf("tuning: %v", err)
	}

	idx, err := openRuntimeIndex(mapDir, *mapID, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index backend: upsert tuning: %v", err)
		}
	}

	ctl, err := regen.New(regen.Config{
		MapID:           *mapID,
		TickRateHz:      tune.TickRateHz,
		MapGen:          tune.MapGen,
		SnapshotOnRegen: tune.SnapshotOnRegen,
	}, logger)
	if err != nil {
		logger.Fatalf("controller: %v", err)
	}

	restored := false
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.MapID != "" && snap.Header.MapID != *mapID {
			logger.Fatalf("snapshot map id mismatch: flag=%s snap=%s", *mapID, snap.Header.MapID)
		}
		out, err := regen.ImportSnapshot(snap)
		if err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		ctl.Restore(out)
		restored = true
		logger.Printf("resumed from snapshot=%s generation=%d cells=%d", filepath.Base(snapshotToLoad), out.Generation, len(out.Cells))
	}

	genLog := persistlog.NewGenerationLogger(mapDir)
	auditLog := persistlog.NewAuditLogger(mapDir)
	defer genLog.Close()
	defer auditLog.Close()
	loggers := multiGenerationLogger{genLog}
	if idx != nil {
		loggers = append(loggers, idx)
	}
	ctl.SetGenerationLogger(loggers)

	ctx, cancel := signalContext()
	defer cancel()

	wsSrv, err := ws.NewServer(ctl, ws.Options{
		TickRateHz:         tune.TickRateHz,
		AllowControl:       *allowControl,
		ControlMinInterval: *controlInterval,
	}, logger)
	if err != nil {
		logger.Fatalf("ws: %v", err)
	}

	a := &app{
		mapID:  *mapID,
		mapDir: mapDir,
		ctl:    ctl,
		ws:     wsSrv,
		idx:    idx,
		audit:  auditLog,
		logger: logger,
	}

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	ctl.SetSnapshotSink(snapCh)
	go a.runSnapshotWriter(ctx, snapCh)

	go func() {
		if err := ctl.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("controller stopped: %v", err)
		}
	}()
	if !restored {
		ctl.Trigger()
	}

	mux := a.routes(
		envBool("TC_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()),
		envBool("TC_ENABLE_PPROF_HTTP", false),
	)

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

	logger.Printf("listening on %s map=%s seed=%#x grid=%d", *addr, *mapID, ctl.Config().Seed, ctl.Config().GridSize)
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

// latestSnapshot returns the highest-generation <n>.snap.zst under mapDir/snapshots.
func latestSnapshot(mapDir string) string {
	dir := filepath.Join(mapDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestGen uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || n > bestGen {
			bestGen = n
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
