package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"terracell.ai/internal/persistence/archive"
	"terracell.ai/internal/persistence/indexdb"
	persistlog "terracell.ai/internal/persistence/log"
	"terracell.ai/internal/persistence/snapshot"
	"terracell.ai/internal/protocol"
	"terracell.ai/internal/sim/regen"
	"terracell.ai/internal/transport/observer"
	"terracell.ai/internal/transport/ws"
)

type auditWriter interface {
	WriteAudit(e persistlog.AuditEntry) error
}

type app struct {
	mapID  string
	mapDir string
	ctl    *regen.Controller
	ws     *ws.Server
	idx    runtimeIndex
	audit  auditWriter
	logger *log.Logger

	snapMu sync.Mutex
}

func (a *app) routes(enableAdmin, enablePprof bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", a.handleMetrics)

	if enableAdmin {
		mux.HandleFunc("/admin/v1/state", a.handleState)
		mux.HandleFunc("/admin/v1/regen", a.handleRegen)
		mux.HandleFunc("/admin/v1/config", a.handleConfig)
		mux.HandleFunc("/admin/v1/snapshot", a.handleSnapshot)

		obsSrv := observer.NewServer(a.ctl, a.logger)
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/map.svg", obsSrv.MapSVGHandler())
		mux.HandleFunc("/admin/v1/observer/map.png", obsSrv.MapPNGHandler())
	} else {
		a.logger.Printf("admin endpoints disabled (TC_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		a.logger.Printf("pprof endpoints disabled (TC_ENABLE_PPROF_HTTP=false)")
	}
	if a.ws != nil {
		mux.HandleFunc("/v1/ws", a.ws.Handler())
	}
	return mux
}

func (a *app) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
	m := a.ctl.Metrics()
	id := a.mapID

	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP terracell_map_generation Generation id of the displayed map.\n")
	fmt.Fprintf(rw, "# TYPE terracell_map_generation gauge\n")
	fmt.Fprintf(rw, "terracell_map_generation{map=%q} %d\n", id, m.Generation)

	fmt.Fprintf(rw, "# HELP terracell_map_sites Sites in the displayed map.\n")
	fmt.Fprintf(rw, "# TYPE terracell_map_sites gauge\n")
	fmt.Fprintf(rw, "terracell_map_sites{map=%q} %d\n", id, m.Sites)

	fmt.Fprintf(rw, "# HELP terracell_map_cells Cells in the displayed map.\n")
	fmt.Fprintf(rw, "# TYPE terracell_map_cells gauge\n")
	fmt.Fprintf(rw, "terracell_map_cells{map=%q} %d\n", id, m.Cells)

	generating := 0
	if m.State == regen.Generating.String() {
		generating = 1
	}
	fmt.Fprintf(rw, "# HELP terracell_regen_generating 1 while a regeneration is running.\n")
	fmt.Fprintf(rw, "# TYPE terracell_regen_generating gauge\n")
	fmt.Fprintf(rw, "terracell_regen_generating{map=%q} %d\n", id, generating)

	fmt.Fprintf(rw, "# HELP terracell_regen_total Regeneration counters.\n")
	fmt.Fprintf(rw, "# TYPE terracell_regen_total counter\n")
	fmt.Fprintf(rw, "terracell_regen_total{map=%q,result=%q} %d\n", id, "attempt", m.Attempts)
	fmt.Fprintf(rw, "terracell_regen_total{map=%q,result=%q} %d\n", id, "failure", m.Failures)
	fmt.Fprintf(rw, "terracell_regen_total{map=%q,result=%q} %d\n", id, "coalesced", m.Coalesced)
	fmt.Fprintf(rw, "terracell_regen_total{map=%q,result=%q} %d\n", id, "reclassified", m.Reclassified)

	fmt.Fprintf(rw, "# HELP terracell_regen_step_ms Last regeneration duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE terracell_regen_step_ms gauge\n")
	fmt.Fprintf(rw, "terracell_regen_step_ms{map=%q} %.3f\n", id, m.StepMS)

	fmt.Fprintf(rw, "# HELP terracell_subscribers Current map update subscribers.\n")
	fmt.Fprintf(rw, "# TYPE terracell_subscribers gauge\n")
	fmt.Fprintf(rw, "terracell_subscribers{map=%q} %d\n", id, m.Subscribers)

	if a.ws != nil {
		fmt.Fprintf(rw, "# HELP terracell_ws_sessions Current websocket sessions.\n")
		fmt.Fprintf(rw, "# TYPE terracell_ws_sessions gauge\n")
		fmt.Fprintf(rw, "terracell_ws_sessions{map=%q} %d\n", id, a.ws.Sessions())

		fmt.Fprintf(rw, "# HELP terracell_ws_messages_sent_total Messages written to websocket clients.\n")
		fmt.Fprintf(rw, "# TYPE terracell_ws_messages_sent_total counter\n")
		fmt.Fprintf(rw, "terracell_ws_messages_sent_total{map=%q} %d\n", id, a.ws.MessagesSent())
	}

	if a.idx != nil {
		writeIndexMetrics(rw, id, a.idx.Stats())
	}
}

func writeIndexMetrics(w io.Writer, id string, s indexdb.Stats) {
	fmt.Fprintf(w, "# HELP terracell_index_queue_depth Index writer queue depth.\n")
	fmt.Fprintf(w, "# TYPE terracell_index_queue_depth gauge\n")
	fmt.Fprintf(w, "terracell_index_queue_depth{map=%q} %d\n", id, s.QueueDepth)

	fmt.Fprintf(w, "# HELP terracell_index_queue_capacity Index writer queue capacity.\n")
	fmt.Fprintf(w, "# TYPE terracell_index_queue_capacity gauge\n")
	fmt.Fprintf(w, "terracell_index_queue_capacity{map=%q} %d\n", id, s.QueueCapacity)

	fmt.Fprintf(w, "# HELP terracell_index_dropped_total Index rows dropped because the queue was full.\n")
	fmt.Fprintf(w, "# TYPE terracell_index_dropped_total counter\n")
	fmt.Fprintf(w, "terracell_index_dropped_total{map=%q,table=%q} %d\n", id, "generations", s.DropGenerationTotal)
	fmt.Fprintf(w, "terracell_index_dropped_total{map=%q,table=%q} %d\n", id, "snapshots", s.DropSnapshotTotal)
	fmt.Fprintf(w, "terracell_index_dropped_total{map=%q,table=%q} %d\n", id, "seeds", s.DropSeedTotal)

	fmt.Fprintf(w, "# HELP terracell_index_write_errors_total Failed index transactions.\n")
	fmt.Fprintf(w, "# TYPE terracell_index_write_errors_total counter\n")
	fmt.Fprintf(w, "terracell_index_write_errors_total{map=%q} %d\n", id, s.WriteErrorTotal)
}

// Local-only admin endpoints.

func (a *app) adminOnly(rw http.ResponseWriter, r *http.Request, method string) bool {
	if method != "" && r.Method != method {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	if !observer.IsLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func (a *app) handleState(rw http.ResponseWriter, r *http.Request) {
	if !a.adminOnly(rw, r, http.MethodGet) {
		return
	}
	resp := struct {
		MapID      string          `json:"map_id"`
		Metrics    regen.Metrics   `json:"metrics"`
		Config     protocol.MapGen `json:"config"`
		WSSessions int64           `json:"ws_sessions"`
		Index      *indexdb.Stats  `json:"index,omitempty"`
	}{
		MapID:   a.mapID,
		Metrics: a.ctl.Metrics(),
		Config:  protocol.FromMapGen(a.ctl.Config()),
	}
	if a.ws != nil {
		resp.WSSessions = a.ws.Sessions()
	}
	if a.idx != nil {
		s := a.idx.Stats()
		resp.Index = &s
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (a *app) handleRegen(rw http.ResponseWriter, r *http.Request) {
	if !a.adminOnly(rw, r, http.MethodPost) {
		return
	}
	queued := a.ctl.Trigger()
	a.writeAudit("regen", map[string]any{"queued": queued, "remote": r.RemoteAddr})
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "queued": queued})
}

func (a *app) handleConfig(rw http.ResponseWriter, r *http.Request) {
	if !a.adminOnly(rw, r, "") {
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(rw, http.StatusOK, protocol.FromMapGen(a.ctl.Config()))
		return
	case http.MethodPost:
	default:
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		writeJSON(rw, http.StatusBadRequest, protocol.NewError(protocol.ErrProtoBadRequest, err.Error()))
		return
	}
	v, err := protocol.DefaultValidator()
	if err != nil {
		writeJSON(rw, http.StatusInternalServerError, protocol.NewError(protocol.ErrInternal, err.Error()))
		return
	}
	if err := v.Validate(protocol.TypeConfig, raw); err != nil {
		writeJSON(rw, http.StatusBadRequest, protocol.NewError(protocol.ErrProtoBadRequest, err.Error()))
		return
	}
	var msg protocol.ConfigMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		writeJSON(rw, http.StatusBadRequest, protocol.NewError(protocol.ErrProtoBadRequest, err.Error()))
		return
	}
	next := msg.MapGen.Apply(a.ctl.Config())
	if err := a.ctl.UpdateConfig(next); err != nil {
		writeJSON(rw, http.StatusBadRequest, protocol.NewError(protocol.ErrBadConfig, err.Error()))
		return
	}
	queued := false
	if msg.Regenerate {
		queued = a.ctl.Trigger()
	}
	a.writeAudit("config", map[string]any{"mapgen": protocol.FromMapGen(next), "regenerate": msg.Regenerate, "remote": r.RemoteAddr})
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "queued": queued, "config": protocol.FromMapGen(next)})
}

func (a *app) handleSnapshot(rw http.ResponseWriter, r *http.Request) {
	if !a.adminOnly(rw, r, http.MethodPost) {
		return
	}
	out := a.ctl.Current()
	if out.Generation == 0 {
		writeJSON(rw, http.StatusConflict, map[string]any{"ok": false, "error": "no map generated yet"})
		return
	}
	path, err := a.writeSnapshot(regen.ExportSnapshot(a.mapID, out))
	if err != nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "generation": out.Generation, "error": err.Error()})
		return
	}
	a.writeAudit("snapshot", map[string]any{"generation": out.Generation, "path": path})
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "generation": out.Generation, "path": path})
}

func (a *app) runSnapshotWriter(ctx context.Context, ch <-chan snapshot.SnapshotV1) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ch:
			if _, err := a.writeSnapshot(snap); err != nil {
				a.logger.Printf("snapshot write: %v", err)
			}
		}
	}
}

func (a *app) writeSnapshot(snap snapshot.SnapshotV1) (string, error) {
	a.snapMu.Lock()
	defer a.snapMu.Unlock()

	path := filepath.Join(a.mapDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Generation))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", err
	}
	if fi, err := os.Stat(path); err == nil {
		a.logger.Printf("snapshot generation=%d cells=%d size=%s", snap.Header.Generation, len(snap.Cells), humanize.Bytes(uint64(fi.Size())))
	}
	if a.idx != nil {
		a.idx.RecordSnapshot(path, snap)
	}

	archivedPath, ok, err := archive.ArchiveSeedSnapshot(a.mapDir, path, snap)
	if err != nil {
		a.logger.Printf("archive seed snapshot: %v", err)
	} else if ok {
		a.logger.Printf("archived seed=%#x grid=%d to %s", snap.Config.Seed, snap.Config.GridSize, archivedPath)
		if a.idx != nil {
			a.idx.RecordSeed(snap.Config.Seed, snap.Config.GridSize, snap.Header.Generation, snap.Header.Digest, archivedPath)
		}
	}
	return path, nil
}

func (a *app) writeAudit(action string, detail any) {
	if a.audit == nil {
		return
	}
	if err := a.audit.WriteAudit(persistlog.AuditEntry{MapID: a.mapID, Actor: "admin_http", Action: action, Detail: detail}); err != nil {
		a.logger.Printf("audit: %v", err)
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

type multiGenerationLogger []regen.GenerationLogger

func (m multiGenerationLogger) WriteGeneration(entry regen.GenerationLogEntry) error {
	for _, l := range m {
		if l != nil {
			_ = l.WriteGeneration(entry)
		}
	}
	return nil
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
