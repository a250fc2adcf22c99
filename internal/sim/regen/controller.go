// Package regen owns the generator state and swaps in new maps on trigger.
package regen

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"terracell.ai/internal/persistence/snapshot"
	"terracell.ai/internal/sim/terrain/gen"
	"terracell.ai/internal/sim/terrain/mesh"
	"terracell.ai/internal/sim/terrain/sample"
	"terracell.ai/internal/sim/tuning"
)

type State int32

const (
	Idle State = iota
	Generating
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Generating:
		return "GENERATING"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Update kinds delivered to subscribers.
const (
	UpdateMap    = "MAP"    // geometry replaced; discard every previous cell
	UpdateBiomes = "BIOMES" // same geometry, new classification
)

type Update struct {
	Kind   string
	Output *gen.Output
}

// GenerationLogEntry records one regeneration attempt.
type GenerationLogEntry struct {
	Attempt    uint64        `json:"attempt"`
	Generation uint64        `json:"generation"`
	Kind       string        `json:"kind"`
	UnixMS     int64         `json:"unix_ms"`
	Config     tuning.MapGen `json:"config"`
	Sites      int           `json:"sites"`
	Cells      int           `json:"cells"`
	Triangles  int           `json:"triangles"`
	Digest     string        `json:"digest,omitempty"`
	DurationMS float64       `json:"duration_ms"`
	Error      string        `json:"error,omitempty"`
}

type GenerationLogger interface {
	WriteGeneration(entry GenerationLogEntry) error
}

type Config struct {
	MapID           string
	TickRateHz      int
	MapGen          tuning.MapGen
	SnapshotOnRegen bool
}

type Controller struct {
	cfg Config
	log *log.Logger

	// Loop-owned.
	rng        *rand.Rand
	attempts   uint64
	generation uint64

	current atomic.Pointer[gen.Output]
	state   atomic.Int32

	trigger chan struct{}
	stop    chan struct{}
	stopped sync.Once

	mu         sync.Mutex
	mapgen     tuning.MapGen
	pendingCfg *tuning.MapGen
	subs       map[uint64]chan Update
	nextSub    uint64
	genLog     GenerationLogger
	snapSink   chan<- snapshot.SnapshotV1

	stepMu sync.Mutex

	metrics metrics
}

type metrics struct {
	attempts      atomic.Uint64
	failures      atomic.Uint64
	coalesced     atomic.Uint64
	reclassified  atomic.Uint64
	lastStepNanos atomic.Int64
	lastErr       atomic.Value // string
}

// New validates cfg and returns an Idle controller exposing an empty map.
func New(cfg Config, logger *log.Logger) (*Controller, error) {
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 10
	}
	if cfg.MapID == "" {
		cfg.MapID = "map_1"
	}
	if err := cfg.MapGen.Validate(); err != nil {
		return nil, err
	}
	empty, err := gen.Empty(cfg.MapGen)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(discard{}, "", 0)
	}
	c := &Controller{
		cfg:     cfg,
		log:     logger,
		mapgen:  cfg.MapGen,
		trigger: make(chan struct{}, 1),
		stop:    make(chan struct{}),
		subs:    map[uint64]chan Update{},
	}
	c.current.Store(empty)
	c.metrics.lastErr.Store("")
	return c, nil
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func (c *Controller) MapID() string { return c.cfg.MapID }

func (c *Controller) SetGenerationLogger(l GenerationLogger) {
	c.mu.Lock()
	c.genLog = l
	c.mu.Unlock()
}

// SetSnapshotSink receives a snapshot after every successful regeneration when
// SnapshotOnRegen is set. Sends never block; a full sink drops the snapshot.
func (c *Controller) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) {
	c.mu.Lock()
	c.snapSink = ch
	c.mu.Unlock()
}

// Current returns the exposed map. It is never nil and never partially built.
func (c *Controller) Current() *gen.Output { return c.current.Load() }

func (c *Controller) State() State { return State(c.state.Load()) }

func (c *Controller) StateName() string { return c.State().String() }

// Trigger requests a regeneration. Requests made before the next tick collapse into one;
// the return value reports whether this call queued a new request.
func (c *Controller) Trigger() bool {
	select {
	case c.trigger <- struct{}{}:
		return true
	default:
		c.metrics.coalesced.Add(1)
		return false
	}
}

// UpdateConfig validates cfg and stages it for the next tick. A change that keeps the
// geometry recolors the current map; any other change waits for the next trigger.
func (c *Controller) UpdateConfig(cfg tuning.MapGen) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.pendingCfg = &cfg
	c.mu.Unlock()
	return nil
}

// Config returns the config the next regeneration will use, including staged changes.
func (c *Controller) Config() tuning.MapGen {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingCfg != nil {
		return *c.pendingCfg
	}
	return c.mapgen
}

// Subscribe registers a listener. Slow listeners lose older updates, never the latest.
func (c *Controller) Subscribe(buf int) (uint64, <-chan Update) {
	if buf <= 0 {
		buf = 1
	}
	ch := make(chan Update, buf)
	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	c.subs[id] = ch
	c.mu.Unlock()
	return id, ch
}

func (c *Controller) Unsubscribe(id uint64) {
	c.mu.Lock()
	delete(c.subs, id)
	c.mu.Unlock()
}

func (c *Controller) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(c.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return nil
		case <-ticker.C:
			_, _ = c.step()
		}
	}
}

func (c *Controller) Stop() { c.stopped.Do(func() { close(c.stop) }) }

// StepOnce runs one tick synchronously: staged config first, then at most one pending
// regeneration. It reports whether a regeneration ran and its error.
func (c *Controller) StepOnce() (ran bool, err error) {
	return c.step()
}

func (c *Controller) step() (bool, error) {
	c.stepMu.Lock()
	defer c.stepMu.Unlock()

	c.applyPendingConfig()

	select {
	case <-c.trigger:
		return true, c.regenerate()
	default:
		return false, nil
	}
}

func (c *Controller) applyPendingConfig() {
	c.mu.Lock()
	p := c.pendingCfg
	c.pendingCfg = nil
	if p != nil {
		c.mapgen = *p
	}
	c.mu.Unlock()
	if p == nil {
		return
	}
	cfg := *p

	cur := c.current.Load()
	if len(cur.Sites) == 0 || !tuning.SameGeometry(cur.Config, cfg) {
		return
	}
	out, err := gen.Reclassify(cur, cfg)
	if err != nil {
		c.log.Printf("reclassify: %v", err)
		return
	}
	c.current.Store(out)
	c.metrics.reclassified.Add(1)
	c.publish(Update{Kind: UpdateBiomes, Output: out})
	c.logGeneration(GenerationLogEntry{
		Attempt:    c.attempts,
		Generation: out.Generation,
		Kind:       UpdateBiomes,
		UnixMS:     time.Now().UnixMilli(),
		Config:     cfg,
		Sites:      len(out.Sites),
		Cells:      len(out.Cells),
		Triangles:  out.NumTriangles(),
		Digest:     out.Digest,
	})
}

func (c *Controller) regenerate() error {
	c.state.Store(int32(Generating))
	defer c.state.Store(int32(Idle))

	c.mu.Lock()
	cfg := c.mapgen
	c.mu.Unlock()
	c.attempts++
	c.metrics.attempts.Add(1)
	c.rng = sample.NewRand(cfg.Seed)

	start := time.Now()
	out, err := safeGenerate(cfg, c.rng)
	dur := time.Since(start)
	c.metrics.lastStepNanos.Store(dur.Nanoseconds())

	entry := GenerationLogEntry{
		Attempt:    c.attempts,
		Kind:       UpdateMap,
		UnixMS:     start.UnixMilli(),
		Config:     cfg,
		DurationMS: float64(dur.Microseconds()) / 1000,
	}
	if err != nil {
		c.metrics.failures.Add(1)
		c.metrics.lastErr.Store(err.Error())
		entry.Generation = c.generation
		entry.Error = err.Error()
		c.logGeneration(entry)
		c.log.Printf("regenerate seed=%#x grid=%d: %v (keeping generation %d)", cfg.Seed, cfg.GridSize, err, c.generation)
		return err
	}

	c.generation++
	out.Generation = c.generation
	c.current.Store(out)
	c.metrics.lastErr.Store("")
	c.publish(Update{Kind: UpdateMap, Output: out})

	entry.Generation = out.Generation
	entry.Sites = len(out.Sites)
	entry.Cells = len(out.Cells)
	entry.Triangles = out.NumTriangles()
	entry.Digest = out.Digest
	c.logGeneration(entry)

	if c.cfg.SnapshotOnRegen {
		c.emitSnapshot(out)
	}
	return nil
}

// safeGenerate turns a panic inside the pipeline into an index-invariant error so the
// controller keeps serving the previous map.
func safeGenerate(cfg tuning.MapGen, rng *rand.Rand) (out *gen.Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%w: panic: %v", mesh.ErrIndexInvariant, r)
		}
	}()
	return gen.Generate(cfg, rng)
}

func (c *Controller) publish(u Update) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs {
		sendLatest(ch, u)
	}
}

func sendLatest(ch chan Update, u Update) {
	select {
	case ch <- u:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- u:
	default:
	}
}

func (c *Controller) logGeneration(e GenerationLogEntry) {
	c.mu.Lock()
	l := c.genLog
	c.mu.Unlock()
	if l == nil {
		return
	}
	if err := l.WriteGeneration(e); err != nil {
		c.log.Printf("generation log: %v", err)
	}
}

func (c *Controller) emitSnapshot(out *gen.Output) {
	c.mu.Lock()
	sink := c.snapSink
	c.mu.Unlock()
	if sink == nil {
		return
	}
	select {
	case sink <- ExportSnapshot(c.cfg.MapID, out):
	default:
		c.log.Printf("snapshot sink full; dropped generation %d", out.Generation)
	}
}

type Metrics struct {
	MapID        string  `json:"map_id"`
	State        string  `json:"state"`
	Generation   uint64  `json:"generation"`
	Digest       string  `json:"digest"`
	Sites        int     `json:"sites"`
	Cells        int     `json:"cells"`
	Attempts     uint64  `json:"attempts"`
	Failures     uint64  `json:"failures"`
	Coalesced    uint64  `json:"coalesced"`
	Reclassified uint64  `json:"reclassified"`
	StepMS       float64 `json:"step_ms"`
	Subscribers  int     `json:"subscribers"`
	LastError    string  `json:"last_error,omitempty"`
}

func (c *Controller) Metrics() Metrics {
	cur := c.current.Load()
	c.mu.Lock()
	subs := len(c.subs)
	c.mu.Unlock()
	lastErr, _ := c.metrics.lastErr.Load().(string)
	return Metrics{
		MapID:        c.cfg.MapID,
		State:        c.State().String(),
		Generation:   cur.Generation,
		Digest:       cur.Digest,
		Sites:        len(cur.Sites),
		Cells:        len(cur.Cells),
		Attempts:     c.metrics.attempts.Load(),
		Failures:     c.metrics.failures.Load(),
		Coalesced:    c.metrics.coalesced.Load(),
		Reclassified: c.metrics.reclassified.Load(),
		StepMS:       float64(c.metrics.lastStepNanos.Load()) / 1e6,
		Subscribers:  subs,
		LastError:    lastErr,
	}
}
