package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"terracell.ai/internal/persistence/snapshot"
	"terracell.ai/internal/render"
	"terracell.ai/internal/sim/regen"
	"terracell.ai/internal/sim/terrain/gen"
	"terracell.ai/internal/sim/tuning"
)

func main() {
	var (
		tuningPath = flag.String("tuning", "", "tuning.yaml to take mapgen from (default: built-in defaults)")
		snapPath   = flag.String("snapshot", "", "render a snapshot instead of generating")
		seed       = flag.String("seed", "", "override seed (decimal or 0x hex)")
		grid       = flag.Int("grid", -1, "override grid size")
		jitter     = flag.Float64("jitter", -1, "override jitter")
		noise      = flag.String("noise", "", "override noise kind: simplex|perlin|none")
		relax      = flag.Int("relax", -1, "override relaxation iterations")

		outPath = flag.String("out", "map.svg", "output path ('-' for stdout)")
		format  = flag.String("format", "", "svg|png (default: from -out extension)")
		width   = flag.Int("width", 800, "image width in pixels")
		height  = flag.Int("height", 0, "image height in pixels (0 keeps the aspect ratio)")
		padding = flag.Int("padding", 10, "padding in pixels")

		open      = flag.Bool("open", false, "also fill hull cells")
		triangles = flag.Bool("triangles", false, "draw Delaunay edges")
		dualEdges = flag.Bool("dual", false, "draw dual edges")
		sites     = flag.Bool("sites", false, "draw sites")
	)
	flag.Parse()

	opts := render.Options{
		Width:     *width,
		Height:    *height,
		Padding:   *padding,
		OpenCells: *open,
		Triangles: *triangles,
		Dual:      *dualEdges,
		Sites:     *sites,
	}

	var out *gen.Output
	var err error
	if strings.TrimSpace(*snapPath) != "" {
		out, err = loadSnapshot(*snapPath, opts.Triangles || opts.Dual)
	} else {
		var cfg tuning.MapGen
		cfg, err = mapgenFromFlags(*tuningPath, *seed, *grid, *jitter, *noise, *relax)
		if err == nil {
			out, err = gen.Run(cfg)
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "render:", err)
		os.Exit(1)
	}

	f := strings.ToLower(strings.TrimSpace(*format))
	if f == "" {
		f = strings.TrimPrefix(strings.ToLower(filepath.Ext(*outPath)), ".")
	}

	var w io.Writer = os.Stdout
	if *outPath != "-" {
		file, err := os.Create(*outPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "create:", err)
			os.Exit(1)
		}
		defer file.Close()
		w = file
	}
	cw := &countingWriter{w: w}
	if err := draw(cw, out, f, opts); err != nil {
		fmt.Fprintln(os.Stderr, "render:", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "rendered generation=%d seed=%#x grid=%d cells=%d to %s (%s)\n",
		out.Generation, out.Config.Seed, out.Config.GridSize, len(out.Cells), *outPath, humanize.Bytes(cw.n))
}

func draw(w io.Writer, out *gen.Output, format string, opts render.Options) error {
	switch format {
	case "svg":
		return render.SVG(w, out, opts)
	case "png":
		return render.PNG(w, out, opts)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

func mapgenFromFlags(tuningPath, seed string, grid int, jitter float64, noise string, relax int) (tuning.MapGen, error) {
	cfg := tuning.DefaultMapGen()
	if strings.TrimSpace(tuningPath) != "" {
		t, err := tuning.Load(tuningPath)
		if err != nil {
			return cfg, err
		}
		cfg = t.MapGen
	}
	if s := strings.TrimSpace(seed); s != "" {
		v, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return cfg, fmt.Errorf("bad -seed %q: %w", s, err)
		}
		cfg.Seed = v
	}
	if grid >= 0 {
		cfg.GridSize = grid
	}
	if jitter >= 0 {
		cfg.Jitter = jitter
	}
	if noise != "" {
		cfg.Noise = noise
	}
	if relax >= 0 {
		cfg.RelaxIterations = relax
	}
	return cfg, cfg.Validate()
}

// loadSnapshot restores a snapshot. Overlays need the triangulation, which snapshots do not
// store, so withGraph regenerates from the stored config and checks the digest.
func loadSnapshot(path string, withGraph bool) (*gen.Output, error) {
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return nil, err
	}
	out, err := regen.ImportSnapshot(snap)
	if err != nil || !withGraph {
		return out, err
	}
	fresh, err := gen.Run(out.Config)
	if err != nil {
		return nil, err
	}
	if fresh.Digest != out.Digest {
		return nil, fmt.Errorf("snapshot no longer regenerates: digest %s want %s", fresh.Digest, out.Digest)
	}
	fresh.Generation = out.Generation
	return fresh, nil
}

type countingWriter struct {
	w io.Writer
	n uint64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += uint64(n)
	return n, err
}
