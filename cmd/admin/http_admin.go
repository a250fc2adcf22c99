package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"terracell.ai/internal/protocol"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)
	adminRequest(http.MethodGet, *baseURL, "/admin/v1/state", nil, 5*time.Second)
}

func regenCmd(args []string) {
	fs := flag.NewFlagSet("regen", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)
	adminRequest(http.MethodPost, *baseURL, "/admin/v1/regen", nil, 5*time.Second)
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)
	adminRequest(http.MethodPost, *baseURL, "/admin/v1/snapshot", nil, 10*time.Second)
}

// configCmd sends only the flags given on the command line. Without any it prints the
// server's current config.
func configCmd(args []string) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	seed := fs.String("seed", "", "seed (decimal or 0x hex)")
	grid := fs.Int("grid", 0, "grid size")
	jitter := fs.Float64("jitter", 0, "site jitter")
	threshold := fs.Float64("threshold", 0, "elevation threshold (two-category mode)")
	thresholds := fs.String("thresholds", "", "comma-separated ascending thresholds")
	biomes := fs.String("biomes", "", "comma-separated biome names (one more than thresholds)")
	extent := fs.Float64("extent", 0, "elevation extent (0 uses the grid size)")
	noise := fs.String("noise", "", "noise kind: simplex|perlin|none")
	relax := fs.Int("relax", 0, "relaxation iterations")
	regenerate := fs.Bool("regen", false, "trigger a regeneration after applying")
	_ = fs.Parse(args)

	msg := protocol.ConfigMsg{
		Type:            protocol.TypeConfig,
		ProtocolVersion: protocol.Version,
		Regenerate:      *regenerate,
	}
	var parseErr error
	fields := 0
	fs.Visit(func(f *flag.Flag) {
		if f.Name != "url" && f.Name != "regen" {
			fields++
		}
		switch f.Name {
		case "seed":
			v, err := strconv.ParseUint(strings.TrimSpace(*seed), 0, 64)
			if err != nil {
				parseErr = fmt.Errorf("bad -seed: %w", err)
				return
			}
			msg.MapGen.Seed = &v
		case "grid":
			msg.MapGen.GridSize = grid
		case "jitter":
			msg.MapGen.Jitter = jitter
		case "threshold":
			msg.MapGen.ElevationThreshold = threshold
		case "thresholds":
			vs, err := parseFloats(*thresholds)
			if err != nil {
				parseErr = fmt.Errorf("bad -thresholds: %w", err)
				return
			}
			msg.MapGen.Thresholds = vs
		case "biomes":
			for _, s := range strings.Split(*biomes, ",") {
				msg.MapGen.Biomes = append(msg.MapGen.Biomes, strings.TrimSpace(s))
			}
		case "extent":
			msg.MapGen.ElevationExtent = extent
		case "noise":
			msg.MapGen.Noise = noise
		case "relax":
			msg.MapGen.RelaxIterations = relax
		}
	})
	if parseErr != nil {
		fmt.Fprintln(os.Stderr, parseErr)
		os.Exit(2)
	}

	if fields == 0 {
		adminRequest(http.MethodGet, *baseURL, "/admin/v1/config", nil, 5*time.Second)
		return
	}
	body, err := json.Marshal(msg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "encode:", err)
		os.Exit(1)
	}
	adminRequest(http.MethodPost, *baseURL, "/admin/v1/config", body, 5*time.Second)
}

func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func adminRequest(method, baseURL, path string, body []byte, timeout time.Duration) {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, u, rd)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(2)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
