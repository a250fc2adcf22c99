package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	persistlog "terracell.ai/internal/persistence/log"
	"terracell.ai/internal/persistence/snapshot"
	"terracell.ai/internal/protocol"
	"terracell.ai/internal/sim/regen"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "regen":
			regenCmd(os.Args[2:])
			return
		case "config":
			configCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "maps")
	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		line, err := describeLatest(filepath.Join(base, e.Name()))
		if err != nil {
			fmt.Printf("%s\t%v\n", e.Name(), err)
			continue
		}
		fmt.Printf("%s\t%s\n", e.Name(), line)
	}
}

// describeLatest summarizes the newest snapshot of a map from its header line only.
func describeLatest(mapDir string) (string, error) {
	path := latestSnapshot(mapDir)
	if path == "" {
		return "no snapshots", nil
	}
	fi, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	h, err := snapshot.ReadHeader(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("latest=%s generation=%d digest=%s size=%s written %s",
		filepath.Base(path), h.Generation, short(h.Digest), humanize.Bytes(uint64(fi.Size())), humanize.Time(fi.ModTime())), nil
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	mapID := fs.String("map", "", "map id (uses its latest snapshot)")
	snapPath := fs.String("snapshot", "", "snapshot path (optional)")
	verify := fs.Bool("verify", true, "rebuild the map from the snapshot and check its digest")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		if strings.TrimSpace(*mapID) == "" {
			fmt.Fprintln(os.Stderr, "missing -map or -snapshot")
			os.Exit(2)
		}
		path = latestSnapshot(filepath.Join(*dataDir, "maps", *mapID))
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found")
		os.Exit(2)
	}

	fi, err := os.Stat(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "stat:", err)
		os.Exit(1)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	closed := 0
	for _, c := range snap.Cells {
		if c.Closed {
			closed++
		}
	}
	fmt.Printf("snapshot=%s size=%s created %s\n", filepath.Base(path), humanize.Bytes(uint64(fi.Size())), humanize.Time(time.UnixMilli(snap.CreatedUnixMS)))
	fmt.Printf("map=%s generation=%d digest=%s\n", snap.Header.MapID, snap.Header.Generation, snap.Header.Digest)
	fmt.Printf("seed=%#x grid=%d jitter=%g noise=%s sites=%s cells=%s closed=%s\n",
		snap.Config.Seed, snap.Config.GridSize, snap.Config.Jitter, snap.Config.Noise,
		humanize.Comma(int64(len(snap.Sites))), humanize.Comma(int64(len(snap.Cells))), humanize.Comma(int64(closed)))

	if !*verify {
		return
	}
	out, err := regen.ImportSnapshot(snap)
	if err != nil {
		fmt.Fprintln(os.Stderr, "verify:", err)
		os.Exit(1)
	}
	b := protocol.NewBootstrap(snap.Header.MapID, "SNAPSHOT", out)
	for i, ref := range b.Biomes {
		fmt.Printf("  %-12s %6d cells\n", ref.Name, b.Histogram[i])
	}
	fmt.Println("digest ok")
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	mapID := fs.String("map", "", "map id")
	action := fs.String("action", "", "action filter (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*mapID) == "" {
		fmt.Fprintln(os.Stderr, "missing -map")
		os.Exit(2)
	}
	files, err := persistlog.ListFiles(filepath.Join(*dataDir, "maps", *mapID, "audit"), "audit")
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	for _, path := range files {
		err := persistlog.ScanFile(path, func(line []byte) error {
			var e persistlog.AuditEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return err
			}
			if *action != "" && e.Action != *action {
				return nil
			}
			printJSON(e)
			return nil
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "scan:", err)
			os.Exit(1)
		}
	}
}

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

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
