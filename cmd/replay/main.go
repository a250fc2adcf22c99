package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	persistlog "terracell.ai/internal/persistence/log"
	"terracell.ai/internal/persistence/snapshot"
	"terracell.ai/internal/sim/regen"
	"terracell.ai/internal/sim/terrain/gen"
)

func main() {
	var (
		dataDir  = flag.String("data", "./data", "runtime data directory")
		mapID    = flag.String("map", "", "map id (reads <data>/maps/<map>/generations)")
		mapDir   = flag.String("dir", "", "map directory (overrides -data/-map)")
		snapPath = flag.String("snapshot", "", "path to .snap.zst to verify (optional)")
		fromGen  = flag.Uint64("from_gen", 0, "first generation to verify (inclusive, optional)")
		toGen    = flag.Uint64("to_gen", 0, "last generation to verify (inclusive, optional)")
		verbose  = flag.Bool("v", false, "print every verified entry")
	)
	flag.Parse()

	if *snapPath != "" {
		if err := verifySnapshot(*snapPath); err != nil {
			fmt.Fprintln(os.Stderr, "snapshot:", err)
			os.Exit(1)
		}
	}

	dir := strings.TrimSpace(*mapDir)
	if dir == "" && strings.TrimSpace(*mapID) != "" {
		dir = filepath.Join(*dataDir, "maps", *mapID)
	}
	if dir == "" {
		if *snapPath == "" {
			fmt.Fprintln(os.Stderr, "missing -map, -dir or -snapshot")
			os.Exit(2)
		}
		return
	}

	rep, err := replayLog(dir, *fromGen, *toGen, func(e regen.GenerationLogEntry, digest string) {
		if *verbose {
			fmt.Printf("ok generation=%d kind=%s seed=%#x grid=%d digest=%s\n", e.Generation, e.Kind, e.Config.Seed, e.Config.GridSize, digest)
		}
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	for _, m := range rep.Mismatches {
		fmt.Fprintf(os.Stderr, "mismatch generation=%d attempt=%d: %s\n", m.Generation, m.Attempt, m.Reason)
	}
	if len(rep.Mismatches) > 0 {
		fmt.Fprintf(os.Stderr, "replay failed: checked=%d mismatches=%d\n", rep.Checked, len(rep.Mismatches))
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d skipped_failures=%d\n", rep.Checked, rep.SkippedFailures)
}

type mismatch struct {
	Attempt    uint64
	Generation uint64
	Reason     string
}

type report struct {
	Checked         int
	SkippedFailures int
	Mismatches      []mismatch
}

// replayLog regenerates every successful logged generation from its config and compares
// digests. Failed attempts are replayed too and must fail again.
func replayLog(mapDir string, fromGen, toGen uint64, onOK func(regen.GenerationLogEntry, string)) (report, error) {
	var rep report
	err := persistlog.ReadGenerations(mapDir, func(e regen.GenerationLogEntry) error {
		if e.Generation < fromGen || (toGen != 0 && e.Generation > toGen) {
			return nil
		}
		out, err := gen.Run(e.Config)
		if e.Error != "" {
			rep.SkippedFailures++
			if err == nil {
				rep.Mismatches = append(rep.Mismatches, mismatch{e.Attempt, e.Generation, fmt.Sprintf("logged failure %q now succeeds", e.Error)})
			}
			return nil
		}
		rep.Checked++
		switch {
		case err != nil:
			rep.Mismatches = append(rep.Mismatches, mismatch{e.Attempt, e.Generation, err.Error()})
		case out.Digest != e.Digest:
			rep.Mismatches = append(rep.Mismatches, mismatch{e.Attempt, e.Generation, fmt.Sprintf("digest %s want %s", out.Digest, e.Digest)})
		case len(out.Cells) != e.Cells:
			rep.Mismatches = append(rep.Mismatches, mismatch{e.Attempt, e.Generation, fmt.Sprintf("cells %d want %d", len(out.Cells), e.Cells)})
		default:
			if onOK != nil {
				onOK(e, out.Digest)
			}
		}
		return nil
	})
	return rep, err
}

// verifySnapshot checks the stored digest and that the stored config still regenerates
// the same map.
func verifySnapshot(path string) error {
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return err
	}
	stored, err := regen.ImportSnapshot(snap)
	if err != nil {
		return err
	}
	fresh, err := gen.Run(stored.Config)
	if err != nil {
		return fmt.Errorf("regenerate: %w", err)
	}
	if fresh.Digest != stored.Digest {
		return fmt.Errorf("regenerated digest %s differs from snapshot %s", fresh.Digest, stored.Digest)
	}
	fmt.Printf("snapshot ok: map=%s generation=%d cells=%d digest=%s\n", snap.Header.MapID, snap.Header.Generation, len(stored.Cells), stored.Digest)
	return nil
}
