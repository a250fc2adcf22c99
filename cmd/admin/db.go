package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"terracell.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	mapID := fs.String("map", "", "map id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	failed := fs.Bool("failed", false, "only failed attempts (generations)")
	_ = fs.Parse(args)

	q := "generations"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*mapID) == "" {
			fmt.Fprintln(os.Stderr, "missing -map or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "maps", *mapID, "index", "map.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch q {
	case "generations":
		rows, err := indexdb.QueryGenerations(ctx, db, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			if *failed && r.Error == "" {
				continue
			}
			printJSON(r)
		}

	case "snapshots":
		rows, err := db.QueryContext(ctx, `SELECT generation,path,seed,grid_size,sites,cells,digest,created_unix_ms FROM snapshots ORDER BY generation DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Generation    uint64 `json:"generation"`
				Path          string `json:"path"`
				Seed          string `json:"seed"`
				GridSize      int    `json:"grid_size"`
				Sites         int    `json:"sites"`
				Cells         int    `json:"cells"`
				Digest        string `json:"digest"`
				CreatedUnixMS int64  `json:"created_unix_ms"`
			}
			if err := rows.Scan(&r.Generation, &r.Path, &r.Seed, &r.GridSize, &r.Sites, &r.Cells, &r.Digest, &r.CreatedUnixMS); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "seeds":
		rows, err := db.QueryContext(ctx, `SELECT seed,grid_size,generation,digest,archive_path,recorded_at FROM seeds ORDER BY recorded_at DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Seed        string `json:"seed"`
				GridSize    int    `json:"grid_size"`
				Generation  uint64 `json:"generation"`
				Digest      string `json:"digest"`
				ArchivePath string `json:"archive_path"`
				RecordedAt  string `json:"recorded_at"`
			}
			if err := rows.Scan(&r.Seed, &r.GridSize, &r.Generation, &r.Digest, &r.ArchivePath, &r.RecordedAt); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "tuning":
		var r struct {
			Digest    string `json:"digest"`
			JSON      string `json:"json"`
			UpdatedAt string `json:"updated_at"`
		}
		row := db.QueryRowContext(ctx, `SELECT digest,json,updated_at FROM tuning WHERE name='tuning'`)
		if err := row.Scan(&r.Digest, &r.JSON, &r.UpdatedAt); err != nil {
			fmt.Fprintln(os.Stderr, "scan:", err)
			os.Exit(1)
		}
		printJSON(r)

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "queries: generations|snapshots|seeds|tuning")
		os.Exit(2)
	}
}
