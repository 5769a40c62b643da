package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"classicraft.net/internal/config"
	"classicraft.net/internal/persistence/archive"
	"classicraft.net/internal/persistence/level"
	persistlog "classicraft.net/internal/persistence/log"
	"classicraft.net/internal/sim/world"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	args := os.Args[2:]
	switch os.Args[1] {
	case "level":
		levelCmd(args)
	case "journal":
		journalCmd(args)
	case "backups":
		backupsCmd(args)
	case "restore":
		restoreCmd(args)
	case "db":
		dbCmd(args)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: admin level|journal|backups|restore|db [flags]")
}

// loadConfig reads the server config, falling back to defaults when the file
// is missing so the tools work against a bare data dir.
func loadConfig(path, dataDir string) config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fatal("load config:", err)
		}
		cfg = config.Defaults()
	}
	if s := strings.TrimSpace(dataDir); s != "" {
		if cfg.LevelPath == filepath.Join(cfg.DataDir, "level.lvl") {
			cfg.LevelPath = ""
		}
		cfg.DataDir = s
	}
	cfg.Normalize()
	return cfg
}

func levelCmd(args []string) {
	fs := flag.NewFlagSet("level", flag.ExitOnError)
	configPath := fs.String("config", "./configs/server.yaml", "server config path")
	dataDir := fs.String("data", "", "runtime data directory (overrides config)")
	path := fs.String("path", "", "level file (default: config level_path)")
	_ = fs.Parse(args)

	cfg := loadConfig(*configPath, *dataDir)
	p := strings.TrimSpace(*path)
	if p == "" {
		p = cfg.LevelPath
	}
	voxels, err := level.Read(p)
	if err != nil {
		fatal("read level:", err)
	}

	wc := cfg.WorldConfig()
	g := world.NewGrid(int(wc.SizeX), int(wc.SizeY), int(wc.SizeZ))
	out := struct {
		Path      string         `json:"path"`
		Voxels    int            `json:"voxels"`
		Size      [3]int         `json:"size"`
		SizeMatch bool           `json:"size_match"`
		Digest    string         `json:"digest,omitempty"`
		Blocks    map[string]int `json:"blocks"`
	}{
		Path:   p,
		Voxels: len(voxels),
		Size:   [3]int{int(wc.SizeX), int(wc.SizeY), int(wc.SizeZ)},
		Blocks: map[string]int{},
	}
	if err := g.Replace(voxels); err == nil {
		out.SizeMatch = true
		out.Digest = g.Digest()
	}
	for _, v := range voxels {
		out.Blocks[strconv.Itoa(int(v))]++
	}
	printJSON(out)
}

func journalCmd(args []string) {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	configPath := fs.String("config", "./configs/server.yaml", "server config path")
	dataDir := fs.String("data", "", "runtime data directory (overrides config)")
	kind := fs.String("kind", "", "only entries of this kind (e.g. SET_BLOCK, CHAT)")
	player := fs.Uint("player", 0, "only entries for this player id")
	_ = fs.Parse(args)

	cfg := loadConfig(*configPath, *dataDir)
	want := strings.ToUpper(strings.TrimSpace(*kind))
	err := persistlog.ReadJournal(cfg.DataDir, func(e world.EventLogEntry) error {
		if want != "" && e.Kind != want {
			return nil
		}
		if *player != 0 && e.Player != uint32(*player) {
			return nil
		}
		printJSON(e)
		return nil
	})
	if err != nil {
		fatal("read journal:", err)
	}
}

func backupsCmd(args []string) {
	fs := flag.NewFlagSet("backups", flag.ExitOnError)
	configPath := fs.String("config", "./configs/server.yaml", "server config path")
	dataDir := fs.String("data", "", "runtime data directory (overrides config)")
	prune := fs.Int("prune", 0, "keep only the newest N backups (0: list only)")
	_ = fs.Parse(args)

	cfg := loadConfig(*configPath, *dataDir)
	if *prune > 0 {
		removed, err := archive.Prune(cfg.BackupDir(), *prune)
		if err != nil {
			fatal("prune:", err)
		}
		sort.Strings(removed)
		for _, r := range removed {
			fmt.Println("removed", r)
		}
	}
	metas, err := archive.List(cfg.BackupDir())
	if err != nil {
		fatal("list:", err)
	}
	for _, m := range metas {
		printJSON(struct {
			Dir string `json:"dir"`
			archive.BackupMeta
		}{Dir: m.Dir, BackupMeta: m})
	}
}

func restoreCmd(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	configPath := fs.String("config", "./configs/server.yaml", "server config path")
	dataDir := fs.String("data", "", "runtime data directory (overrides config)")
	backup := fs.String("backup", "", "backup directory (default: newest)")
	out := fs.String("out", "", "level file to write (default: config level_path)")
	_ = fs.Parse(args)

	cfg := loadConfig(*configPath, *dataDir)
	dir := strings.TrimSpace(*backup)
	if dir == "" {
		metas, err := archive.List(cfg.BackupDir())
		if err != nil {
			fatal("list:", err)
		}
		if len(metas) == 0 {
			fmt.Fprintln(os.Stderr, "no backups found")
			os.Exit(2)
		}
		dir = metas[0].Dir
	}
	target := strings.TrimSpace(*out)
	if target == "" {
		target = cfg.LevelPath
	}
	meta, err := archive.Restore(dir, target)
	if err != nil {
		fatal("restore:", err)
	}
	fmt.Printf("restored %s (seq=%d digest=%s) -> %s\n", dir, meta.SourceSeq, meta.Digest, target)
}

func fatal(msg string, err error) {
	fmt.Fprintln(os.Stderr, msg, err)
	os.Exit(1)
}
