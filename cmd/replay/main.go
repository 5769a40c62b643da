package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"classicraft.net/internal/config"
	"classicraft.net/internal/persistence/archive"
	"classicraft.net/internal/persistence/level"
	persistlog "classicraft.net/internal/persistence/log"
)

func main() {
	var (
		configPath = flag.String("config", "./configs/server.yaml", "server config path")
		dataDir    = flag.String("data", "", "runtime data directory (overrides config)")
		basePath   = flag.String("base", "", "level file matching the first LOAD (optional; backups are searched otherwise)")
		verbose    = flag.Bool("v", false, "print every checkpoint")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintln(os.Stderr, "load config:", err)
			os.Exit(1)
		}
		cfg = config.Defaults()
	}
	if s := strings.TrimSpace(*dataDir); s != "" {
		if cfg.LevelPath == filepath.Join(cfg.DataDir, "level.lvl") {
			cfg.LevelPath = ""
		}
		cfg.DataDir = s
	}
	cfg.Normalize()

	r := &replayer{
		ground: cfg.WorldConfig().GroundBlock,
		base: func(digest string) ([]byte, bool) {
			return findBase(*basePath, cfg.BackupDir(), digest)
		},
	}
	if *verbose {
		r.report = func(format string, args ...any) { fmt.Printf(format+"\n", args...) }
	}
	if err := persistlog.ReadJournal(cfg.DataDir, r.apply); err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}

	fmt.Printf("entries=%d set_block=%d loads=%d saves=%d rewinds=%d mismatches=%d\n",
		r.entries, r.edits, r.loads, r.saves, r.rewinds, len(r.mismatches))
	for _, m := range r.mismatches {
		fmt.Println("MISMATCH", m)
	}
	if len(r.mismatches) > 0 {
		os.Exit(1)
	}
}

// findBase returns the voxels of the -base file or of a backup with the
// given digest.
func findBase(basePath, backupDir, digest string) ([]byte, bool) {
	if p := strings.TrimSpace(basePath); p != "" {
		voxels, err := level.Read(p)
		if err == nil && digestOf(voxels) == digest {
			return voxels, true
		}
	}
	metas, err := archive.List(backupDir)
	if err != nil {
		return nil, false
	}
	for _, m := range metas {
		if m.Digest != digest {
			continue
		}
		voxels, _, err := archive.ReadVoxels(m.Dir)
		if err == nil {
			return voxels, true
		}
	}
	return nil, false
}
