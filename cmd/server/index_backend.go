package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"classicraft.net/internal/config"
	"classicraft.net/internal/persistence/archive"
	"classicraft.net/internal/persistence/indexdb"
	"classicraft.net/internal/sim/world"
)

type runtimeIndex interface {
	world.EventLogger
	world.AuditLogger
	archive.Recorder
	Close() error
}

func openRuntimeIndex(cfg config.Config, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("CLASSICRAFT_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		logger.Printf("index backend disabled")
		return nil, nil
	case "sqlite":
		idx, err := indexdb.OpenSQLite(cfg.IndexPath())
		if err != nil {
			return nil, err
		}
		logger.Printf("index backend: sqlite %s", cfg.IndexPath())
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported CLASSICRAFT_INDEX_BACKEND: %s", backend)
	}
}
