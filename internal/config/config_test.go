package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"classicraft.net/internal/sim/scheduler"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	wc := cfg.WorldConfig()
	if wc.SizeX != 128 || wc.SizeY != 64 || wc.SizeZ != 128 || wc.GroundBlock != 2 {
		t.Fatalf("world: %+v", wc)
	}
	if wc.SpawnX != 32 || wc.SpawnY != 32 || wc.SpawnZ != 32 {
		t.Fatalf("spawn: %+v", wc)
	}
	if cfg.LevelPath != filepath.Join("data", "level.lvl") {
		t.Fatalf("level path: %q", cfg.LevelPath)
	}
	entries, err := cfg.ScheduleEntries()
	if err != nil || len(entries) != 1 || entries[0].Every != 30 || entries[0].Action != scheduler.ActionSave {
		t.Fatalf("schedule: %+v err=%v", entries, err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist, got %v", err)
	}
}

func TestLoad_OverridesAndKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: "0.0.0.0:25566"
server_name: "Test Server"
world:
  size: [64, 32, 64]
  ground_block: 3
  spawn: [320, 64, 320]
data_dir: /srv/classic
schedule:
  - every_seconds: 60
    action: save
  - every_seconds: 300
    action: Announce
    text: "Be nice."
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "0.0.0.0:25566" || cfg.ServerName != "Test Server" || cfg.MOTD != "motd" {
		t.Fatalf("strings: %+v", cfg)
	}
	if cfg.LevelPath != filepath.Join("/srv/classic", "level.lvl") {
		t.Fatalf("level path: %q", cfg.LevelPath)
	}
	if cfg.WriteTimeout().Seconds() != 5 {
		t.Fatalf("write timeout: %v", cfg.WriteTimeout())
	}
	entries, err := cfg.ScheduleEntries()
	if err != nil {
		t.Fatalf("ScheduleEntries: %v", err)
	}
	if len(entries) != 2 || entries[1].Action != scheduler.ActionAnnounce || entries[1].Text != "Be nice." {
		t.Fatalf("schedule: %+v", entries)
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"size too large", "world:\n  size: [2048, 64, 128]\n  ground_block: 2\n  spawn: [32, 32, 32]\n", ""},
		{"size zero", "world:\n  size: [0, 64, 128]\n  ground_block: 2\n  spawn: [0, 0, 0]\n", ""},
		{"spawn outside", "world:\n  size: [16, 16, 16]\n  ground_block: 2\n  spawn: [512, 32, 32]\n", "outside"},
		{"unknown action", "schedule:\n  - every_seconds: 5\n    action: reboot\n", ""},
		{"announce without text", "schedule:\n  - every_seconds: 5\n    action: announce\n", "needs text"},
		{"zero interval", "schedule:\n  - every_seconds: 0\n    action: save\n", ""},
		{"long server name", "server_name: \"" + strings.Repeat("n", 65) + "\"\n", ""},
	}
	for _, tc := range cases {
		_, err := Load(writeConfig(t, tc.body))
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if tc.want != "" && !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: error %q does not mention %q", tc.name, err, tc.want)
		}
	}
}

func TestLoad_BadYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "world: [unclosed\n")); err == nil {
		t.Fatalf("expected yaml error")
	}
	if _, err := Load(writeConfig(t, "world:\n  size: [1, 2]\n")); err == nil {
		t.Fatalf("expected error for short size array")
	}
}

func TestLoad_SampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "server.yaml"))
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	entries, err := cfg.ScheduleEntries()
	if err != nil {
		t.Fatalf("ScheduleEntries: %v", err)
	}
	if len(entries) != 2 || entries[1].Action != scheduler.ActionAnnounce {
		t.Fatalf("entries: %+v", entries)
	}
	if cfg.BackupDir() != filepath.Join("data", "backups") {
		t.Fatalf("backup dir: %q", cfg.BackupDir())
	}
}
