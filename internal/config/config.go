// Package config loads the server's yaml config.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"classicraft.net/internal/sim/scheduler"
	"classicraft.net/internal/sim/world"
)

//go:embed schema.json
var schemaJSON string

type Config struct {
	Listen         string         `yaml:"listen" json:"listen"`
	ServerName     string         `yaml:"server_name" json:"server_name"`
	MOTD           string         `yaml:"motd" json:"motd"`
	World          WorldSpec      `yaml:"world" json:"world"`
	LevelPath      string         `yaml:"level_path" json:"level_path"`
	DataDir        string         `yaml:"data_dir" json:"data_dir"`
	WriteTimeoutMS int            `yaml:"write_timeout_ms" json:"write_timeout_ms"`
	Schedule       []ScheduleSpec `yaml:"schedule" json:"schedule,omitempty"`
	Backups        BackupSpec     `yaml:"backups" json:"backups"`
}

type WorldSpec struct {
	Size        [3]int `yaml:"size" json:"size"`
	GroundBlock int    `yaml:"ground_block" json:"ground_block"`
	// Spawn is in fixed-point units (32 per block).
	Spawn [3]int `yaml:"spawn" json:"spawn"`
}

type ScheduleSpec struct {
	EverySeconds int    `yaml:"every_seconds" json:"every_seconds"`
	Action       string `yaml:"action" json:"action"`
	Text         string `yaml:"text,omitempty" json:"text,omitempty"`
}

type BackupSpec struct {
	EverySaves int `yaml:"every_saves" json:"every_saves"`
	Keep       int `yaml:"keep" json:"keep"`
}

// Load reads path over the defaults. An empty path yields the defaults.
// A missing file is returned as an error wrapping os.ErrNotExist.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

func Defaults() Config {
	return Config{
		Listen:     "127.0.0.1:25565",
		ServerName: "server name",
		MOTD:       "motd",
		World: WorldSpec{
			Size:        [3]int{128, 64, 128},
			GroundBlock: 2,
			Spawn:       [3]int{32, 32, 32},
		},
		DataDir:        "data",
		WriteTimeoutMS: 5000,
		Schedule: []ScheduleSpec{
			{EverySeconds: 30, Action: "save"},
		},
		Backups: BackupSpec{EverySaves: 10, Keep: 24},
	}
}

// Normalize trims strings and derives empty paths from DataDir.
func (c *Config) Normalize() {
	c.Listen = strings.TrimSpace(c.Listen)
	c.DataDir = strings.TrimSpace(c.DataDir)
	c.LevelPath = strings.TrimSpace(c.LevelPath)
	if c.Listen == "" {
		c.Listen = Defaults().Listen
	}
	if c.DataDir == "" {
		c.DataDir = Defaults().DataDir
	}
	if c.LevelPath == "" {
		c.LevelPath = filepath.Join(c.DataDir, "level.lvl")
	}
	for i := range c.Schedule {
		c.Schedule[i].Action = strings.ToLower(strings.TrimSpace(c.Schedule[i].Action))
	}
}

// Validate checks the config against the embedded JSON schema and then the
// limits the schema cannot express.
func (c Config) Validate() error {
	schema, err := jsonschema.CompileString("config.schema.json", schemaJSON)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return err
	}

	for i, axis := range []string{"x", "y", "z"} {
		if blocks := c.World.Spawn[i] / 32; blocks >= c.World.Size[i] {
			return fmt.Errorf("world.spawn %s=%d (block %d) is outside size %d", axis, c.World.Spawn[i], blocks, c.World.Size[i])
		}
	}
	for i, s := range c.Schedule {
		if _, err := scheduler.ParseAction(s.Action); err != nil {
			return fmt.Errorf("schedule[%d]: %w", i, err)
		}
		if s.Action == "announce" && strings.TrimSpace(s.Text) == "" {
			return fmt.Errorf("schedule[%d]: announce needs text", i)
		}
	}
	return nil
}

func (c Config) WorldConfig() world.Config {
	return world.Config{
		SizeX:       c.World.Size[0],
		SizeY:       c.World.Size[1],
		SizeZ:       c.World.Size[2],
		GroundBlock: byte(c.World.GroundBlock),
		SpawnX:      uint16(c.World.Spawn[0]),
		SpawnY:      uint16(c.World.Spawn[1]),
		SpawnZ:      uint16(c.World.Spawn[2]),
		ServerName:  c.ServerName,
		MOTD:        c.MOTD,
		LevelPath:   c.LevelPath,
	}
}

func (c Config) ScheduleEntries() ([]scheduler.Entry, error) {
	out := make([]scheduler.Entry, 0, len(c.Schedule))
	for _, s := range c.Schedule {
		a, err := scheduler.ParseAction(s.Action)
		if err != nil {
			return nil, err
		}
		out = append(out, scheduler.Entry{Every: s.EverySeconds, Action: a, Text: s.Text})
	}
	return out, nil
}

func (c Config) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMS) * time.Millisecond
}

func (c Config) BackupDir() string { return filepath.Join(c.DataDir, "backups") }

func (c Config) IndexPath() string { return filepath.Join(c.DataDir, "index.db") }
