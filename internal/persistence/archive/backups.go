package archive

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"

	"classicraft.net/internal/persistence/level"
	"classicraft.net/internal/sim/world"
)

const (
	voxelsFile = "voxels.zst"
	metaFile   = "meta.json"
)

var ErrDigestMismatch = errors.New("archive: backup digest mismatch")

type BackupMeta struct {
	Dir       string `json:"-"`
	SourceSeq uint64 `json:"source_seq"`
	Source    string `json:"source"`
	Digest    string `json:"digest"`
	Size      [3]int `json:"size"`
	Voxels    int    `json:"voxels"`
	CreatedAt string `json:"created_at"`
}

// Recorder is notified of every backup taken (optional).
type Recorder interface {
	RecordBackup(path, digest string, sourceSeq uint64)
}

// Rotator copies the level into <dir>/<stamp>/ after every Nth save and keeps
// the newest Keep backups. It runs on the world goroutine via world.SaveHook.
type Rotator struct {
	Dir   string
	Every int
	Keep  int

	logger   *log.Logger
	recorder Recorder
	saves    int
}

func NewRotator(dir string, every, keep int, logger *log.Logger) *Rotator {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Rotator{Dir: dir, Every: every, Keep: keep, logger: logger}
}

func (r *Rotator) SetRecorder(rec Recorder) { r.recorder = rec }

func (r *Rotator) LevelSaved(info world.SaveInfo) error {
	if r.Every <= 0 {
		return nil
	}
	r.saves++
	if r.saves%r.Every != 0 {
		return nil
	}
	meta, err := Backup(r.Dir, info)
	if err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	r.logger.Printf("backup %s (seq=%d)", meta.Dir, meta.SourceSeq)
	if r.recorder != nil {
		r.recorder.RecordBackup(meta.Dir, meta.Digest, meta.SourceSeq)
	}
	if r.Keep > 0 {
		removed, err := Prune(r.Dir, r.Keep)
		if err != nil {
			return fmt.Errorf("prune backups: %w", err)
		}
		for _, d := range removed {
			r.logger.Printf("pruned backup %s", d)
		}
	}
	return nil
}

// Backup reads the saved level and stores its voxels zstd-compressed with a meta.json.
func Backup(dir string, info world.SaveInfo) (BackupMeta, error) {
	voxels, err := level.Read(info.Path)
	if err != nil {
		return BackupMeta{}, err
	}
	digest := digestOf(voxels)
	if info.Digest != "" && digest != info.Digest {
		return BackupMeta{}, fmt.Errorf("%w: file %s, save reported %s", ErrDigestMismatch, digest, info.Digest)
	}

	at := info.At
	if at.IsZero() {
		at = time.Now()
	}
	backupDir := filepath.Join(dir, fmt.Sprintf("%d-%08d", at.UTC().UnixMilli(), info.Seq))
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return BackupMeta{}, err
	}
	if err := writeZstd(filepath.Join(backupDir, voxelsFile), voxels); err != nil {
		return BackupMeta{}, err
	}

	meta := BackupMeta{
		Dir:       backupDir,
		SourceSeq: info.Seq,
		Source:    info.Path,
		Digest:    digest,
		Size:      info.Size,
		Voxels:    len(voxels),
		CreatedAt: at.UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return BackupMeta{}, err
	}
	if err := os.WriteFile(filepath.Join(backupDir, metaFile), b, 0o644); err != nil {
		return BackupMeta{}, err
	}
	return meta, nil
}

// List returns backups under dir, newest first. Entries without a readable
// meta.json are skipped.
func List(dir string) ([]BackupMeta, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []BackupMeta
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		d := filepath.Join(dir, e.Name())
		meta, err := ReadMeta(d)
		if err != nil {
			continue
		}
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return filepath.Base(out[i].Dir) > filepath.Base(out[j].Dir) })
	return out, nil
}

func ReadMeta(backupDir string) (BackupMeta, error) {
	var meta BackupMeta
	b, err := os.ReadFile(filepath.Join(backupDir, metaFile))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(b, &meta); err != nil {
		return meta, fmt.Errorf("%s: %w", metaFile, err)
	}
	meta.Dir = backupDir
	return meta, nil
}

// Prune removes all but the newest keep backups and returns the removed dirs.
func Prune(dir string, keep int) ([]string, error) {
	all, err := List(dir)
	if err != nil {
		return nil, err
	}
	var removed []string
	for i := keep; i < len(all); i++ {
		if err := os.RemoveAll(all[i].Dir); err != nil {
			return removed, err
		}
		removed = append(removed, all[i].Dir)
	}
	return removed, nil
}

// ReadVoxels decompresses a backup and checks it against its meta digest.
func ReadVoxels(backupDir string) ([]byte, BackupMeta, error) {
	meta, err := ReadMeta(backupDir)
	if err != nil {
		return nil, meta, err
	}
	f, err := os.Open(filepath.Join(backupDir, voxelsFile))
	if err != nil {
		return nil, meta, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, meta, err
	}
	defer dec.Close()
	voxels, err := io.ReadAll(dec)
	if err != nil {
		return nil, meta, err
	}
	if got := digestOf(voxels); got != meta.Digest {
		return nil, meta, fmt.Errorf("%w: %s has %s, meta says %s", ErrDigestMismatch, backupDir, got, meta.Digest)
	}
	return voxels, meta, nil
}

// Restore writes a backup back to levelPath in the live level format.
func Restore(backupDir, levelPath string) (BackupMeta, error) {
	voxels, meta, err := ReadVoxels(backupDir)
	if err != nil {
		return meta, err
	}
	return meta, level.Save(levelPath, voxels)
}

func writeZstd(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)
	if _, err := bw.Write(data); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Close()
}

func digestOf(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
