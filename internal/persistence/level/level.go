// Package level stores the voxel grid as a single gzip file: a 4-byte
// big-endian voxel count followed by the raw voxel bytes. The same blob is
// the payload of the level-transfer sub-protocol.
package level

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

var (
	ErrCorrupt      = errors.New("level: corrupt blob")
	ErrSizeMismatch = errors.New("level: voxel count does not match grid size")
)

// Encode returns the gzip-compressed blob for voxels.
func Encode(voxels []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeTo(&buf, voxels); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeTo(w io.Writer, voxels []byte) error {
	zw, err := gzip.NewWriterLevel(w, gzip.DefaultCompression)
	if err != nil {
		return err
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(voxels)))
	if _, err := zw.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := zw.Write(voxels); err != nil {
		return err
	}
	return zw.Close()
}

// Decode decompresses blob and returns the voxel bytes. The header count must
// match the payload length.
func Decode(blob []byte) ([]byte, error) {
	return decodeFrom(bytes.NewReader(blob))
}

func decodeFrom(r io.Reader) ([]byte, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(raw) < 4 {
		return nil, fmt.Errorf("%w: %d bytes, missing header", ErrCorrupt, len(raw))
	}
	n := binary.BigEndian.Uint32(raw[:4])
	voxels := raw[4:]
	if uint64(n) != uint64(len(voxels)) {
		return nil, fmt.Errorf("%w: header says %d voxels, payload has %d", ErrCorrupt, n, len(voxels))
	}
	return voxels, nil
}

// Save writes voxels to path through a temp file in the same directory, so a
// failed save leaves the previous file in place.
func Save(path string, voxels []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if err := encodeTo(f, voxels); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode level: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Read returns the voxels stored at path without checking them against a grid size.
func Read(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeFrom(f)
}

// Load reads path and requires exactly want voxels.
func Load(path string, want int) ([]byte, error) {
	voxels, err := Read(path)
	if err != nil {
		return nil, err
	}
	if len(voxels) != want {
		return nil, fmt.Errorf("%w: file has %d, grid needs %d", ErrSizeMismatch, len(voxels), want)
	}
	return voxels, nil
}
