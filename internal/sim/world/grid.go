package world

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

var ErrOutOfBounds = errors.New("world: position out of bounds")

// Grid is a fixed-size voxel array, one byte per voxel, 0 = air.
// Voxels are laid out at x + sx*(z + sz*y).
type Grid struct {
	sx, sy, sz int
	voxels     []byte
}

func NewGrid(sx, sy, sz int) *Grid {
	return &Grid{sx: sx, sy: sy, sz: sz, voxels: make([]byte, sx*sy*sz)}
}

func (g *Grid) Size() (x, y, z int) { return g.sx, g.sy, g.sz }

// Volume is the number of voxels.
func (g *Grid) Volume() int { return len(g.voxels) }

func (g *Grid) InBounds(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < g.sx && y < g.sy && z < g.sz
}

func (g *Grid) Index(x, y, z int) int {
	return x + g.sx*(z+g.sz*y)
}

// Block returns the voxel at (x,y,z), or 0 when out of bounds.
func (g *Grid) Block(x, y, z int) byte {
	if !g.InBounds(x, y, z) {
		return 0
	}
	return g.voxels[g.Index(x, y, z)]
}

// Set writes v at (x,y,z) and returns the previous value. Out-of-range writes
// are rejected and leave the grid unchanged.
func (g *Grid) Set(x, y, z int, v byte) (byte, error) {
	if !g.InBounds(x, y, z) {
		return 0, fmt.Errorf("%w: (%d,%d,%d) outside %dx%dx%d", ErrOutOfBounds, x, y, z, g.sx, g.sy, g.sz)
	}
	i := g.Index(x, y, z)
	prev := g.voxels[i]
	g.voxels[i] = v
	return prev, nil
}

// Voxels exposes the backing array. Callers must not retain it across commands.
func (g *Grid) Voxels() []byte { return g.voxels }

// Replace swaps in a full voxel array of exactly Volume() bytes.
func (g *Grid) Replace(voxels []byte) error {
	if len(voxels) != len(g.voxels) {
		return fmt.Errorf("world: replace with %d voxels, grid has %d", len(voxels), len(g.voxels))
	}
	copy(g.voxels, voxels)
	return nil
}

// Fill sets a whole horizontal layer without any broadcast.
func (g *Grid) Fill(y int, v byte) {
	if y < 0 || y >= g.sy {
		return
	}
	for z := 0; z < g.sz; z++ {
		for x := 0; x < g.sx; x++ {
			g.voxels[g.Index(x, y, z)] = v
		}
	}
}

// Digest is the hex sha256 of the voxel array.
func (g *Grid) Digest() string {
	sum := sha256.Sum256(g.voxels)
	return hex.EncodeToString(sum[:])
}
