package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Dims holds the voxel dimensions of a volume in (z, y, x) order
type Dims struct {
	NZ, NY, NX int
}

// Known reports whether all three dimensions have been filled in
func (d Dims) Known() bool {
	return d.NZ > 0 && d.NY > 0 && d.NX > 0
}

// Voxels returns the total number of voxels
func (d Dims) Voxels() int {
	return d.NZ * d.NY * d.NX
}

// String formats dims the way volume headers usually print them
func (d Dims) String() string {
	return fmt.Sprintf("(%d, %d, %d)", d.NZ, d.NY, d.NX)
}

// ReconstructionRef identifies one tomogram on disk
type ReconstructionRef struct {
	// Path is the full path of the volume file
	Path string

	// Stem is the filename without directory and extension, used for
	// companion file matching
	Stem string

	// Dims is filled in from the volume header when known
	Dims Dims
}

// Volume is a dense float32 voxel grid stored in z-major order
type Volume struct {
	// Data holds nz*ny*nx voxels; x varies fastest
	Data []float32

	Dims Dims
}

// NewVolume allocates a zeroed volume with the given dimensions
func NewVolume(dims Dims) *Volume {
	return &Volume{
		Data: make([]float32, dims.Voxels()),
		Dims: dims,
	}
}

// Index returns the flat index of voxel (z, y, x)
func (v *Volume) Index(z, y, x int) int {
	return (z*v.Dims.NY+y)*v.Dims.NX + x
}

// At returns voxel (z, y, x)
func (v *Volume) At(z, y, x int) float32 {
	return v.Data[v.Index(z, y, x)]
}

// Set writes voxel (z, y, x)
func (v *Volume) Set(z, y, x int, value float32) {
	v.Data[v.Index(z, y, x)] = value
}

// Convention describes how stored particle coordinates relate to the
// voxel grid of their reconstruction
type Convention int

const (
	// Absolute coordinates are already in voxel units
	Absolute Convention = iota

	// Normalized coordinates are fractions of the volume extent and must be
	// multiplied by (nz, ny, nx); Warp template-matching tables use this
	Normalized
)

// String returns the config spelling of the convention
func (c Convention) String() string {
	switch c {
	case Absolute:
		return "absolute"
	case Normalized:
		return "normalized"
	default:
		return fmt.Sprintf("Convention(%d)", int(c))
	}
}

// ParseConvention converts a config value to a Convention
func ParseConvention(s string) (Convention, error) {
	switch s {
	case "absolute":
		return Absolute, nil
	case "normalized", "normalised", "fractional":
		return Normalized, nil
	default:
		return Absolute, fmt.Errorf("unknown coordinate convention %q (must be absolute or normalized)", s)
	}
}

// ParticleSet holds all particles resolved for one reconstruction
type ParticleSet struct {
	// Source is the particle table the set was read from
	Source string

	// Reconstruction is the stem of the tomogram the particles belong to
	Reconstruction string

	// Positions is an N×3 matrix of absolute voxel coordinates in (z, y, x)
	// order, rows in table order. Nil when the table is empty.
	Positions *mat.Dense

	// Scores holds one figure of merit per row, or nil when the table
	// carries no scores
	Scores []float64
}

// Len returns the number of particles
func (p *ParticleSet) Len() int {
	if p == nil || p.Positions == nil {
		return 0
	}
	r, _ := p.Positions.Dims()
	return r
}

// HasScores reports whether scores were loaded
func (p *ParticleSet) HasScores() bool {
	return p != nil && p.Scores != nil
}
