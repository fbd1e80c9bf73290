// Package binning rescales particle overlays and volumes by a binning
// factor. The same factor must be used for a volume and the particles drawn
// on top of it, otherwise the two drift apart.
package binning

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"tmvis/internal/models"
)

// ErrInvalidBinningFactor is returned for factors that are not strictly
// positive finite numbers, or not integral where a volume stride is needed
var ErrInvalidBinningFactor = errors.New("invalid binning factor")

// Validate checks that factor can be used as a divisor
func Validate(factor float64) error {
	if math.IsNaN(factor) || math.IsInf(factor, 0) || factor <= 0 {
		return fmt.Errorf("%w: %v (must be > 0)", ErrInvalidBinningFactor, factor)
	}
	return nil
}

// Apply divides positions and a display size by factor.
// A factor of exactly 1 returns the input matrix unchanged, without copying.
func Apply(positions *mat.Dense, sizeBase, factor float64) (*mat.Dense, float64, error) {
	if err := Validate(factor); err != nil {
		return nil, 0, err
	}
	if factor == 1 {
		return positions, sizeBase, nil
	}
	if positions == nil {
		return nil, sizeBase / factor, nil
	}

	var scaled mat.Dense
	scaled.Scale(1/factor, positions)
	return &scaled, sizeBase / factor, nil
}

// Stride converts factor into an integer volume sampling step
func Stride(factor float64) (int, error) {
	if err := Validate(factor); err != nil {
		return 0, err
	}
	if factor != math.Trunc(factor) {
		return 0, fmt.Errorf("%w: %v is not a whole number and cannot be used as a volume stride", ErrInvalidBinningFactor, factor)
	}
	return int(factor), nil
}

// Downsample keeps every stride-th voxel along each axis, starting at 0.
// Each axis of n voxels ends up with ceil(n/stride) samples.
func Downsample(vol *models.Volume, stride int) (*models.Volume, error) {
	if stride < 1 {
		return nil, fmt.Errorf("%w: stride %d", ErrInvalidBinningFactor, stride)
	}
	if stride == 1 {
		return vol, nil
	}

	dims := models.Dims{
		NZ: ceilDiv(vol.Dims.NZ, stride),
		NY: ceilDiv(vol.Dims.NY, stride),
		NX: ceilDiv(vol.Dims.NX, stride),
	}
	out := models.NewVolume(dims)

	i := 0
	for z := 0; z < vol.Dims.NZ; z += stride {
		for y := 0; y < vol.Dims.NY; y += stride {
			row := vol.Index(z, y, 0)
			for x := 0; x < vol.Dims.NX; x += stride {
				out.Data[i] = vol.Data[row+x]
				i++
			}
		}
	}
	return out, nil
}

func ceilDiv(n, d int) int {
	return (n + d - 1) / d
}
