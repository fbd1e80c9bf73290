// Package particles turns particle tables into absolute voxel coordinates
// for a given reconstruction.
package particles

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"tmvis/internal/models"
)

// ErrInconsistentParticleData is returned when a table lacks an expected
// column or its score and position counts disagree
var ErrInconsistentParticleData = errors.New("inconsistent particle data")

// Default RELION column names
const (
	ColumnZ     = "rlnCoordinateZ"
	ColumnY     = "rlnCoordinateY"
	ColumnX     = "rlnCoordinateX"
	ColumnScore = "rlnAutopickFigureOfMerit"
)

// Table is one parsed particle table with named columns
type Table interface {
	Len() int
	Has(name string) bool
	Float(name string) ([]float64, error)
}

// TableReader loads the particle table stored at path
type TableReader interface {
	ReadTable(path string) (Table, error)
}

// HeaderReader reads volume dimensions without loading voxel data
type HeaderReader interface {
	ReadHeader(path string) (models.Dims, error)
}

// Columns names the position and score fields of a table family
type Columns struct {
	Z, Y, X string
	Score   string
}

// DefaultColumns returns the RELION/Warp column names
func DefaultColumns() Columns {
	return Columns{Z: ColumnZ, Y: ColumnY, X: ColumnX, Score: ColumnScore}
}

// Resolver reads particle tables and converts their coordinates into
// absolute voxel units
type Resolver struct {
	tables     TableReader
	headers    HeaderReader
	convention models.Convention
	columns    Columns
}

// NewResolver creates a resolver for one particle table family
func NewResolver(tables TableReader, headers HeaderReader, convention models.Convention, columns Columns) *Resolver {
	return &Resolver{
		tables:     tables,
		headers:    headers,
		convention: convention,
		columns:    columns,
	}
}

// Convention returns the coordinate convention of the table family
func (r *Resolver) Convention() models.Convention {
	return r.convention
}

// Resolve reads the table at tablePath and returns its particles in
// absolute voxel coordinates, rows in table order. When withScores is set
// the score column must be present with one value per particle.
//
// Normalized tables need the reconstruction's dimensions; ref.Dims is used
// when already known, otherwise only the volume header is read.
func (r *Resolver) Resolve(ref models.ReconstructionRef, tablePath string, withScores bool) (*models.ParticleSet, error) {
	dims := ref.Dims
	if r.convention == models.Normalized && !dims.Known() {
		var err error
		dims, err = r.headers.ReadHeader(ref.Path)
		if err != nil {
			return nil, fmt.Errorf("reading header of %s: %w", ref.Path, err)
		}
	}

	table, err := r.tables.ReadTable(tablePath)
	if err != nil {
		return nil, fmt.Errorf("reading particle table %s: %w", tablePath, err)
	}

	axes := [3]string{r.columns.Z, r.columns.Y, r.columns.X}
	var coords [3][]float64
	for i, name := range axes {
		if !table.Has(name) {
			return nil, fmt.Errorf("%w: %s has no %s column", ErrInconsistentParticleData, tablePath, name)
		}
		coords[i], err = table.Float(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInconsistentParticleData, tablePath, err)
		}
	}

	n := len(coords[0])
	if len(coords[1]) != n || len(coords[2]) != n {
		return nil, fmt.Errorf("%w: %s has position columns of different lengths", ErrInconsistentParticleData, tablePath)
	}

	set := &models.ParticleSet{
		Source:         tablePath,
		Reconstruction: ref.Stem,
	}

	if withScores {
		if !table.Has(r.columns.Score) {
			return nil, fmt.Errorf("%w: %s has no %s column", ErrInconsistentParticleData, tablePath, r.columns.Score)
		}
		scores, err := table.Float(r.columns.Score)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInconsistentParticleData, tablePath, err)
		}
		if len(scores) != n {
			return nil, fmt.Errorf("%w: %s has %d scores for %d positions", ErrInconsistentParticleData, tablePath, len(scores), n)
		}
		set.Scores = scores
	}

	if n == 0 {
		return set, nil
	}

	scale := [3]float64{1, 1, 1}
	if r.convention == models.Normalized {
		scale = [3]float64{float64(dims.NZ), float64(dims.NY), float64(dims.NX)}
	}

	data := make([]float64, 0, 3*n)
	for row := 0; row < n; row++ {
		for axis := 0; axis < 3; axis++ {
			data = append(data, coords[axis][row]*scale[axis])
		}
	}
	set.Positions = mat.NewDense(n, 3, data)
	return set, nil
}

// Subset returns the positions whose score is at least minScore, keeping
// table order. Sets without scores are returned whole.
func Subset(set *models.ParticleSet, minScore float64) *mat.Dense {
	if set == nil || set.Positions == nil {
		return nil
	}
	if !set.HasScores() {
		return set.Positions
	}

	var keep []int
	for i, s := range set.Scores {
		if s >= minScore {
			keep = append(keep, i)
		}
	}
	if len(keep) == set.Len() {
		return set.Positions
	}
	if len(keep) == 0 {
		return nil
	}

	out := mat.NewDense(len(keep), 3, nil)
	for i, row := range keep {
		out.SetRow(i, set.Positions.RawRowView(row))
	}
	return out
}

// MaxScore returns the highest score in the set and whether there was one
func MaxScore(set *models.ParticleSet) (float64, bool) {
	if set == nil || len(set.Scores) == 0 {
		return 0, false
	}
	return floats.Max(set.Scores), true
}

// Summary describes the score distribution of a particle set
type Summary struct {
	Count     int
	Mean, Std float64
	Min, Max  float64
}

// Summarize computes score statistics; ok is false without scores
func Summarize(set *models.ParticleSet) (Summary, bool) {
	if set == nil || len(set.Scores) == 0 {
		return Summary{}, false
	}
	mean, std := stat.MeanStdDev(set.Scores, nil)
	if len(set.Scores) == 1 {
		std = 0
	}
	return Summary{
		Count: len(set.Scores),
		Mean:  mean,
		Std:   std,
		Min:   floats.Min(set.Scores),
		Max:   floats.Max(set.Scores),
	}, true
}
