package particles

import (
	"errors"
	"fmt"

	"tmvis/pkg/starfile"
)

// STARReader reads particle tables from RELION/Warp STAR files
type STARReader struct{}

// ReadTable implements TableReader. A file without a particle table is
// inconsistent data, not a read failure.
func (STARReader) ReadTable(path string) (Table, error) {
	b, err := starfile.ReadParticles(path)
	if errors.Is(err, starfile.ErrNoTable) {
		return nil, fmt.Errorf("%w: %w", ErrInconsistentParticleData, err)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}
