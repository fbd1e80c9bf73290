// Package session runs the reconstruction selection handler: it resolves
// the companion files of the chosen tomogram, reads them one at a time,
// normalises particle coordinates and publishes everything to the named
// layer store.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"

	"tmvis/internal/models"
	"tmvis/pkg/binning"
	"tmvis/pkg/config"
	"tmvis/pkg/display"
	"tmvis/pkg/matcher"
	"tmvis/pkg/particles"
)

// ErrExternalRead marks failures reported by the volume or table readers
var ErrExternalRead = errors.New("external read failure")

// VolumeReader reads MRC-style volumes
type VolumeReader interface {
	ReadHeader(path string) (models.Dims, error)
	ReadFull(path string) (*models.Volume, error)
}

// Deps are the collaborators a session talks to
type Deps struct {
	Volumes VolumeReader
	Tables  particles.TableReader
	Sink    display.Sink

	// Logger receives progress messages; nil discards them
	Logger *log.Logger
}

// Session owns the display state for one run of the viewer
type Session struct {
	cfg      config.SessionConfig
	deps     Deps
	logger   *log.Logger
	store    *display.Store
	resolver *particles.Resolver

	refs               []models.ReconstructionRef
	particleFiles      []string
	correlationVolumes []string

	bin      float64
	minScore float64

	current   *models.ReconstructionRef
	particles *models.ParticleSet
}

// New enumerates the reconstructions and companion files described by cfg
func New(cfg config.SessionConfig, deps Deps) (*Session, error) {
	if err := binning.Validate(cfg.Bin); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	s := &Session{
		cfg:      cfg,
		deps:     deps,
		logger:   logger,
		store:    display.NewStore(deps.Sink),
		resolver: particles.NewResolver(deps.Tables, deps.Volumes, cfg.Convention, cfg.Columns),
		bin:      cfg.Bin,
		minScore: cfg.MinScore,
	}

	tomograms := cfg.Tomograms
	if len(tomograms) == 0 {
		var err error
		tomograms, err = matcher.Enumerate(cfg.ReconstructionDir, cfg.TomogramPattern)
		if err != nil {
			return nil, err
		}
	}
	for _, path := range tomograms {
		s.refs = append(s.refs, models.ReconstructionRef{Path: path, Stem: matcher.Stem(path)})
	}
	logger.Printf("found %d tomogram files", len(s.refs))

	if cfg.LoadParticles {
		files, err := matcher.Enumerate(cfg.MatchingDir, cfg.ParticlePattern)
		if err != nil {
			return nil, err
		}
		s.particleFiles = files
		logger.Printf("found %d particle files", len(files))
	} else {
		logger.Println("no matching directory provided -> wont load particles")
	}

	if cfg.LoadCorrelationVolumes {
		files, err := matcher.Enumerate(cfg.MatchingDir, cfg.CorrelationVolumePattern)
		if err != nil {
			return nil, err
		}
		s.correlationVolumes = files
		logger.Printf("found %d correlation volume files", len(files))
	} else {
		logger.Println("no correlation volume pattern provided -> wont load correlation volumes")
	}

	if !cfg.LoadVolumes {
		logger.Println("no reconstruction directory provided -> wont load tomograms")
	}

	if err := s.defineLayers(); err != nil {
		return nil, err
	}
	return s, nil
}

// defineLayers registers the creation properties of the three layers
func (s *Session) defineLayers() error {
	s.store.Define(display.TomogramLayer, display.Image, display.Props{
		Colormap: "gray_r",
	})
	s.store.Define(display.CorrelationVolumeLayer, display.Image, display.Props{
		Colormap:       "inferno",
		ContrastLimits: []float64{2, 10},
		Blending:       "additive",
	})

	props, err := s.particleProps(s.bin)
	if err != nil {
		return err
	}
	s.store.Define(display.ParticlesLayer, display.Points, props)
	return nil
}

// particleProps returns the particle marker properties for a binning factor
func (s *Session) particleProps(bin float64) (display.Props, error) {
	props := display.Props{
		FaceColor:         "orange",
		OutOfSliceDisplay: true,
		Opacity:           0.5,
	}
	base := s.cfg.PlainSize
	if s.cfg.WithScores {
		base = s.cfg.ScoredSize
		props.Opacity = 0.75
	}
	_, size, err := binning.Apply(nil, base, bin)
	if err != nil {
		return props, err
	}
	props.Size = size
	return props, nil
}

// References returns the selectable reconstructions in enumeration order
func (s *Session) References() []models.ReconstructionRef {
	refs := make([]models.ReconstructionRef, len(s.refs))
	copy(refs, s.refs)
	return refs
}

// Lookup finds a reconstruction by stem, base name or path
func (s *Session) Lookup(name string) (models.ReconstructionRef, bool) {
	for _, ref := range s.refs {
		if ref.Stem == name || ref.Path == name || filepath.Base(ref.Path) == name {
			return ref, true
		}
	}
	return models.ReconstructionRef{}, false
}

// Store exposes the named-layer store
func (s *Session) Store() *display.Store {
	return s.store
}

// Current returns the last successfully selected reconstruction
func (s *Session) Current() (models.ReconstructionRef, bool) {
	if s.current == nil {
		return models.ReconstructionRef{}, false
	}
	return *s.current, true
}

// Particles returns the particle set on display, already binned
func (s *Session) Particles() *models.ParticleSet {
	return s.particles
}

// Bin returns the binning factor applied to the next selection
func (s *Session) Bin() float64 {
	return s.bin
}

// MinScore returns the current score threshold
func (s *Session) MinScore() float64 {
	return s.minScore
}

// Config returns the session configuration
func (s *Session) Config() config.SessionConfig {
	return s.cfg
}

// loaded collects everything read for one selection before it is published
type loaded struct {
	particles   *models.ParticleSet
	correlation *models.Volume
	tomogram    *models.Volume
}

// Select loads ref and publishes it to the display. Errors abort the
// selection, are reported through the sink and returned. Nothing is
// published until every read has succeeded, so a failed read leaves the
// previous reconstruction on display.
func (s *Session) Select(ctx context.Context, ref models.ReconstructionRef) error {
	l, err := s.load(ctx, &ref)
	if err != nil {
		err = classify(err)
		s.store.Notify(display.Error, "failed to load %s: %v", ref.Stem, err)
		return err
	}

	// Display errors are passed on as they are
	if err := s.publish(ref, l); err != nil {
		s.store.Notify(display.Error, "failed to display %s: %v", ref.Stem, err)
		return err
	}
	return nil
}

// load reads the artifacts of ref in order: header and particle table,
// correlation volume, then the tomogram itself
func (s *Session) load(ctx context.Context, ref *models.ReconstructionRef) (loaded, error) {
	var l loaded
	if err := binning.Validate(s.bin); err != nil {
		return l, err
	}
	stride := 1
	if s.cfg.LoadVolumes || s.cfg.LoadCorrelationVolumes {
		var err error
		if stride, err = binning.Stride(s.bin); err != nil {
			return l, err
		}
	}

	// Header (when normalized) and particle table
	if s.cfg.LoadParticles {
		tablePath, err := matcher.Resolve(ref.Stem, s.particleFiles, matcher.ParticleTableConvention{
			ReconstructionPattern: s.cfg.TomogramPattern,
		})
		if err != nil {
			return l, err
		}
		s.logger.Printf("loading particle metadata from %s...", tablePath)
		set, err := s.resolver.Resolve(*ref, tablePath, s.cfg.WithScores)
		if err != nil {
			return l, err
		}
		s.logger.Printf("%d particles loaded", set.Len())
		l.particles = set
	}
	if err := ctx.Err(); err != nil {
		return l, err
	}

	// Correlation volume
	if s.cfg.LoadCorrelationVolumes {
		path, err := matcher.Resolve(ref.Stem, s.correlationVolumes, matcher.CorrelationVolumeConvention{})
		if err != nil {
			return l, err
		}
		s.logger.Printf("loading correlation volume from %s...", path)
		vol, err := s.deps.Volumes.ReadFull(path)
		if err != nil {
			return l, fmt.Errorf("%w: %s: %w", ErrExternalRead, path, err)
		}
		if l.correlation, err = binning.Downsample(vol, stride); err != nil {
			return l, err
		}
	}
	if err := ctx.Err(); err != nil {
		return l, err
	}

	// Volume data
	if s.cfg.LoadVolumes {
		s.logger.Printf("loading tomogram from %s...", ref.Path)
		vol, err := s.deps.Volumes.ReadFull(ref.Path)
		if err != nil {
			return l, fmt.Errorf("%w: %s: %w", ErrExternalRead, ref.Path, err)
		}
		ref.Dims = vol.Dims
		if stride != 1 {
			s.logger.Printf("binning tomogram by %d...", stride)
		}
		if l.tomogram, err = binning.Downsample(vol, stride); err != nil {
			return l, err
		}
	}
	if err := ctx.Err(); err != nil {
		return l, err
	}

	return l, nil
}

// publish upserts the loaded artifacts into the layer store
func (s *Session) publish(ref models.ReconstructionRef, l loaded) error {
	if l.tomogram != nil {
		if err := s.store.Upsert(display.TomogramLayer, l.tomogram, display.Metadata{
			display.MetaSource: ref.Path,
		}); err != nil {
			return err
		}
	}

	if l.correlation != nil {
		if err := s.store.Upsert(display.CorrelationVolumeLayer, l.correlation, display.Metadata{
			display.MetaSource: ref.Path,
		}); err != nil {
			return err
		}
	}

	if l.particles != nil {
		positions, _, err := binning.Apply(l.particles.Positions, 0, s.bin)
		if err != nil {
			return err
		}
		binned := &models.ParticleSet{
			Source:         l.particles.Source,
			Reconstruction: l.particles.Reconstruction,
			Positions:      positions,
			Scores:         l.particles.Scores,
		}

		metadata := display.Metadata{
			display.MetaPositions: binned.Positions,
			display.MetaSource:    ref.Path,
		}
		if binned.HasScores() {
			metadata[display.MetaScores] = binned.Scores
		}
		if err := s.store.Upsert(display.ParticlesLayer, particles.Subset(binned, s.minScore), metadata); err != nil {
			return err
		}
		s.particles = binned

		if best, ok := particles.MaxScore(binned); ok {
			s.store.Notify(display.Info, "max cc for %s is %g", filepath.Base(ref.Path), best)
		}
	}

	s.current = &ref
	return nil
}

// SetMinScore changes the score threshold and refilters the particles on
// display without reloading anything
func (s *Session) SetMinScore(minScore float64) error {
	s.minScore = minScore
	if s.particles == nil || s.store.State(display.ParticlesLayer) != display.Present {
		return nil
	}
	return s.store.SetData(display.ParticlesLayer, particles.Subset(s.particles, minScore))
}

// SetBinning changes the binning factor. Volumes and positions pick it up
// on the next selection; the particle marker size changes right away.
func (s *Session) SetBinning(factor float64) error {
	if s.cfg.LoadVolumes || s.cfg.LoadCorrelationVolumes {
		if _, err := binning.Stride(factor); err != nil {
			return err
		}
	}
	props, err := s.particleProps(factor)
	if err != nil {
		return err
	}
	if err := s.store.SetProps(display.ParticlesLayer, props); err != nil {
		return err
	}
	s.bin = factor
	return nil
}

// classify marks errors that did not come from this package's own checks
// as external read failures, so callers can tell data problems from I/O
func classify(err error) error {
	switch {
	case errors.Is(err, ErrExternalRead),
		errors.Is(err, matcher.ErrAmbiguousOrMissingMatch),
		errors.Is(err, particles.ErrInconsistentParticleData),
		errors.Is(err, binning.ErrInvalidBinningFactor),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrExternalRead, err)
	}
}
