// Package config provides configuration loading and management for tmvis.
// It handles loading configuration from YAML files, provides default values
// and derives the immutable SessionConfig used by the selection handler.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"tmvis/internal/models"
	"tmvis/pkg/binning"
	"tmvis/pkg/particles"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Sources locates the reconstructions and their companion files
	Sources struct {
		// ReconstructionDir holds the tomograms; empty disables volume loading
		ReconstructionDir string `yaml:"reconstructionDir"`

		// MatchingDir holds particle tables and correlation volumes; empty
		// disables particle loading
		MatchingDir string `yaml:"matchingDir"`

		// TomogramPattern enumerates tomograms and is stripped from their
		// stems to find the particle table
		TomogramPattern string `yaml:"tomogramPattern"`

		// ParticlePattern enumerates particle tables
		ParticlePattern string `yaml:"particlePattern"`

		// CorrelationVolumePattern enumerates correlation volumes; empty
		// disables them
		CorrelationVolumePattern string `yaml:"correlationVolumePattern"`

		// Tomograms lists reconstructions explicitly. It replaces the scan of
		// ReconstructionDir and allows particle-only sessions.
		Tomograms []string `yaml:"tomograms,omitempty"`
	} `yaml:"sources"`

	// Particles describes the particle table family
	Particles struct {
		// Convention is "absolute" or "normalized". Empty means normalized
		// when correlation volumes are loaded and absolute otherwise.
		Convention string `yaml:"convention"`

		// Column names for positions and the figure of merit
		ColumnZ     string `yaml:"columnZ"`
		ColumnY     string `yaml:"columnY"`
		ColumnX     string `yaml:"columnX"`
		ScoreColumn string `yaml:"scoreColumn"`

		// ScoredSize is the marker size for tables with scores, before binning
		ScoredSize float64 `yaml:"scoredSize"`

		// PlainSize is the marker size for tables without scores, before binning
		PlainSize float64 `yaml:"plainSize"`
	} `yaml:"particles"`

	// Display parameters
	Display struct {
		// Bin divides volume sampling and particle coordinates
		Bin float64 `yaml:"bin"`

		// MinScore is the initial score threshold for the particle overlay
		MinScore float64 `yaml:"minScore"`

		// SnapshotDir receives a JPEG of the central slice after each selection
		SnapshotDir string `yaml:"snapshotDir"`

		// SlicesDir receives every x, y and z slice of each selection
		SlicesDir string `yaml:"slicesDir"`
	} `yaml:"display"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Sources.TomogramPattern = "*.mrc"
	cfg.Sources.ParticlePattern = "*.star"

	cfg.Particles.ColumnZ = particles.ColumnZ
	cfg.Particles.ColumnY = particles.ColumnY
	cfg.Particles.ColumnX = particles.ColumnX
	cfg.Particles.ScoreColumn = particles.ColumnScore
	cfg.Particles.ScoredSize = 6
	cfg.Particles.PlainSize = 40

	cfg.Display.Bin = 1.0

	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// SessionConfig is the resolved, read-only view of Config that the
// selection handler works from
type SessionConfig struct {
	LoadVolumes            bool
	LoadParticles          bool
	LoadCorrelationVolumes bool

	ReconstructionDir        string
	MatchingDir              string
	TomogramPattern          string
	ParticlePattern          string
	CorrelationVolumePattern string
	Tomograms                []string

	Convention models.Convention
	Columns    particles.Columns

	// WithScores is set when particle scores are read, which is the case
	// for Warp tables that come with correlation volumes
	WithScores bool

	ScoredSize float64
	PlainSize  float64

	Bin         float64
	MinScore    float64
	SnapshotDir string
	SlicesDir   string
	Verbose     bool
}

// Session validates the configuration and derives the SessionConfig
func (c *Config) Session() (SessionConfig, error) {
	s := SessionConfig{
		LoadVolumes:            c.Sources.ReconstructionDir != "",
		LoadParticles:          c.Sources.MatchingDir != "",
		LoadCorrelationVolumes: c.Sources.CorrelationVolumePattern != "",

		ReconstructionDir:        c.Sources.ReconstructionDir,
		MatchingDir:              c.Sources.MatchingDir,
		TomogramPattern:          c.Sources.TomogramPattern,
		ParticlePattern:          c.Sources.ParticlePattern,
		CorrelationVolumePattern: c.Sources.CorrelationVolumePattern,
		Tomograms:                append([]string(nil), c.Sources.Tomograms...),

		Columns: particles.Columns{
			Z:     c.Particles.ColumnZ,
			Y:     c.Particles.ColumnY,
			X:     c.Particles.ColumnX,
			Score: c.Particles.ScoreColumn,
		},

		ScoredSize:  c.Particles.ScoredSize,
		PlainSize:   c.Particles.PlainSize,
		Bin:         c.Display.Bin,
		MinScore:    c.Display.MinScore,
		SnapshotDir: c.Display.SnapshotDir,
		SlicesDir:   c.Display.SlicesDir,
		Verbose:     c.Output.Verbose,
	}

	if s.TomogramPattern == "" {
		return s, fmt.Errorf("tomogram pattern must not be empty")
	}
	if s.LoadParticles && s.ParticlePattern == "" {
		return s, fmt.Errorf("particle pattern must not be empty when a matching directory is set")
	}
	if s.LoadCorrelationVolumes && s.MatchingDir == "" {
		return s, fmt.Errorf("correlation volume pattern %q needs a matching directory", s.CorrelationVolumePattern)
	}

	if err := binning.Validate(s.Bin); err != nil {
		return s, err
	}
	if s.LoadVolumes || s.LoadCorrelationVolumes {
		if _, err := binning.Stride(s.Bin); err != nil {
			return s, err
		}
	}

	if c.Particles.Convention == "" {
		s.Convention = models.Absolute
		if s.LoadCorrelationVolumes {
			s.Convention = models.Normalized
		}
	} else {
		conv, err := models.ParseConvention(c.Particles.Convention)
		if err != nil {
			return s, err
		}
		s.Convention = conv
	}
	s.WithScores = s.LoadCorrelationVolumes

	return s, nil
}
