package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"tmvis/internal/models"
	"tmvis/internal/tui"
	"tmvis/pkg/config"
	"tmvis/pkg/mrc"
	"tmvis/pkg/particles"
	"tmvis/pkg/session"
	"tmvis/pkg/visualization"
)

var (
	flagConfig         string
	flagReconstruction string
	flagMatching       string
	flagTomogramPat    string
	flagParticlePat    string
	flagCorrelationPat string
	flagBin            float64
	flagConvention     string
	flagSnapshotDir    string
	flagSlicesDir      string
	flagMinScore       float64
	flagSelect         []string
	flagNoTUI          bool
)

var rootCmd = &cobra.Command{
	Use:   "tmvis",
	Short: "Browse tomograms with their template matching particles and correlation volumes",
	Long: `tmvis lists the tomograms of a reconstruction directory and, for the one
selected, loads the particle table and correlation volume that belong to it
from the matching directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(flagConfig)
		if err != nil {
			return err
		}
		applyFlags(cmd, cfg)

		sc, err := cfg.Session()
		if err != nil {
			return err
		}

		interactive := !flagNoTUI && len(flagSelect) == 0
		return run(sc, interactive)
	},
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config [path]",
	Short: "Write a configuration file with default values",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "tmvis.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.CreateDefaultConfigFile(path); err != nil {
			return err
		}
		fmt.Printf("Default configuration written to %s\n", path)
		return nil
	},
}

// applyFlags copies the flags given on the command line over the file values
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("reconstruction-directory") {
		cfg.Sources.ReconstructionDir = flagReconstruction
	}
	if flags.Changed("matching-directory") {
		cfg.Sources.MatchingDir = flagMatching
	}
	if flags.Changed("tomogram-matching-pattern") {
		cfg.Sources.TomogramPattern = flagTomogramPat
	}
	if flags.Changed("particle-matching-pattern") {
		cfg.Sources.ParticlePattern = flagParticlePat
	}
	if flags.Changed("correlation-volume-pattern") {
		cfg.Sources.CorrelationVolumePattern = flagCorrelationPat
	}
	if flags.Changed("bin") {
		cfg.Display.Bin = flagBin
	}
	if flags.Changed("convention") {
		cfg.Particles.Convention = flagConvention
	}
	if flags.Changed("snapshot-dir") {
		cfg.Display.SnapshotDir = flagSnapshotDir
	}
	if flags.Changed("slices-dir") {
		cfg.Display.SlicesDir = flagSlicesDir
	}
	if flags.Changed("min-score") {
		cfg.Display.MinScore = flagMinScore
	}
}

func run(sc config.SessionConfig, interactive bool) error {
	var notifications io.Writer = os.Stdout
	var progress io.Writer = os.Stderr
	var history *tui.Log
	if interactive {
		// Anything printed outside the picker would be drawn over
		history = tui.NewLog(8)
		notifications = history
		progress = history
	}
	if !sc.Verbose {
		progress = io.Discard
	}

	viewer := visualization.NewViewer(notifications)
	s, err := session.New(sc, session.Deps{
		Volumes: mrc.Reader{},
		Tables:  particles.STARReader{},
		Sink:    viewer,
		Logger:  log.New(progress, "", log.LstdFlags),
	})
	if err != nil {
		return err
	}

	snapshot := func(ref models.ReconstructionRef) (string, error) {
		return viewer.SaveSnapshot(sc.SnapshotDir, ref.Stem)
	}

	if interactive {
		cfg := tui.Config{
			Session:  s,
			Log:      history,
			Describe: viewer.Describe,
		}
		if sc.SnapshotDir != "" && sc.LoadVolumes {
			cfg.Snapshot = snapshot
		}
		_, err := tea.NewProgram(tui.New(cfg)).Run()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	refs := s.References()
	if len(flagSelect) > 0 {
		refs = refs[:0]
		for _, name := range flagSelect {
			ref, ok := s.Lookup(name)
			if !ok {
				return fmt.Errorf("no reconstruction named %s", name)
			}
			refs = append(refs, ref)
		}
	}

	failed := 0
	for _, ref := range refs {
		if err := s.Select(ctx, ref); err != nil {
			if ctx.Err() != nil {
				return err
			}
			failed++
			continue
		}

		if summary, ok := particles.Summarize(s.Particles()); ok {
			fmt.Printf("%s: %d particles, cc %.3f ± %.3f (min %.3f, max %.3f)\n",
				ref.Stem, summary.Count, summary.Mean, summary.Std, summary.Min, summary.Max)
		}

		if sc.SnapshotDir != "" && sc.LoadVolumes {
			path, err := snapshot(ref)
			if err != nil {
				return fmt.Errorf("snapshot of %s: %w", ref.Stem, err)
			}
			fmt.Printf("Snapshot saved to: %s\n", path)
		}

		if sc.SlicesDir != "" && sc.LoadVolumes {
			dirs, err := exportSlices(viewer, sc.SlicesDir, ref.Stem)
			if err != nil {
				return err
			}
			for _, dir := range dirs {
				fmt.Printf("Slices saved to: %s\n", dir)
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d reconstructions failed to load", failed, len(refs))
	}
	return nil
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&flagConfig, "config", "", "path to a YAML configuration file")
	flags.StringVarP(&flagReconstruction, "reconstruction-directory", "r", "", "directory containing the tomograms")
	flags.StringVarP(&flagMatching, "matching-directory", "m", "", "directory containing particle tables and correlation volumes")
	flags.StringVar(&flagTomogramPat, "tomogram-matching-pattern", "*.mrc", "glob pattern of the tomograms")
	flags.StringVar(&flagParticlePat, "particle-matching-pattern", "*.star", "glob pattern of the particle tables")
	flags.StringVar(&flagCorrelationPat, "correlation-volume-pattern", "", "glob pattern of the correlation volumes")
	flags.Float64VarP(&flagBin, "bin", "b", 1.0, "binning factor applied to volumes and particle coordinates")
	flags.StringVar(&flagConvention, "convention", "", "particle coordinate convention: absolute or normalized")
	flags.StringVar(&flagSnapshotDir, "snapshot-dir", "", "write a JPEG of the central slice for each selection")
	flags.StringVar(&flagSlicesDir, "slices-dir", "", "write every x, y and z slice of each selection as JPEG (with --select or --no-tui)")
	flags.Float64Var(&flagMinScore, "min-score", 0, "hide particles scoring below this value")
	flags.StringSliceVar(&flagSelect, "select", nil, "load these reconstructions without the picker")
	flags.BoolVar(&flagNoTUI, "no-tui", false, "load every reconstruction in turn without the picker")

	rootCmd.AddCommand(initConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, filepath.Base(os.Args[0])+":", err)
		os.Exit(1)
	}
}
