// Package matcher resolves the companion files of a reconstruction.
// A reconstruction is paired with exactly one particle table and, when
// requested, exactly one correlation volume by filename prefix. Anything
// other than a single match is an error; no closest-name guessing is done.
package matcher

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ErrAmbiguousOrMissingMatch is returned when zero or several candidates
// share the derived core identifier
var ErrAmbiguousOrMissingMatch = errors.New("ambiguous or missing match")

// MatchError carries the details of a failed resolution
type MatchError struct {
	// Reference is the stem of the reconstruction being matched
	Reference string

	// Core is the prefix candidates were compared against
	Core string

	// Count is the number of candidates that matched
	Count int
}

func (e *MatchError) Error() string {
	if e.Count == 0 {
		return fmt.Sprintf("%v: no file starting with %q for %s", ErrAmbiguousOrMissingMatch, e.Core, e.Reference)
	}
	return fmt.Sprintf("%v: %d files start with %q for %s", ErrAmbiguousOrMissingMatch, e.Count, e.Core, e.Reference)
}

func (e *MatchError) Unwrap() error {
	return ErrAmbiguousOrMissingMatch
}

// Convention derives the comparable core identifier from a reconstruction stem
type Convention interface {
	Core(stem string) string
}

// ParticleTableConvention strips the reconstruction filename pattern suffix
// from the stem, so "TS_01_10.000Apx" with pattern "*_10.000Apx.mrc" gives
// the core "TS_01"
type ParticleTableConvention struct {
	ReconstructionPattern string
}

// Core implements Convention
func (c ParticleTableConvention) Core(stem string) string {
	suffix := patternSuffix(c.ReconstructionPattern)
	if suffix == "" {
		return stem
	}
	if strings.HasSuffix(stem, suffix) && len(stem) > len(suffix) {
		return strings.TrimSuffix(stem, suffix)
	}

	// Stems have lost their extension already, so try the suffix without it
	bare := strings.TrimSuffix(suffix, filepath.Ext(suffix))
	if bare != "" && strings.HasSuffix(stem, bare) && len(stem) > len(bare) {
		return strings.TrimSuffix(stem, bare)
	}
	return stem
}

// CorrelationVolumeConvention uses the raw stem as the prefix
type CorrelationVolumeConvention struct{}

// Core implements Convention
func (CorrelationVolumeConvention) Core(stem string) string {
	return stem
}

// patternSuffix returns the literal text after the last wildcard of a glob
func patternSuffix(pattern string) string {
	if i := strings.LastIndexAny(pattern, "*?]"); i >= 0 {
		return pattern[i+1:]
	}
	return ""
}

// Resolve returns the single candidate whose base name starts with the core
// identifier derived from referenceStem. Candidate order is irrelevant to
// the outcome; zero or multiple matches fail with a *MatchError.
func Resolve(referenceStem string, candidates []string, conv Convention) (string, error) {
	core := referenceStem
	if conv != nil {
		core = conv.Core(referenceStem)
	}

	var matches []string
	for _, candidate := range candidates {
		if strings.HasPrefix(filepath.Base(candidate), core) {
			matches = append(matches, candidate)
		}
	}

	if len(matches) != 1 {
		return "", &MatchError{
			Reference: referenceStem,
			Core:      core,
			Count:     len(matches),
		}
	}
	return matches[0], nil
}

// Stem returns the base name of path without its final extension
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Enumerate lists the files in dir matching a glob pattern, sorted by name
func Enumerate(dir, pattern string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	files, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	sort.Strings(files)
	return files, nil
}
