package matcher

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestResolveParticleTable covers single, missing and ambiguous matches
func TestResolveParticleTable(t *testing.T) {
	conv := ParticleTableConvention{ReconstructionPattern: "*.mrc"}

	tests := []struct {
		name       string
		stem       string
		candidates []string
		want       string
		wantCount  int
	}{
		{
			name:       "single match",
			stem:       "TS_01",
			candidates: []string{"TS_01_particles.star", "TS_02_particles.star"},
			want:       "TS_01_particles.star",
		},
		{
			name:       "two matches",
			stem:       "TS_01",
			candidates: []string{"TS_01_a.star", "TS_01_b.star"},
			wantCount:  2,
		},
		{
			name:       "no match",
			stem:       "TS_03",
			candidates: []string{"TS_01_particles.star", "TS_02_particles.star"},
			wantCount:  0,
		},
		{
			name:       "empty candidate set",
			stem:       "TS_01",
			candidates: nil,
			wantCount:  0,
		},
		{
			name:       "directories are ignored when comparing",
			stem:       "TS_01",
			candidates: []string{"/data/TS_01/TS_02_particles.star", "/data/x/TS_01_particles.star"},
			want:       "/data/x/TS_01_particles.star",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.stem, tt.candidates, conv)
			if tt.want != "" {
				if err != nil {
					t.Fatalf("Unexpected error: %v", err)
				}
				if got != tt.want {
					t.Errorf("Expected %q, got %q", tt.want, got)
				}
				return
			}

			if !errors.Is(err, ErrAmbiguousOrMissingMatch) {
				t.Fatalf("Expected ErrAmbiguousOrMissingMatch, got %v", err)
			}
			var matchErr *MatchError
			if !errors.As(err, &matchErr) {
				t.Fatalf("Expected *MatchError, got %T", err)
			}
			if matchErr.Count != tt.wantCount {
				t.Errorf("Expected count %d, got %d", tt.wantCount, matchErr.Count)
			}
			if matchErr.Reference != tt.stem {
				t.Errorf("Expected reference %q, got %q", tt.stem, matchErr.Reference)
			}
		})
	}
}

// TestParticleTableCore verifies how the reconstruction pattern suffix is stripped
func TestParticleTableCore(t *testing.T) {
	tests := []struct {
		pattern string
		stem    string
		want    string
	}{
		{"*.mrc", "TS_01", "TS_01"},
		{"*_10.000Apx.mrc", "TS_01_10.000Apx", "TS_01"},
		{"*_10.000Apx.mrc", "TS_01_10.000Apx.mrc", "TS_01"},
		{"*_10.000Apx.mrc", "TS_01", "TS_01"},
		{"", "TS_01", "TS_01"},
		{"TS_*_bin4.mrc", "TS_07_bin4", "TS_07"},
	}

	for _, tt := range tests {
		conv := ParticleTableConvention{ReconstructionPattern: tt.pattern}
		if got := conv.Core(tt.stem); got != tt.want {
			t.Errorf("Core(%q) with pattern %q: expected %q, got %q", tt.stem, tt.pattern, tt.want, got)
		}
	}
}

// TestResolveCorrelationVolume uses the raw stem as prefix
func TestResolveCorrelationVolume(t *testing.T) {
	candidates := []string{
		"TS_01_10.000Apx_flipx_corr.mrc",
		"TS_02_10.000Apx_flipx_corr.mrc",
	}

	got, err := Resolve("TS_01_10.000Apx", candidates, CorrelationVolumeConvention{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != candidates[0] {
		t.Errorf("Expected %q, got %q", candidates[0], got)
	}

	// The particle table core would be too short for correlation volumes
	if _, err := Resolve("TS_0", candidates, CorrelationVolumeConvention{}); !errors.Is(err, ErrAmbiguousOrMissingMatch) {
		t.Errorf("Expected ambiguity for prefix TS_0, got %v", err)
	}
}

// TestMatchErrorMessage checks the reference stem and count are reported
func TestMatchErrorMessage(t *testing.T) {
	err := &MatchError{Reference: "TS_01", Core: "TS_01", Count: 2}
	msg := err.Error()
	for _, want := range []string{"TS_01", "2 files"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Expected message %q to contain %q", msg, want)
		}
	}
}

// TestStem strips directories and the last extension only
func TestStem(t *testing.T) {
	tests := map[string]string{
		"/data/TS_01.mrc":             "TS_01",
		"TS_01_10.000Apx.mrc":         "TS_01_10.000Apx",
		"relative/dir/particles.star": "particles",
		"noext":                       "noext",
	}
	for in, want := range tests {
		if got := Stem(in); got != want {
			t.Errorf("Stem(%q): expected %q, got %q", in, want, got)
		}
	}
}

// TestEnumerate lists matching files in sorted order
func TestEnumerate(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"TS_02.star", "TS_01.star", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatalf("Failed to create %s: %v", name, err)
		}
	}

	files, err := Enumerate(dir, "*.star")
	if err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("Expected 2 files, got %d", len(files))
	}
	if filepath.Base(files[0]) != "TS_01.star" || filepath.Base(files[1]) != "TS_02.star" {
		t.Errorf("Expected sorted files, got %v", files)
	}

	files, err = Enumerate("", "*.star")
	if err != nil || files != nil {
		t.Errorf("Expected nil result for empty directory, got %v, %v", files, err)
	}
}
