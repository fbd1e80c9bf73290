package main

import (
	"fmt"
	"path/filepath"

	"tmvis/pkg/visualization"
)

// exportSlices saves every slice of the tomogram on display along all three
// axes, one directory per axis under dir/stem
func exportSlices(viewer *visualization.Viewer, dir, stem string) ([]string, error) {
	var dirs []string
	for _, axis := range []string{"x", "y", "z"} {
		axisDir := filepath.Join(dir, stem, axis)
		if err := viewer.SaveSliceSequence(axis, axisDir); err != nil {
			return dirs, fmt.Errorf("saving %s-axis slices of %s: %w", axis, stem, err)
		}
		dirs = append(dirs, axisDir)
	}
	return dirs, nil
}
