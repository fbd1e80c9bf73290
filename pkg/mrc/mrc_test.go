package mrc

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"tmvis/internal/models"
)

// testVolume builds a small volume where each voxel encodes its own index
func testVolume(dims models.Dims) *models.Volume {
	vol := models.NewVolume(dims)
	for z := 0; z < dims.NZ; z++ {
		for y := 0; y < dims.NY; y++ {
			for x := 0; x < dims.NX; x++ {
				vol.Set(z, y, x, float32(z*100+y*10+x))
			}
		}
	}
	return vol
}

// TestWriteRead verifies a written volume reads back voxel for voxel
func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "TS_01.mrc")
	dims := models.Dims{NZ: 3, NY: 4, NX: 5}
	vol := testVolume(dims)

	if err := Write(path, vol, 10); err != nil {
		t.Fatalf("Failed to write volume: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Failed to read volume: %v", err)
	}

	if got.Dims != dims {
		t.Fatalf("Expected dims %v, got %v", dims, got.Dims)
	}
	for i := range vol.Data {
		if got.Data[i] != vol.Data[i] {
			t.Fatalf("Voxel %d: expected %f, got %f", i, vol.Data[i], got.Data[i])
		}
	}
	if got.At(2, 3, 4) != 234 {
		t.Errorf("Expected voxel (2,3,4) = 234, got %f", got.At(2, 3, 4))
	}
}

// TestReadHeaderOnly checks that dims come from the header even when the
// voxel data is missing
func TestReadHeaderOnly(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "full.mrc")
	if err := Write(full, testVolume(models.Dims{NZ: 100, NY: 20, NX: 10}), 1); err != nil {
		t.Fatalf("Failed to write volume: %v", err)
	}

	// Keep only the header
	data, err := os.ReadFile(full)
	if err != nil {
		t.Fatalf("Failed to read back file: %v", err)
	}
	headerOnly := filepath.Join(dir, "header.mrc")
	if err := os.WriteFile(headerOnly, data[:HeaderSize], 0644); err != nil {
		t.Fatalf("Failed to write truncated file: %v", err)
	}

	h, err := ReadHeader(headerOnly)
	if err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	want := models.Dims{NZ: 100, NY: 20, NX: 10}
	if h.Dims() != want {
		t.Errorf("Expected dims %v, got %v", want, h.Dims())
	}

	// The full read must notice the truncation
	if _, err := Read(headerOnly); !errors.Is(err, ErrInvalidFile) {
		t.Errorf("Expected ErrInvalidFile for truncated data, got %v", err)
	}

	dims, err := Reader{}.ReadHeader(headerOnly)
	if err != nil || dims != want {
		t.Errorf("Reader.ReadHeader: expected %v, got %v (%v)", want, dims, err)
	}
}

// TestReadBigEndianInt16 reads a hand-built big-endian mode 1 file with an
// extended header
func TestReadBigEndianInt16(t *testing.T) {
	path := filepath.Join(t.TempDir(), "be.mrc")

	h := Header{
		NX: 2, NY: 1, NZ: 2,
		Mode:   ModeInt16,
		NSymBT: 8,
		MachSt: [4]byte{0x11, 0x11, 0x00, 0x00},
	}
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	if err := binary.Write(file, binary.BigEndian, &h); err != nil {
		t.Fatalf("Failed to write header: %v", err)
	}
	file.Write(make([]byte, 8))
	if err := binary.Write(file, binary.BigEndian, []int16{-3, 7, 300, -1}); err != nil {
		t.Fatalf("Failed to write data: %v", err)
	}
	file.Close()

	vol, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	want := []float32{-3, 7, 300, -1}
	for i, v := range want {
		if vol.Data[i] != v {
			t.Errorf("Voxel %d: expected %f, got %f", i, v, vol.Data[i])
		}
	}
}

// TestReadInvalid rejects short files and unsupported modes
func TestReadInvalid(t *testing.T) {
	dir := t.TempDir()

	short := filepath.Join(dir, "short.mrc")
	os.WriteFile(short, []byte("not an mrc"), 0644)
	if _, err := ReadHeader(short); !errors.Is(err, ErrInvalidFile) {
		t.Errorf("Expected ErrInvalidFile for short file, got %v", err)
	}

	badMode := filepath.Join(dir, "mode.mrc")
	h := Header{NX: 1, NY: 1, NZ: 1, Mode: 12}
	file, _ := os.Create(badMode)
	binary.Write(file, binary.LittleEndian, &h)
	file.Write(make([]byte, 2))
	file.Close()
	if _, err := Read(badMode); !errors.Is(err, ErrInvalidFile) {
		t.Errorf("Expected ErrInvalidFile for mode 12, got %v", err)
	}

	if _, err := ReadHeader(filepath.Join(dir, "missing.mrc")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected os.ErrNotExist, got %v", err)
	}
}

// TestStatistics checks the header summary values
func TestStatistics(t *testing.T) {
	min, max, mean, rms := statistics([]float32{1, 2, 3, 4})
	if min != 1 || max != 4 || mean != 2.5 {
		t.Errorf("Expected 1/4/2.5, got %f/%f/%f", min, max, mean)
	}
	if rms < 1.118 || rms > 1.1181 {
		t.Errorf("Expected rms ~1.118, got %f", rms)
	}
}
