// Package mrc reads and writes MRC2014 volume files.
// Only the header is needed to learn a volume's dimensions, so ReadHeader
// never touches voxel data; Read loads the full grid as float32.
package mrc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"tmvis/internal/models"
)

// HeaderSize is the fixed size of the main MRC header in bytes
const HeaderSize = 1024

// Data modes supported by Read
const (
	ModeInt8    = 0
	ModeInt16   = 1
	ModeFloat32 = 2
	ModeUint16  = 6
)

// ErrInvalidFile is returned for files that are not readable MRC volumes
var ErrInvalidFile = errors.New("invalid MRC file")

// Header mirrors the 1024-byte MRC2014 main header
type Header struct {
	NX, NY, NZ                int32
	Mode                      int32
	NXStart, NYStart, NZStart int32
	MX, MY, MZ                int32
	CellA                     [3]float32
	CellB                     [3]float32
	MapC, MapR, MapS          int32
	DMin, DMax, DMean         float32
	ISPG                      int32
	NSymBT                    int32
	Extra1                    [8]byte
	ExtType                   [4]byte
	NVersion                  int32
	Extra2                    [84]byte
	Origin                    [3]float32
	Map                       [4]byte
	MachSt                    [4]byte
	RMS                       float32
	NLabl                     int32
	Labels                    [10][80]byte
}

// Dims returns the voxel grid size in (z, y, x) order
func (h *Header) Dims() models.Dims {
	return models.Dims{NZ: int(h.NZ), NY: int(h.NY), NX: int(h.NX)}
}

// modeSize returns the number of bytes per voxel for a data mode
func modeSize(mode int32) (int, error) {
	switch mode {
	case ModeInt8:
		return 1, nil
	case ModeInt16, ModeUint16:
		return 2, nil
	case ModeFloat32:
		return 4, nil
	default:
		return 0, fmt.Errorf("%w: unsupported data mode %d", ErrInvalidFile, mode)
	}
}

// byteOrder detects the file endianness from the machine stamp
func byteOrder(machst [4]byte) binary.ByteOrder {
	if machst[0] == 0x11 {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// decodeHeader parses the first HeaderSize bytes of r
func decodeHeader(r io.Reader) (*Header, binary.ByteOrder, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, nil, fmt.Errorf("%w: short header: %v", ErrInvalidFile, err)
	}

	var machst [4]byte
	copy(machst[:], buf[212:216])
	order := byteOrder(machst)

	h := &Header{}
	if err := binary.Read(bytes.NewReader(buf), order, h); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	if h.NX <= 0 || h.NY <= 0 || h.NZ <= 0 {
		return nil, nil, fmt.Errorf("%w: non-positive dimensions (%d, %d, %d)", ErrInvalidFile, h.NZ, h.NY, h.NX)
	}
	if h.NSymBT < 0 {
		return nil, nil, fmt.Errorf("%w: negative extended header size %d", ErrInvalidFile, h.NSymBT)
	}
	return h, order, nil
}

// ReadHeader reads only the main header of an MRC file
func ReadHeader(path string) (*Header, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	h, _, err := decodeHeader(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}

// Read loads a full MRC volume, converting voxels to float32
func Read(path string) (*models.Volume, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	h, order, err := decodeHeader(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	size, err := modeSize(h.Mode)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	// Skip the extended header
	if _, err := file.Seek(int64(HeaderSize)+int64(h.NSymBT), io.SeekStart); err != nil {
		return nil, err
	}

	vol := models.NewVolume(h.Dims())
	raw := make([]byte, len(vol.Data)*size)
	if _, err := io.ReadFull(file, raw); err != nil {
		return nil, fmt.Errorf("%s: %w: truncated voxel data: %v", path, ErrInvalidFile, err)
	}

	switch h.Mode {
	case ModeInt8:
		for i := range vol.Data {
			vol.Data[i] = float32(int8(raw[i]))
		}
	case ModeInt16:
		for i := range vol.Data {
			vol.Data[i] = float32(int16(order.Uint16(raw[2*i:])))
		}
	case ModeUint16:
		for i := range vol.Data {
			vol.Data[i] = float32(order.Uint16(raw[2*i:]))
		}
	case ModeFloat32:
		for i := range vol.Data {
			vol.Data[i] = math.Float32frombits(order.Uint32(raw[4*i:]))
		}
	}

	return vol, nil
}

// Write saves a volume as a little-endian mode 2 MRC file
func Write(path string, vol *models.Volume, voxelSize float32) error {
	if !vol.Dims.Known() || len(vol.Data) != vol.Dims.Voxels() {
		return fmt.Errorf("volume data length %d does not match dims %v", len(vol.Data), vol.Dims)
	}
	if voxelSize <= 0 {
		voxelSize = 1
	}

	h := Header{
		NX:       int32(vol.Dims.NX),
		NY:       int32(vol.Dims.NY),
		NZ:       int32(vol.Dims.NZ),
		Mode:     ModeFloat32,
		MX:       int32(vol.Dims.NX),
		MY:       int32(vol.Dims.NY),
		MZ:       int32(vol.Dims.NZ),
		MapC:     1,
		MapR:     2,
		MapS:     3,
		NVersion: 20140,
		Map:      [4]byte{'M', 'A', 'P', ' '},
		MachSt:   [4]byte{0x44, 0x44, 0x00, 0x00},
	}
	h.CellA = [3]float32{
		float32(vol.Dims.NX) * voxelSize,
		float32(vol.Dims.NY) * voxelSize,
		float32(vol.Dims.NZ) * voxelSize,
	}
	h.CellB = [3]float32{90, 90, 90}
	h.DMin, h.DMax, h.DMean, h.RMS = statistics(vol.Data)

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := binary.Write(file, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	raw := make([]byte, 4*len(vol.Data))
	for i, v := range vol.Data {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	if _, err := file.Write(raw); err != nil {
		return fmt.Errorf("failed to write voxel data: %w", err)
	}
	return file.Close()
}

// statistics returns min, max, mean and rms deviation of the voxel values
func statistics(data []float32) (min, max, mean, rms float32) {
	if len(data) == 0 {
		return 0, 0, 0, 0
	}
	lo, hi := float64(data[0]), float64(data[0])
	var sum float64
	for _, v := range data {
		f := float64(v)
		lo = math.Min(lo, f)
		hi = math.Max(hi, f)
		sum += f
	}
	m := sum / float64(len(data))

	var sq float64
	for _, v := range data {
		d := float64(v) - m
		sq += d * d
	}
	return float32(lo), float32(hi), float32(m), float32(math.Sqrt(sq / float64(len(data))))
}

// Reader adapts the package functions to the volume reader collaborator
// interfaces used by the session
type Reader struct{}

// ReadHeader returns the voxel dimensions without reading voxel data
func (Reader) ReadHeader(path string) (models.Dims, error) {
	h, err := ReadHeader(path)
	if err != nil {
		return models.Dims{}, err
	}
	return h.Dims(), nil
}

// ReadFull loads the whole volume
func (Reader) ReadFull(path string) (*models.Volume, error) {
	return Read(path)
}
