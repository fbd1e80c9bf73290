// Package visualization implements a headless viewer for the named display
// layers. It prints notifications to a terminal and renders slices of the
// tomogram layer, with the particle overlay drawn in, as JPEG snapshots.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gonum.org/v1/gonum/mat"

	"tmvis/internal/models"
	"tmvis/pkg/display"
)

var (
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7AA2F7"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E0AF68"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7768E")).Bold(true)
)

// orange is the particle face colour
var orange = color.RGBA{R: 255, G: 165, B: 0, A: 255}

// Viewer holds the layers pushed by the session
type Viewer struct {
	// layers by name, as created through AddLayer
	layers map[string]*display.Layer

	// out receives notifications
	out io.Writer
}

// NewViewer creates a viewer that prints notifications to out
func NewViewer(out io.Writer) *Viewer {
	if out == nil {
		out = io.Discard
	}
	return &Viewer{
		layers: make(map[string]*display.Layer),
		out:    out,
	}
}

// checkData rejects data the viewer cannot draw for a layer kind
func checkData(kind display.Kind, data any) error {
	switch kind {
	case display.Image:
		vol, ok := data.(*models.Volume)
		if !ok || vol == nil {
			return fmt.Errorf("image layer needs a *models.Volume, got %T", data)
		}
		if len(vol.Data) != vol.Dims.Voxels() {
			return fmt.Errorf("volume has %d voxels but dims %v", len(vol.Data), vol.Dims)
		}
	case display.Points:
		if data == nil {
			return nil
		}
		m, ok := data.(*mat.Dense)
		if !ok {
			return fmt.Errorf("points layer needs a *mat.Dense, got %T", data)
		}
		if m != nil {
			if _, c := m.Dims(); c != 3 {
				return fmt.Errorf("points layer needs 3 columns, got %d", c)
			}
		}
	}
	return nil
}

// AddLayer implements display.Sink
func (v *Viewer) AddLayer(layer *display.Layer) error {
	if _, ok := v.layers[layer.Name]; ok {
		return fmt.Errorf("layer %q already exists", layer.Name)
	}
	if err := checkData(layer.Kind, layer.Data); err != nil {
		return fmt.Errorf("layer %q: %w", layer.Name, err)
	}
	copied := *layer
	v.layers[layer.Name] = &copied
	return nil
}

// UpdateLayer implements display.Sink
func (v *Viewer) UpdateLayer(name string, data any, metadata display.Metadata) error {
	layer, ok := v.layers[name]
	if !ok {
		return fmt.Errorf("layer %q does not exist", name)
	}
	if err := checkData(layer.Kind, data); err != nil {
		return fmt.Errorf("layer %q: %w", name, err)
	}
	layer.Data = data
	layer.Metadata = metadata
	return nil
}

// SetProps implements display.Sink
func (v *Viewer) SetProps(name string, props display.Props) error {
	layer, ok := v.layers[name]
	if !ok {
		return fmt.Errorf("layer %q does not exist", name)
	}
	layer.Props = props
	return nil
}

// Notify implements display.Sink
func (v *Viewer) Notify(level display.Level, message string) {
	switch level {
	case display.Error:
		fmt.Fprintln(v.out, errorStyle.Render("error: "+message))
	case display.Warning:
		fmt.Fprintln(v.out, warnStyle.Render("warning: "+message))
	default:
		fmt.Fprintln(v.out, infoStyle.Render(message))
	}
}

// Layer returns a layer by name
func (v *Viewer) Layer(name string) (*display.Layer, bool) {
	layer, ok := v.layers[name]
	return layer, ok
}

// Describe lists the layers with a short description of their contents
func (v *Viewer) Describe() string {
	names := make([]string, 0, len(v.layers))
	for name := range v.layers {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		layer := v.layers[name]
		switch data := layer.Data.(type) {
		case *models.Volume:
			fmt.Fprintf(&sb, "%s: %s %v\n", name, layer.Kind, data.Dims)
		case *mat.Dense:
			n := 0
			if data != nil {
				n, _ = data.Dims()
			}
			fmt.Fprintf(&sb, "%s: %s, %d shown\n", name, layer.Kind, n)
		default:
			fmt.Fprintf(&sb, "%s: %s\n", name, layer.Kind)
		}
	}
	return sb.String()
}

// volume returns the volume held by an image layer
func (v *Viewer) volume(name string) (*models.Volume, *display.Layer, error) {
	layer, ok := v.layers[name]
	if !ok {
		return nil, nil, fmt.Errorf("no %s layer", name)
	}
	vol, ok := layer.Data.(*models.Volume)
	if !ok || vol == nil {
		return nil, nil, fmt.Errorf("layer %s holds no volume", name)
	}
	return vol, layer, nil
}

// ExtractSlice extracts a 2D slice of the tomogram layer along the
// specified axis. Intensities are stretched between the volume's minimum
// and maximum; the gray_r colormap inverts them.
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray16, error) {
	vol, layer, err := v.volume(display.TomogramLayer)
	if err != nil {
		return nil, err
	}
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	lo, hi := volumeRange(vol)
	invert := layer.Props.Colormap == "gray_r"
	level := func(value float32) color.Gray16 {
		t := 0.0
		if hi > lo {
			t = (float64(value) - lo) / (hi - lo)
		}
		if invert {
			t = 1 - t
		}
		return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, t*65535)))}
	}

	d := vol.Dims
	var img *image.Gray16

	switch axis {
	case "x", "X":
		// Extract slice along YZ plane
		if position >= d.NX {
			return nil, fmt.Errorf("position %d exceeds width %d", position, d.NX)
		}
		img = image.NewGray16(image.Rect(0, 0, d.NZ, d.NY))
		for y := 0; y < d.NY; y++ {
			for z := 0; z < d.NZ; z++ {
				img.SetGray16(z, y, level(vol.At(z, y, position)))
			}
		}

	case "y", "Y":
		// Extract slice along XZ plane
		if position >= d.NY {
			return nil, fmt.Errorf("position %d exceeds height %d", position, d.NY)
		}
		img = image.NewGray16(image.Rect(0, 0, d.NX, d.NZ))
		for z := 0; z < d.NZ; z++ {
			for x := 0; x < d.NX; x++ {
				img.SetGray16(x, z, level(vol.At(z, position, x)))
			}
		}

	case "z", "Z":
		// Extract slice along XY plane
		if position >= d.NZ {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, d.NZ)
		}
		img = image.NewGray16(image.Rect(0, 0, d.NX, d.NY))
		for y := 0; y < d.NY; y++ {
			for x := 0; x < d.NX; x++ {
				img.SetGray16(x, y, level(vol.At(position, y, x)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// volumeRange returns the minimum and maximum voxel values
func volumeRange(vol *models.Volume) (float64, float64) {
	if len(vol.Data) == 0 {
		return 0, 0
	}
	lo, hi := float64(vol.Data[0]), float64(vol.Data[0])
	for _, value := range vol.Data {
		lo = math.Min(lo, float64(value))
		hi = math.Max(hi, float64(value))
	}
	return lo, hi
}

// OverlayParticles draws the particles within half a marker size of slice z
// onto a copy of img
func (v *Viewer) OverlayParticles(img image.Image, z int) (*image.RGBA, int) {
	bounds := img.Bounds()
	out := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}

	layer, ok := v.layers[display.ParticlesLayer]
	if !ok {
		return out, 0
	}
	points, _ := layer.Data.(*mat.Dense)
	if points == nil {
		return out, 0
	}

	radius := layer.Props.Size / 2
	if radius < 1 {
		radius = 1
	}

	drawn := 0
	rows, _ := points.Dims()
	for i := 0; i < rows; i++ {
		pz, py, px := points.At(i, 0), points.At(i, 1), points.At(i, 2)
		dz := pz - float64(z)
		if math.Abs(dz) > radius {
			continue
		}
		// The marker is a sphere; its cross-section shrinks away from the centre
		r := math.Sqrt(radius*radius - dz*dz)
		drawCircle(out, px, py, r)
		drawn++
	}
	return out, drawn
}

// drawCircle draws a one pixel outline around (cx, cy)
func drawCircle(img *image.RGBA, cx, cy, r float64) {
	steps := int(math.Max(16, 2*math.Pi*r))
	for i := 0; i < steps; i++ {
		a := 2 * math.Pi * float64(i) / float64(steps)
		x := int(math.Round(cx + r*math.Cos(a)))
		y := int(math.Round(cy + r*math.Sin(a)))
		if image.Pt(x, y).In(img.Bounds()) {
			img.SetRGBA(x, y, orange)
		}
	}
}

// SaveSlice saves an image as a JPEG file
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSnapshot writes the central Z slice of the tomogram with the particle
// overlay to dir and returns the file path
func (v *Viewer) SaveSnapshot(dir, name string) (string, error) {
	vol, _, err := v.volume(display.TomogramLayer)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	z := vol.Dims.NZ / 2
	img, err := v.ExtractSlice("z", z)
	if err != nil {
		return "", err
	}
	overlay, _ := v.OverlayParticles(img, z)

	filename := filepath.Join(dir, fmt.Sprintf("%s_z%03d.jpg", name, z))
	if err := v.SaveSlice(overlay, filename); err != nil {
		return "", err
	}
	return filename, nil
}

// SaveSliceSequence extracts and saves every slice along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	vol, _, err := v.volume(display.TomogramLayer)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = vol.Dims.NX
	case "y", "Y":
		maxPos = vol.Dims.NY
	case "z", "Z":
		maxPos = vol.Dims.NZ
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		var out image.Image = img
		if axis == "z" || axis == "Z" {
			out, _ = v.OverlayParticles(img, pos)
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(out, filename); err != nil {
			return err
		}
	}

	return nil
}
