// Package display keeps the named layers shown by the viewer in sync with
// the current reconstruction. A layer is added the first time its name is
// used and only has its contents replaced afterwards, so viewer state tied
// to the layer (camera, contrast, filters) survives reconstruction switches.
package display

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Layer names used by the session
const (
	TomogramLayer          = "tomogram"
	CorrelationVolumeLayer = "correlation_volume"
	ParticlesLayer         = "particles"
)

// Metadata keys stored on layers
const (
	MetaPositions = "positions"
	MetaScores    = "cc"
	MetaSource    = "ts_id"
)

// Kind tells the viewer how to draw a layer
type Kind int

const (
	Image Kind = iota
	Points
)

func (k Kind) String() string {
	if k == Points {
		return "points"
	}
	return "image"
}

// Level is the severity of a notification
type Level int

const (
	Info Level = iota
	Warning
	Error
)

// Metadata is the free-form information attached to a layer
type Metadata map[string]any

// Props are the display properties fixed when a layer is created
type Props struct {
	Colormap          string
	ContrastLimits    []float64
	Blending          string
	Size              float64
	FaceColor         string
	Opacity           float64
	OutOfSliceDisplay bool
}

// Layer is one named slot in the viewer
type Layer struct {
	Name     string
	Kind     Kind
	Data     any
	Metadata Metadata
	Props    Props
}

// Sink is the viewer side of the store. AddLayer is called once per name,
// UpdateLayer and SetProps for every later change.
type Sink interface {
	AddLayer(layer *Layer) error
	UpdateLayer(name string, data any, metadata Metadata) error
	SetProps(name string, props Props) error
	Notify(level Level, message string)
}

// State is the lifecycle state of a layer name
type State int

const (
	Absent State = iota
	Present
)

func (s State) String() string {
	if s == Present {
		return "present"
	}
	return "absent"
}

// template describes how to create a layer that does not exist yet
type template struct {
	kind  Kind
	props Props
}

// Store tracks which layers exist in the sink and forwards upserts
type Store struct {
	sink      Sink
	templates map[string]template
	layers    map[string]*Layer
}

// NewStore creates an empty store on top of sink
func NewStore(sink Sink) *Store {
	return &Store{
		sink:      sink,
		templates: make(map[string]template),
		layers:    make(map[string]*Layer),
	}
}

// Define sets the kind and properties used when name is first created.
// It has no effect on a layer that is already present.
func (s *Store) Define(name string, kind Kind, props Props) {
	s.templates[name] = template{kind: kind, props: props}
}

// Upsert creates the layer on first use and replaces its data and metadata
// afterwards. Names without a definition are created with default
// properties, as points for *mat.Dense data and as an image otherwise.
// Errors from the sink are returned unmodified.
func (s *Store) Upsert(name string, data any, metadata Metadata) error {
	if layer, ok := s.layers[name]; ok {
		if err := s.sink.UpdateLayer(name, data, metadata); err != nil {
			return err
		}
		layer.Data = data
		layer.Metadata = metadata
		return nil
	}

	tmpl, ok := s.templates[name]
	if !ok {
		tmpl.kind = Image
		if _, points := data.(*mat.Dense); points {
			tmpl.kind = Points
		}
	}
	layer := &Layer{
		Name:     name,
		Kind:     tmpl.kind,
		Data:     data,
		Metadata: metadata,
		Props:    tmpl.props,
	}
	if err := s.sink.AddLayer(layer); err != nil {
		return err
	}
	s.layers[name] = layer
	return nil
}

// SetData replaces only the data of a present layer, keeping its metadata
func (s *Store) SetData(name string, data any) error {
	layer, ok := s.layers[name]
	if !ok {
		return fmt.Errorf("layer %q is not present", name)
	}
	return s.Upsert(name, data, layer.Metadata)
}

// SetProps changes the display properties of name. A present layer is
// changed in place through the sink; an absent one gets them on creation.
func (s *Store) SetProps(name string, props Props) error {
	tmpl := s.templates[name]
	layer, present := s.layers[name]
	if present {
		tmpl.kind = layer.Kind
		if err := s.sink.SetProps(name, props); err != nil {
			return err
		}
		layer.Props = props
	}
	tmpl.props = props
	s.templates[name] = tmpl
	return nil
}

// State reports whether name has been created
func (s *Store) State(name string) State {
	if _, ok := s.layers[name]; ok {
		return Present
	}
	return Absent
}

// Layer returns the last successfully upserted contents of name
func (s *Store) Layer(name string) (*Layer, bool) {
	layer, ok := s.layers[name]
	return layer, ok
}

// Notify forwards a message to the sink
func (s *Store) Notify(level Level, format string, args ...any) {
	s.sink.Notify(level, fmt.Sprintf(format, args...))
}
