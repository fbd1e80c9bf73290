package display

import (
	"errors"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// recordingSink counts calls and can be told to reject updates
type recordingSink struct {
	adds      []*Layer
	updates   []string
	props     []Props
	notes     []string
	addErr    error
	updateErr error
}

func (r *recordingSink) AddLayer(layer *Layer) error {
	if r.addErr != nil {
		return r.addErr
	}
	r.adds = append(r.adds, layer)
	return nil
}

func (r *recordingSink) UpdateLayer(name string, data any, metadata Metadata) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.updates = append(r.updates, name)
	return nil
}

func (r *recordingSink) SetProps(name string, props Props) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.props = append(r.props, props)
	return nil
}

func (r *recordingSink) Notify(level Level, message string) {
	r.notes = append(r.notes, message)
}

// TestUpsertCreatesOnce creates a layer on the first call and updates it after
func TestUpsertCreatesOnce(t *testing.T) {
	sink := &recordingSink{}
	store := NewStore(sink)
	store.Define(ParticlesLayer, Points, Props{Size: 6, FaceColor: "orange"})

	if store.State(ParticlesLayer) != Absent {
		t.Fatalf("Expected layer to start absent")
	}

	if err := store.Upsert(ParticlesLayer, "first", Metadata{MetaSource: "TS_01"}); err != nil {
		t.Fatalf("First upsert failed: %v", err)
	}
	if err := store.Upsert(ParticlesLayer, "second", Metadata{MetaSource: "TS_02"}); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	if len(sink.adds) != 1 {
		t.Errorf("Expected 1 layer creation, got %d", len(sink.adds))
	}
	if len(sink.updates) != 1 {
		t.Errorf("Expected 1 update, got %d", len(sink.updates))
	}
	if store.State(ParticlesLayer) != Present {
		t.Errorf("Expected layer to be present")
	}

	layer, ok := store.Layer(ParticlesLayer)
	if !ok {
		t.Fatal("Expected layer to exist")
	}
	if layer.Data != "second" || layer.Metadata[MetaSource] != "TS_02" {
		t.Errorf("Expected second call's contents, got %v / %v", layer.Data, layer.Metadata)
	}
	if layer.Kind != Points || layer.Props.Size != 6 {
		t.Errorf("Expected props from definition, got %v %+v", layer.Kind, layer.Props)
	}
}

// TestUpsertUndefined creates layers without a definition from their data
func TestUpsertUndefined(t *testing.T) {
	sink := &recordingSink{}
	store := NewStore(sink)

	if err := store.Upsert("overlay", mat.NewDense(1, 3, []float64{1, 2, 3}), nil); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if store.State("overlay") != Present {
		t.Error("Expected overlay to be present")
	}
	if err := store.Upsert("mask", "voxels", nil); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if len(sink.adds) != 2 {
		t.Fatalf("Expected 2 layer creations, got %d", len(sink.adds))
	}
	if sink.adds[0].Kind != Points {
		t.Errorf("Expected points for a matrix, got %v", sink.adds[0].Kind)
	}
	if sink.adds[1].Kind != Image {
		t.Errorf("Expected image otherwise, got %v", sink.adds[1].Kind)
	}
}

// TestSetProps changes a present layer in place and an absent one on creation
func TestSetProps(t *testing.T) {
	sink := &recordingSink{}
	store := NewStore(sink)
	store.Define(ParticlesLayer, Points, Props{Size: 6})

	// Absent: nothing reaches the sink, the next creation uses the new size
	if err := store.SetProps(ParticlesLayer, Props{Size: 3}); err != nil {
		t.Fatalf("SetProps failed: %v", err)
	}
	if len(sink.props) != 0 {
		t.Errorf("Expected no sink call for an absent layer, got %d", len(sink.props))
	}
	if err := store.Upsert(ParticlesLayer, nil, nil); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if sink.adds[0].Props.Size != 3 || sink.adds[0].Kind != Points {
		t.Errorf("Expected points of size 3, got %v %+v", sink.adds[0].Kind, sink.adds[0].Props)
	}

	// Present: changed in place, no second creation
	if err := store.SetProps(ParticlesLayer, Props{Size: 1.5}); err != nil {
		t.Fatalf("SetProps failed: %v", err)
	}
	if len(sink.props) != 1 || sink.props[0].Size != 1.5 {
		t.Errorf("Expected one sink update to size 1.5, got %+v", sink.props)
	}
	if len(sink.adds) != 1 {
		t.Errorf("Expected 1 layer creation, got %d", len(sink.adds))
	}
	layer, _ := store.Layer(ParticlesLayer)
	if layer.Props.Size != 1.5 {
		t.Errorf("Expected stored size 1.5, got %f", layer.Props.Size)
	}

	// Sink errors leave the stored props alone
	rejected := errors.New("locked")
	sink.updateErr = rejected
	if err := store.SetProps(ParticlesLayer, Props{Size: 9}); err != rejected {
		t.Errorf("Expected sink error unmodified, got %v", err)
	}
	if layer.Props.Size != 1.5 {
		t.Errorf("Expected size to stay 1.5, got %f", layer.Props.Size)
	}
}

// TestUpsertSinkErrors surfaces sink errors without changing state
func TestUpsertSinkErrors(t *testing.T) {
	rejected := errors.New("shape mismatch")

	sink := &recordingSink{addErr: rejected}
	store := NewStore(sink)
	store.Define(TomogramLayer, Image, Props{Colormap: "gray_r"})

	if err := store.Upsert(TomogramLayer, 1, nil); err != rejected {
		t.Errorf("Expected sink error unmodified, got %v", err)
	}
	if store.State(TomogramLayer) != Absent {
		t.Error("Expected layer to stay absent after a failed creation")
	}

	sink.addErr = nil
	if err := store.Upsert(TomogramLayer, 1, nil); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	sink.updateErr = rejected
	if err := store.Upsert(TomogramLayer, 2, nil); err != rejected {
		t.Errorf("Expected sink error unmodified, got %v", err)
	}
	layer, _ := store.Layer(TomogramLayer)
	if layer.Data != 1 {
		t.Errorf("Expected previous data to be kept, got %v", layer.Data)
	}
	if len(sink.adds) != 1 {
		t.Errorf("A failed update must not recreate the layer, got %d creations", len(sink.adds))
	}
}

// TestSetData keeps metadata while replacing data
func TestSetData(t *testing.T) {
	sink := &recordingSink{}
	store := NewStore(sink)
	store.Define(ParticlesLayer, Points, Props{})

	if err := store.SetData(ParticlesLayer, 1); err == nil {
		t.Error("Expected error for absent layer")
	}

	store.Upsert(ParticlesLayer, 1, Metadata{MetaScores: []float64{1}})
	if err := store.SetData(ParticlesLayer, 2); err != nil {
		t.Fatalf("SetData failed: %v", err)
	}
	layer, _ := store.Layer(ParticlesLayer)
	if layer.Data != 2 {
		t.Errorf("Expected data 2, got %v", layer.Data)
	}
	if _, ok := layer.Metadata[MetaScores]; !ok {
		t.Error("Expected metadata to be kept")
	}
}

// TestNotify formats messages for the sink
func TestNotify(t *testing.T) {
	sink := &recordingSink{}
	store := NewStore(sink)
	store.Notify(Info, "max cc for %s is %.2f", "TS_01", 7.5)
	if len(sink.notes) != 1 || sink.notes[0] != "max cc for TS_01 is 7.50" {
		t.Errorf("Unexpected notifications %v", sink.notes)
	}
}
