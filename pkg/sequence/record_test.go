package sequence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() *Record {
	bbox, _ := json.Marshal(NewBoundingBox(Point3D{X: -1, Y: -1}, Point3D{X: 1, Y: 1, Z: 0.0254}))
	return &Record{
		Sequence: []Step{
			{Index: 0, Type: StepSketch, Entity: "FQgWGf8WhgalpUy"},
			{Index: 1, Type: StepExtrude, Entity: "FI4bCL9y0XvsF52"},
		},
		Entities: map[string]json.RawMessage{
			"FQgWGf8WhgalpUy": json.RawMessage(`{"name":"Sketch 1","type":"Sketch"}`),
			"FI4bCL9y0XvsF52": json.RawMessage(`{"name":"Extrude 1","type":"ExtrudeFeature"}`),
		},
		Properties: map[string]json.RawMessage{"bounding_box": bbox},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, sampleRecord().Validate())

	short := sampleRecord()
	short.Sequence = short.Sequence[:1]
	assert.ErrorIs(t, short.Validate(), ErrTooShort)

	dangling := sampleRecord()
	dangling.Sequence[1].Entity = "missing"
	assert.ErrorIs(t, dangling.Validate(), ErrDanglingEntity)

	misordered := sampleRecord()
	misordered.Sequence[1].Index = 5
	assert.Error(t, misordered.Validate())

	var nilRecord *Record
	assert.Equal(t, 0, nilRecord.Len())
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.json")

	require.NoError(t, Save(path, sampleRecord()))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
	assert.Equal(t, StepExtrude, loaded.Sequence[1].Type)
	assert.Contains(t, string(loaded.Properties["bounding_box"]), "BoundingBox3D")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestSave_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	require.NoError(t, Save(path, sampleRecord()))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
}

func TestSave_MissingDir(t *testing.T) {
	err := Save(filepath.Join(t.TempDir(), "nope", "a.json"), sampleRecord())
	assert.Error(t, err)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)

	noSeq := filepath.Join(dir, "noseq.json")
	require.NoError(t, os.WriteFile(noSeq, []byte(`{"entities":{}}`), 0o644))
	_, err = Load(noSeq)
	assert.Error(t, err)
}
