package harvest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Sternrassler/cadseq/pkg/onshape"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMapping_KeepsOrder(t *testing.T) {
	data := []byte(`
zeta: https://cad.onshape.com/documents/D3/w/W3/e/E3
alpha: https://cad.onshape.com/documents/D1/w/W1/e/E1
42: .../d/D2/w/W2/e/E2
`)
	items, err := ParseMapping(data)
	require.NoError(t, err)

	assert.Equal(t, []WorkItem{
		{ID: "zeta", Locator: "https://cad.onshape.com/documents/D3/w/W3/e/E3"},
		{ID: "alpha", Locator: "https://cad.onshape.com/documents/D1/w/W1/e/E1"},
		{ID: "42", Locator: ".../d/D2/w/W2/e/E2"},
	}, items)
}

func TestParseMapping_Errors(t *testing.T) {
	tests := map[string]string{
		"sequence root":  "- a\n- b\n",
		"nested value":   "a:\n  b: c\n",
		"malformed yaml": "a: [unclosed\n",
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseMapping([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParseMapping_DuplicateIDLastWins(t *testing.T) {
	doc := "a: x/d/D/w/W/e/E1\nb: x/d/D/w/W/e/E2\na: y/d/D/w/W/e/E3\n"

	items, err := ParseMapping([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, []WorkItem{
		{ID: "a", Locator: "y/d/D/w/W/e/E3"},
		{ID: "b", Locator: "x/d/D/w/W/e/E2"},
	}, items)
}

func TestParseMapping_Empty(t *testing.T) {
	items, err := ParseMapping(nil)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestWriteLoadMapping_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.yml")
	items := []WorkItem{
		{ID: "b", Locator: "https://cad.onshape.com/documents/D2/w/W2/e/E2"},
		{ID: "007", Locator: "https://cad.onshape.com/documents/D1/w/W1/e/E1"},
		{ID: "yes", Locator: "true"},
	}

	require.NoError(t, WriteMapping(path, items))

	loaded, err := LoadMapping(path)
	require.NoError(t, err)
	assert.Equal(t, items, loaded)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "b: https://cad.onshape.com/documents/D2/w/W2/e/E2")
}

func TestLoadMapping_Missing(t *testing.T) {
	_, err := LoadMapping(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestItemsFromRefs(t *testing.T) {
	refs := []onshape.ElementRef{
		{DocumentID: "D1", WVM: onshape.Workspace, WVMID: "W1", ElementID: "E1"},
		{DocumentID: "D1", WVM: onshape.Workspace, WVMID: "W2", ElementID: "E1"},
		{DocumentID: "D2", WVM: onshape.Workspace, WVMID: "W3", ElementID: "E9"},
	}

	items := ItemsFromRefs(refs, "https://cad.onshape.com")

	assert.Equal(t, []WorkItem{
		{ID: "D1_E1", Locator: "https://cad.onshape.com/documents/D1/w/W1/e/E1"},
		{ID: "D2_E9", Locator: "https://cad.onshape.com/documents/D2/w/W3/e/E9"},
	}, items)
}
