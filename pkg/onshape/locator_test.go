package onshape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocator(t *testing.T) {
	tests := []struct {
		name    string
		locator string
		want    ElementRef
	}{
		{
			name:    "browser link",
			locator: "https://cad.onshape.com/documents/D1/w/W1/e/E1",
			want:    ElementRef{DocumentID: "D1", WVM: Workspace, WVMID: "W1", ElementID: "E1"},
		},
		{
			name:    "api path",
			locator: "/api/partstudios/d/D1/v/V1/e/E1",
			want:    ElementRef{DocumentID: "D1", WVM: Version, WVMID: "V1", ElementID: "E1"},
		},
		{
			name:    "microversion with trailing slash",
			locator: "documents/D1/m/M1/e/E1/",
			want:    ElementRef{DocumentID: "D1", WVM: Microversion, WVMID: "M1", ElementID: "E1"},
		},
		{
			name:    "exactly five segments",
			locator: "D1/w/W1/e/E1",
			want:    ElementRef{DocumentID: "D1", WVM: Workspace, WVMID: "W1", ElementID: "E1"},
		},
		{
			name:    "unknown state letter defaults to workspace",
			locator: ".../d/D1/x/W1/e/E1",
			want:    ElementRef{DocumentID: "D1", WVM: Workspace, WVMID: "W1", ElementID: "E1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLocator(tt.locator)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLocator_Invalid(t *testing.T) {
	for _, locator := range []string{"", "D1/w/W1/e", "a/b", "D1/w//e/E1"} {
		_, err := ParseLocator(locator)
		assert.ErrorIs(t, err, ErrInvalidLocator, "locator %q", locator)
	}
}

func TestElementRef_Link(t *testing.T) {
	ref := ElementRef{DocumentID: "D1", WVM: Workspace, WVMID: "W1", ElementID: "E1"}

	link := ref.Link("https://cad.onshape.com/")
	assert.Equal(t, "https://cad.onshape.com/documents/D1/w/W1/e/E1", link)

	back, err := ParseLocator(link)
	require.NoError(t, err)
	assert.Equal(t, ref, back)
}
