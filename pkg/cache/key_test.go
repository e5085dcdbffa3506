package cache

import (
	"net/url"
	"testing"
)

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "endpoint only",
			key:  Key{Endpoint: "/api/documents/D1/workspaces"},
			want: "cadseq:api/documents/D1/workspaces",
		},
		{
			name: "query params sorted by name",
			key: Key{
				Endpoint: "/api/partstudios/d/D1/w/W1/e/E1/features",
				Query: url.Values{
					"rollbackBarIndex": []string{"-1"},
					"includeGeometryIds": []string{"false"},
				},
			},
			want: "cadseq:api/partstudios/d/D1/w/W1/e/E1/features:includeGeometryIds=false:rollbackBarIndex=-1",
		},
		{
			name: "multi-valued param sorted",
			key: Key{
				Endpoint: "/api/x",
				Query:    url.Values{"id": []string{"b", "a"}},
			},
			want: "cadseq:api/x:id=a,b",
		},
		{
			name: "account scoped",
			key: Key{
				Endpoint: "/api/partstudios/d/D1/w/W1/e/E1/boundingboxes",
				Account:  "AK1",
			},
			want: "cadseq:api/partstudios/d/D1/w/W1/e/E1/boundingboxes:acct=AK1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("Key.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKey_DoesNotMutateQuery(t *testing.T) {
	q := url.Values{"id": []string{"b", "a"}}
	_ = Key{Endpoint: "/api/x", Query: q}.String()

	if q["id"][0] != "b" {
		t.Errorf("query values reordered: %v", q["id"])
	}
}
