package onshape

import "encoding/json"

// Feature types of the sketch-and-extrude subset.
const (
	FeatureTypeSketch  = "newSketch"
	FeatureTypeExtrude = "extrude"
)

// FeatureList is the feature-list payload of a part studio.
type FeatureList struct {
	Features             []FeatureRecord `json:"features"`
	IsComplete           bool            `json:"isComplete"`
	SerializationVersion string          `json:"serializationVersion"`
}

// FeatureRecord is one entry of a feature list.
type FeatureRecord struct {
	Type     int            `json:"type"`
	TypeName string         `json:"typeName"`
	Message  FeatureMessage `json:"message"`
}

// FeatureMessage carries the feature body.
type FeatureMessage struct {
	FeatureType string          `json:"featureType"`
	FeatureID   string          `json:"featureId"`
	Name        string          `json:"name"`
	Suppressed  bool            `json:"suppressed"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Entities    json.RawMessage `json:"entities,omitempty"`
	Constraints json.RawMessage `json:"constraints,omitempty"`
}

// BoundingBox is the axis-aligned bounds of a part studio, in meters.
type BoundingBox struct {
	LowX  float64 `json:"lowX"`
	LowY  float64 `json:"lowY"`
	LowZ  float64 `json:"lowZ"`
	HighX float64 `json:"highX"`
	HighY float64 `json:"highY"`
	HighZ float64 `json:"highZ"`
}

// SearchParams are the caller-controlled fields of a document search.
type SearchParams struct {
	// Filter is "my", "public" or a numeric document filter.
	Filter string
	Query  string
	Limit  int
	Offset int
}

// SearchPage is one page of search results.
type SearchPage struct {
	Items    []DocumentSummary `json:"items"`
	Next     string            `json:"next"`
	Previous string            `json:"previous"`
	Href     string            `json:"href"`
}

// DocumentSummary is the part of a search item the harvester uses.
type DocumentSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Href string `json:"href"`
}

// WorkspaceInfo is a document workspace.
type WorkspaceInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ReadOnly bool   `json:"isReadOnly"`
}

// Element is a document tab.
type Element struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ElementType string `json:"elementType"`
}
