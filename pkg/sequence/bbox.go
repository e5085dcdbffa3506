package sequence

// Point3D is a point in model space.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// BoundingBox3D is the "bounding_box" property of a record.
type BoundingBox3D struct {
	Type     string  `json:"type"`
	MinPoint Point3D `json:"min_point"`
	MaxPoint Point3D `json:"max_point"`
}

// NewBoundingBox builds a BoundingBox3D from its corners.
func NewBoundingBox(lo, hi Point3D) BoundingBox3D {
	return BoundingBox3D{Type: "BoundingBox3D", MinPoint: lo, MaxPoint: hi}
}
