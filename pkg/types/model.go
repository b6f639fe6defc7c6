package types

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// ToRect converts a normalized box to pixel coordinates clamped to the image
func (b Box) ToRect(width, height int) Rect {
	r := Rect{
		X:      int(b.X*float64(width) + 0.5),
		Y:      int(b.Y*float64(height) + 0.5),
		Width:  int(b.W*float64(width) + 0.5),
		Height: int(b.H*float64(height) + 0.5),
	}
	return r.Clamp(width, height)
}

// ModelFace is one face reported by a vision model
type ModelFace struct {
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// FaceAnalysis contains the parsed reply of a vision model asked to locate faces
type FaceAnalysis struct {
	FaceCount   int         `json:"face_count"`
	Faces       []ModelFace `json:"faces"`
	Description string      `json:"description"`
}
