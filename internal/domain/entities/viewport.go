package entities

// Coordinates is a geographic point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// MapBounds is the visible rectangle of a map camera.
type MapBounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// NorthEast returns the rectangle's north-east corner. The distance from
// the center to this corner sizes the proximity search radius.
func (b MapBounds) NorthEast() Coordinates {
	return Coordinates{Lat: b.North, Lng: b.East}
}

// Viewport is ephemeral map camera state. Bounds is nil until the map
// widget reports its first camera-change event.
type Viewport struct {
	Center Coordinates `json:"center"`
	Zoom   int         `json:"zoom"`
	Bounds *MapBounds  `json:"bounds,omitempty"`
}
