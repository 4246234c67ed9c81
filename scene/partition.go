package scene

import "github.com/aukilabs/fieldofview/geometry"

type SpatialDebugInfo struct {
	Resolution float64          `json:"resolution"`
	RowCount   uint32           `json:"row_count"`
	ColCount   uint32           `json:"col_count"`
	ItemCount  uint32           `json:"item_count"`
	MinPoint   geometry.Vector3 `json:"min_point"`
	MaxPoint   geometry.Vector3 `json:"max_point"`
	Occupancy  []uint32         `json:"occupancy"`
}

// SpatialPartition indexes items by their XZ footprint. Items are referenced
// by their index in the owning slice.
type SpatialPartition interface {
	Insert(index int, b geometry.Bounds)

	// Walk visits the cells crossed by the ray in order. tExit is the ray
	// parameter where the ray leaves the visited cell. Returning false stops
	// the walk.
	Walk(r geometry.Ray, visit func(items []int, tExit float64) bool)

	GetRegion(min geometry.Vector3, max geometry.Vector3) []int

	// debug stuff:
	GetDebugInfo() SpatialDebugInfo
}
