package scene

import (
	"math"
	"sort"

	"github.com/aukilabs/fieldofview/geometry"
)

// Regular Grid Spatial Partition
//
// An uniformely sub-divided grid implementing the SpatialPartition interface.
// The particularities are:
//   - the grid has a resolution that defines how large a cell is. For example,
//     a resolution of 1 will make each cell hold a 1x1 meter subdivision of the scene.
//   - obstacles are planar footprints, so this is a 2D partition on the XZ plane.
//   - the grid is sized once from the bounds of everything it will hold. Scenes
//     rebuild their grids on mutation instead of growing them.

const (
	DefaultResolution = 2.0

	// MaxCellCount bounds the memory of a grid. Resolution is coarsened
	// until the grid fits.
	MaxCellCount = 1 << 20
)

type RegularGrid struct {
	Resolution float64
	ItemCount  uint32
	Min        geometry.Vector3
	Max        geometry.Vector3
	Grid       [][][]int
}

func NewRegularGrid(bounds geometry.Bounds, resolution float64) *RegularGrid {
	if resolution <= 0 || math.IsNaN(resolution) || math.IsInf(resolution, 0) {
		resolution = DefaultResolution
	}

	for ((bounds.Max.X-bounds.Min.X)/resolution+2)*((bounds.Max.Z-bounds.Min.Z)/resolution+2) > MaxCellCount {
		resolution *= 2
	}

	minX := math.Floor(bounds.Min.X/resolution) * resolution
	minZ := math.Floor(bounds.Min.Z/resolution) * resolution

	numCols := int(math.Floor((bounds.Max.X-minX)/resolution)) + 1
	numRows := int(math.Floor((bounds.Max.Z-minZ)/resolution)) + 1

	grid := &RegularGrid{
		Resolution: resolution,
		Min:        geometry.Vector3{X: minX, Z: minZ},
		Max: geometry.Vector3{
			X: minX + float64(numCols)*resolution,
			Z: minZ + float64(numRows)*resolution,
		},
	}

	grid.Grid = make([][][]int, numRows)
	for i := range grid.Grid {
		grid.Grid[i] = make([][]int, numCols)
	}
	return grid
}

func (grid *RegularGrid) rows() int {
	return len(grid.Grid)
}

func (grid *RegularGrid) cols() int {
	return len(grid.Grid[0])
}

// cellOf returns the cell holding p, clamped to the grid.
func (grid *RegularGrid) cellOf(p geometry.Vector3) (col int, row int) {
	col = int(math.Floor((p.X - grid.Min.X) / grid.Resolution))
	row = int(math.Floor((p.Z - grid.Min.Z) / grid.Resolution))
	return clamp(col, 0, grid.cols()-1), clamp(row, 0, grid.rows()-1)
}

func (grid *RegularGrid) Insert(index int, b geometry.Bounds) {
	minCol, minRow := grid.cellOf(b.Min)
	maxCol, maxRow := grid.cellOf(b.Max)

	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			grid.Grid[row][col] = append(grid.Grid[row][col], index)
		}
	}
	grid.ItemCount++
}

// Walk is an Amanatides-Woo traversal of the cells crossed by r.
func (grid *RegularGrid) Walk(r geometry.Ray, visit func(items []int, tExit float64) bool) {
	dir := r.Direction()

	// clip the ray to the grid:
	tEnter, tLeave := 0.0, 1.0
	clip := func(origin, d, min, max float64) bool {
		if d == 0 {
			return origin >= min && origin <= max
		}
		t1 := (min - origin) / d
		t2 := (max - origin) / d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tEnter = math.Max(tEnter, t1)
		tLeave = math.Min(tLeave, t2)
		return tEnter <= tLeave
	}
	if !clip(r.From.X, dir.X, grid.Min.X, grid.Max.X) ||
		!clip(r.From.Z, dir.Z, grid.Min.Z, grid.Max.Z) {
		return
	}

	col, row := grid.cellOf(r.PointAt(tEnter))

	stepCol, tMaxX, tDeltaX := grid.axisStep(r.From.X, dir.X, grid.Min.X, col)
	stepRow, tMaxZ, tDeltaZ := grid.axisStep(r.From.Z, dir.Z, grid.Min.Z, row)

	for {
		tExit := math.Min(math.Min(tMaxX, tMaxZ), tLeave)
		if !visit(grid.Grid[row][col], tExit) {
			return
		}
		if tExit >= tLeave {
			return
		}

		// pick next cell:
		if tMaxX < tMaxZ {
			col += stepCol
			tMaxX += tDeltaX
		} else {
			row += stepRow
			tMaxZ += tDeltaZ
		}

		if col < 0 || col >= grid.cols() || row < 0 || row >= grid.rows() {
			return
		}
	}
}

// axisStep returns the walking direction along one axis, the ray parameter of
// the first cell boundary crossing and the parameter delta between two
// crossings.
func (grid *RegularGrid) axisStep(origin, d, min float64, cell int) (int, float64, float64) {
	switch {
	case d > 0:
		boundary := min + float64(cell+1)*grid.Resolution
		return 1, (boundary - origin) / d, grid.Resolution / d
	case d < 0:
		boundary := min + float64(cell)*grid.Resolution
		return -1, (boundary - origin) / d, -grid.Resolution / d
	default:
		return 0, math.Inf(1), math.Inf(1)
	}
}

// GetRegion returns the sorted, de-duplicated items of the cells overlapping
// the given XZ rectangle.
func (grid *RegularGrid) GetRegion(min geometry.Vector3, max geometry.Vector3) []int {
	if max.X < grid.Min.X || max.Z < grid.Min.Z || min.X > grid.Max.X || min.Z > grid.Max.Z {
		return nil
	}

	minCol, minRow := grid.cellOf(min)
	maxCol, maxRow := grid.cellOf(max)

	result := make(map[int]struct{})
	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			for _, index := range grid.Grid[row][col] {
				result[index] = struct{}{}
			}
		}
	}

	items := make([]int, 0, len(result))
	for index := range result {
		items = append(items, index)
	}
	sort.Ints(items)
	return items
}

func (grid *RegularGrid) GetDebugInfo() SpatialDebugInfo {
	result := SpatialDebugInfo{
		Resolution: grid.Resolution,
		RowCount:   uint32(grid.rows()),
		ColCount:   uint32(grid.cols()),
		ItemCount:  grid.ItemCount,
		MinPoint:   grid.Min,
		MaxPoint:   grid.Max,
	}

	result.Occupancy = make([]uint32, result.RowCount*result.ColCount)
	for y := uint32(0); y < result.RowCount; y++ {
		for x := uint32(0); x < result.ColCount; x++ {
			result.Occupancy[y*result.ColCount+x] = uint32(len(grid.Grid[y][x]))
		}
	}
	return result
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
