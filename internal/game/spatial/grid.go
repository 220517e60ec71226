// Package spatial provides cache-efficient spatial data structures for
// broad-phase collision detection and neighbor queries on the sphere.
//
// All structures use preallocated slices with integer indices (not pointers)
// to minimize GC pressure and maximize cache locality.
package spatial

import (
	"math"
)

// SphereGrid provides O(1) average spatial queries over angular coordinates.
// Cells tile the sphere in (theta longitude, phi colatitude); theta wraps,
// phi clamps at the poles. Uses preallocated slices with entity indices
// (not pointers) for GC efficiency.
//
// Cell size should be at least the largest query radius (in radians of
// great-circle angle) so a query never scans more than the 3x3 neighborhood
// away from the poles.
//
// Memory layout: cells are stored in row-major order (cells[row*cols+col]).
type SphereGrid struct {
	cols, rows  int // theta columns, phi rows
	invColSize  float64
	invRowSize  float64
	cells       [][]uint32 // cells[row*cols+col] = list of entity indices
	scratch     []uint32   // reusable buffer for query results
	maxEntities int
}

// NewSphereGrid creates a grid with the given angular resolution.
// maxEntities is used to preallocate cell capacity.
func NewSphereGrid(thetaCells, phiCells, maxEntities int) *SphereGrid {
	if thetaCells < 1 {
		thetaCells = 1
	}
	if phiCells < 1 {
		phiCells = 1
	}

	cells := make([][]uint32, thetaCells*phiCells)
	avgPerCell := maxEntities / len(cells)
	if avgPerCell < 4 {
		avgPerCell = 4
	}
	for i := range cells {
		cells[i] = make([]uint32, 0, avgPerCell)
	}

	return &SphereGrid{
		cols:        thetaCells,
		rows:        phiCells,
		invColSize:  float64(thetaCells) / (2 * math.Pi),
		invRowSize:  float64(phiCells) / math.Pi,
		cells:       cells,
		scratch:     make([]uint32, 0, 64),
		maxEntities: maxEntities,
	}
}

// Clear resets all cells without deallocating underlying memory.
// O(n) in the number of cells, not the number of entities.
func (g *SphereGrid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
}

func (g *SphereGrid) col(theta float64) int {
	c := int((theta + math.Pi) * g.invColSize)
	c %= g.cols
	if c < 0 {
		c += g.cols
	}
	return c
}

func (g *SphereGrid) row(phi float64) int {
	r := int(phi * g.invRowSize)
	if r < 0 {
		r = 0
	}
	if r >= g.rows {
		r = g.rows - 1
	}
	return r
}

// Insert adds an entity at (theta, phi).
// The entityID should be the index into your entity slice.
func (g *SphereGrid) Insert(entityID uint32, theta, phi float64) {
	idx := g.row(phi)*g.cols + g.col(theta)
	g.cells[idx] = append(g.cells[idx], entityID)
}

// QueryRadius returns all entity IDs potentially within the great-circle
// angle radius of (theta, phi). Theta coverage widens toward the poles,
// where a fixed angular radius spans more longitude.
//
// IMPORTANT: The returned slice is reused on subsequent calls.
// Copy the results if you need to persist them.
//
// The returned candidates may include entities outside the radius;
// the caller must perform a precise distance check (narrow phase).
func (g *SphereGrid) QueryRadius(theta, phi, radius float64) []uint32 {
	g.scratch = g.scratch[:0]

	minRow := g.row(phi - radius)
	maxRow := g.row(phi + radius)

	rowSize := math.Pi / float64(g.rows)
	colSize := 2 * math.Pi / float64(g.cols)

	for row := minRow; row <= maxRow; row++ {
		// Longitude span needed at this row: radius / sin(phi), taking the
		// row edge closest to a pole. Near the poles the span covers every
		// column.
		sinLo := math.Sin(float64(row) * rowSize)
		sinHi := math.Sin(float64(row+1) * rowSize)
		sinMin := math.Min(sinLo, sinHi)

		allCols := sinMin*math.Pi <= radius
		var spanCols int
		if !allCols {
			spanCols = int(radius/(sinMin*colSize)) + 1
			if spanCols*2+1 >= g.cols {
				allCols = true
			}
		}

		base := row * g.cols
		if allCols {
			for col := 0; col < g.cols; col++ {
				g.scratch = append(g.scratch, g.cells[base+col]...)
			}
			continue
		}

		center := g.col(theta)
		for d := -spanCols; d <= spanCols; d++ {
			col := (center + d) % g.cols
			if col < 0 {
				col += g.cols
			}
			g.scratch = append(g.scratch, g.cells[base+col]...)
		}
	}

	return g.scratch
}

// QueryCell returns all entity IDs in the cell containing (theta, phi).
func (g *SphereGrid) QueryCell(theta, phi float64) []uint32 {
	return g.cells[g.row(phi)*g.cols+g.col(theta)]
}

// Stats returns grid statistics for debugging/profiling.
func (g *SphereGrid) Stats() GridStats {
	var totalEntities, maxInCell, nonEmpty int
	for _, cell := range g.cells {
		count := len(cell)
		totalEntities += count
		if count > maxInCell {
			maxInCell = count
		}
		if count > 0 {
			nonEmpty++
		}
	}

	avgPerCell := 0.0
	if nonEmpty > 0 {
		avgPerCell = float64(totalEntities) / float64(nonEmpty)
	}

	return GridStats{
		TotalCells:     len(g.cells),
		NonEmptyCells:  nonEmpty,
		TotalEntities:  totalEntities,
		MaxInCell:      maxInCell,
		AvgPerNonEmpty: avgPerCell,
	}
}

// GridStats contains grid statistics for debugging.
type GridStats struct {
	TotalCells     int
	NonEmptyCells  int
	TotalEntities  int
	MaxInCell      int
	AvgPerNonEmpty float64
}

// Dimensions returns the grid resolution.
func (g *SphereGrid) Dimensions() (thetaCells, phiCells int) {
	return g.cols, g.rows
}
