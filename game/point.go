// Package game defines the board, snake and geometry types for a single
// snake on a fixed grid.
//
// Coordinates are (column, row): (0,0) is the top-left cell and Y grows
// downward, so a Point indexes the occupancy grid as grid[Y][X].
package game

import "fmt"

// Point is a board coordinate or a displacement between two coordinates.
type Point struct {
	X int
	Y int
}

func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Mask keeps each axis of p only where q is non-zero on that axis.
func (p Point) Mask(q Point) Point {
	var out Point
	if q.X != 0 {
		out.X = p.X
	}
	if q.Y != 0 {
		out.Y = p.Y
	}
	return out
}

func (p Point) Scale(k int) Point { return Point{X: p.X * k, Y: p.Y * k} }

// Mul multiplies component-wise.
func (p Point) Mul(q Point) Point { return Point{X: p.X * q.X, Y: p.Y * q.Y} }

func (p Point) Dot(q Point) int {
	m := p.Mul(q)
	return m.X + m.Y
}

// Distance is the Manhattan distance between p and q.
func (p Point) Distance(q Point) int {
	return abs(p.X-q.X) + abs(p.Y-q.Y)
}

// Unit returns the component-wise sign of p.
func (p Point) Unit() Point {
	return Point{X: sign(p.X), Y: sign(p.Y)}
}

// TargetDirection is the unit step (per axis) from p toward q.
func (p Point) TargetDirection(q Point) Point {
	return q.Sub(p).Unit()
}

// AllowedDirections is the parity turn heuristic: odd rows head left, even
// rows head right; odd columns head down, even columns head up.
func (p Point) AllowedDirections() Point {
	out := Point{X: 1, Y: -1}
	if p.X%2 != 0 {
		out.Y = 1
	}
	if p.Y%2 != 0 {
		out.X = -1
	}
	return out
}

func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	default:
		return 0
	}
}
