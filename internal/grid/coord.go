package grid

import "math"

// System identifies the lattice a grid is laid out on.
type System string

const (
	// SystemSquare is the Euclidean square lattice.
	SystemSquare System = "square"
	// SystemHex is reserved for the hexagonal lattice, which is not implemented.
	SystemHex System = "hex"
)

// Coord is an immutable position on the square lattice.
type Coord struct {
	X int `json:"x" msgpack:"x"`
	Y int `json:"y" msgpack:"y"`
}

// Add returns c+o.
func (c Coord) Add(o Coord) Coord {
	return Coord{X: c.X + o.X, Y: c.Y + o.Y}
}

// Sub returns c-o.
func (c Coord) Sub(o Coord) Coord {
	return Coord{X: c.X - o.X, Y: c.Y - o.Y}
}

// Mul scales both components.
func (c Coord) Mul(scale int) Coord {
	return Coord{X: c.X * scale, Y: c.Y * scale}
}

// Equal reports whether both coordinates name the same lattice point.
func (c Coord) Equal(o Coord) bool {
	return c.X == o.X && c.Y == o.Y
}

// OneNorm is the Manhattan length of c.
func (c Coord) OneNorm() int {
	return abs(c.X) + abs(c.Y)
}

// InfNorm is the Chebyshev length of c.
func (c Coord) InfNorm() int {
	return max(abs(c.X), abs(c.Y))
}

// OneDist is the Manhattan distance between c and o.
func (c Coord) OneDist(o Coord) int {
	return c.Sub(o).OneNorm()
}

// InfDist is the Chebyshev distance between c and o.
func (c Coord) InfDist(o Coord) int {
	return c.Sub(o).InfNorm()
}

// AxialAlignment measures how closely c points along an axis: 1 for a vector
// on an axis, 0 for a perfect diagonal. The zero vector reports 1.
func (c Coord) AxialAlignment() float64 {
	ax, ay := abs(c.X), abs(c.Y)
	if ax == 0 && ay == 0 {
		return 1
	}
	lo, hi := float64(min(ax, ay)), float64(max(ax, ay))
	return 1 - math.Atan2(lo, hi)/(math.Pi/4)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
