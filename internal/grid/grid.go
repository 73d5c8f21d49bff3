package grid

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedSystem is returned for lattices without an implementation.
	ErrUnsupportedSystem = errors.New("grid: unsupported coordinate system")
	// ErrInvalidDimensions is returned for non-positive grid sizes.
	ErrInvalidDimensions = errors.New("grid: invalid dimensions")
)

// Grid owns every Tile of one rectangular board. Tiles live in a flat arena
// indexed by y*width+x; the dimensions never change after construction.
type Grid struct {
	system System
	width  int
	height int
	tiles  []Tile
}

// New constructs a grid of the given lattice and size with every tile reset.
func New(system System, width, height int) (*Grid, error) {
	switch system {
	case SystemSquare:
	case SystemHex:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSystem, system)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSystem, system)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}

	g := &Grid{
		system: system,
		width:  width,
		height: height,
		tiles:  make([]Tile, width*height),
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			tile := &g.tiles[y*width+x]
			tile.Coord = Coord{X: x, Y: y}
			tile.Reset()
		}
	}
	return g, nil
}

// System reports the lattice the grid was built for.
func (g *Grid) System() System {
	return g.system
}

// Dimensions reports the grid's width and height.
func (g *Grid) Dimensions() (int, int) {
	return g.width, g.height
}

// Len is the number of tiles.
func (g *Grid) Len() int {
	return len(g.tiles)
}

// InBounds reports whether c lies on the grid.
func (g *Grid) InBounds(c Coord) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < g.width && c.Y < g.height
}

// TileAt returns the tile at c.
func (g *Grid) TileAt(c Coord) (*Tile, bool) {
	if !g.InBounds(c) {
		return nil, false
	}
	return &g.tiles[c.Y*g.width+c.X], true
}

// IsOccupied reports whether a player stands at c. Out of bounds
// coordinates are never occupied.
func (g *Grid) IsOccupied(c Coord) bool {
	tile, ok := g.TileAt(c)
	return ok && tile.IsOccupied()
}

// TilesWithin returns every tile whose Chebyshev distance to c is at most
// radius, clipped to the grid. The tile at c is included when in bounds.
func (g *Grid) TilesWithin(c Coord, radius int) []*Tile {
	return g.collect(c, radius, true)
}

// Neighbours is TilesWithin without the tile at c.
func (g *Grid) Neighbours(c Coord, radius int) []*Tile {
	return g.collect(c, radius, false)
}

// Tiles returns every tile in arena order.
func (g *Grid) Tiles() []*Tile {
	out := make([]*Tile, len(g.tiles))
	for i := range g.tiles {
		out[i] = &g.tiles[i]
	}
	return out
}

// Reset restores every tile to its start-of-game state.
func (g *Grid) Reset() {
	for i := range g.tiles {
		g.tiles[i].Reset()
	}
}

func (g *Grid) collect(c Coord, radius int, includeCentre bool) []*Tile {
	if radius < 0 {
		return nil
	}
	x0, x1 := max(c.X-radius, 0), min(c.X+radius, g.width-1)
	y0, y1 := max(c.Y-radius, 0), min(c.Y+radius, g.height-1)
	if x0 > x1 || y0 > y1 {
		return nil
	}
	out := make([]*Tile, 0, (x1-x0+1)*(y1-y0+1))
	for y := y0; y <= y1; y++ {
		row := y * g.width
		for x := x0; x <= x1; x++ {
			if !includeCentre && x == c.X && y == c.Y {
				continue
			}
			out = append(out, &g.tiles[row+x])
		}
	}
	return out
}

// NeighbourhoodSize is the number of lattice points within radius of a
// point, centre included, ignoring grid bounds.
func NeighbourhoodSize(radius int) int {
	if radius < 0 {
		return 0
	}
	side := 2*radius + 1
	return side * side
}
