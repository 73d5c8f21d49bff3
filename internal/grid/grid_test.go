package grid

import (
	"errors"
	"math"
	"testing"

	"github.com/david-fong/capswalk-sub001/internal/lang"
)

func TestNewRejectsUnsupportedSystemsAndSizes(t *testing.T) {
	if _, err := New(SystemHex, 4, 4); !errors.Is(err, ErrUnsupportedSystem) {
		t.Fatalf("expected hex grid to be unsupported, got %v", err)
	}
	if _, err := New(System("triangle"), 4, 4); !errors.Is(err, ErrUnsupportedSystem) {
		t.Fatalf("expected unknown system to be unsupported, got %v", err)
	}
	if _, err := New(SystemSquare, 0, 4); !errors.Is(err, ErrInvalidDimensions) {
		t.Fatalf("expected invalid dimensions error, got %v", err)
	}
}

func TestNewInitialisesTiles(t *testing.T) {
	g, err := New(SystemSquare, 3, 2)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if g.Len() != 6 {
		t.Fatalf("expected 6 tiles, got %d", g.Len())
	}
	for _, tile := range g.Tiles() {
		if tile.OccupancyVersion != InitialOccupancyVersion {
			t.Fatalf("tile %+v starts at version %d", tile.Coord, tile.OccupancyVersion)
		}
		got, ok := g.TileAt(tile.Coord)
		if !ok || got != tile {
			t.Fatalf("TileAt(%+v) did not return the arena tile", tile.Coord)
		}
	}
	if _, ok := g.TileAt(Coord{X: 3, Y: 0}); ok {
		t.Fatalf("expected out of bounds lookup to fail")
	}
}

func TestTilesWithinClipsToBounds(t *testing.T) {
	g, err := New(SystemSquare, 5, 5)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	tests := []struct {
		name   string
		centre Coord
		radius int
		want   int
	}{
		{name: "interior radius 1", centre: Coord{X: 2, Y: 2}, radius: 1, want: 9},
		{name: "interior radius 2", centre: Coord{X: 2, Y: 2}, radius: 2, want: 25},
		{name: "corner radius 1", centre: Coord{X: 0, Y: 0}, radius: 1, want: 4},
		{name: "edge radius 2", centre: Coord{X: 0, Y: 2}, radius: 2, want: 15},
		{name: "radius 0", centre: Coord{X: 4, Y: 4}, radius: 0, want: 1},
		{name: "negative radius", centre: Coord{X: 1, Y: 1}, radius: -1, want: 0},
		{name: "far outside", centre: Coord{X: 40, Y: 40}, radius: 2, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tiles := g.TilesWithin(tt.centre, tt.radius)
			if len(tiles) != tt.want {
				t.Fatalf("expected %d tiles, got %d", tt.want, len(tiles))
			}
			for _, tile := range tiles {
				if d := tile.Coord.InfDist(tt.centre); d > tt.radius {
					t.Fatalf("tile %+v is %d away, beyond radius %d", tile.Coord, d, tt.radius)
				}
			}
		})
	}
}

func TestNeighboursExcludesCentre(t *testing.T) {
	g, err := New(SystemSquare, 5, 5)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	centre := Coord{X: 2, Y: 2}
	neighbours := g.Neighbours(centre, 2)
	if len(neighbours) != NeighbourhoodSize(2)-1 {
		t.Fatalf("expected %d neighbours, got %d", NeighbourhoodSize(2)-1, len(neighbours))
	}
	for _, tile := range neighbours {
		if tile.Coord == centre {
			t.Fatalf("centre tile returned as its own neighbour")
		}
	}
}

func TestIsOccupied(t *testing.T) {
	g, err := New(SystemSquare, 2, 2)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	tile, _ := g.TileAt(Coord{X: 1, Y: 1})
	tile.Occupy(7)
	if !g.IsOccupied(Coord{X: 1, Y: 1}) {
		t.Fatalf("expected tile to be occupied")
	}
	if g.IsOccupied(Coord{X: 0, Y: 0}) {
		t.Fatalf("expected empty tile to be unoccupied")
	}
	if g.IsOccupied(Coord{X: -1, Y: 0}) {
		t.Fatalf("expected out of bounds coordinate to be unoccupied")
	}
	tile.Evict()
	if g.IsOccupied(Coord{X: 1, Y: 1}) {
		t.Fatalf("expected evicted tile to be unoccupied")
	}
}

func TestAdvanceVersionNeverMovesBackward(t *testing.T) {
	tile := NewBenchTile()
	if tile.AdvanceVersion(InitialOccupancyVersion) {
		t.Fatalf("equal version should not advance")
	}
	if !tile.AdvanceVersion(5) {
		t.Fatalf("higher version should advance")
	}
	if tile.AdvanceVersion(3) {
		t.Fatalf("lower version should not advance")
	}
	if tile.OccupancyVersion != 5 {
		t.Fatalf("expected version 5, got %d", tile.OccupancyVersion)
	}
}

func TestCoordArithmeticAndNorms(t *testing.T) {
	a := Coord{X: 2, Y: -3}
	b := Coord{X: -1, Y: 4}
	if got := a.Add(b); got != (Coord{X: 1, Y: 1}) {
		t.Fatalf("Add: got %+v", got)
	}
	if got := a.Sub(b); got != (Coord{X: 3, Y: -7}) {
		t.Fatalf("Sub: got %+v", got)
	}
	if got := a.Mul(-2); got != (Coord{X: -4, Y: 6}) {
		t.Fatalf("Mul: got %+v", got)
	}
	if got := a.OneNorm(); got != 5 {
		t.Fatalf("OneNorm: got %d", got)
	}
	if got := a.InfNorm(); got != 3 {
		t.Fatalf("InfNorm: got %d", got)
	}
	if got := a.InfDist(b); got != 7 {
		t.Fatalf("InfDist: got %d", got)
	}
}

func TestAxialAlignment(t *testing.T) {
	tests := []struct {
		c    Coord
		want float64
	}{
		{c: Coord{X: 3, Y: 0}, want: 1},
		{c: Coord{X: 0, Y: -2}, want: 1},
		{c: Coord{X: 2, Y: 2}, want: 0},
		{c: Coord{X: -1, Y: 1}, want: 0},
		{c: Coord{}, want: 1},
	}
	for _, tt := range tests {
		if got := tt.c.AxialAlignment(); math.Abs(got-tt.want) > 1e-9 {
			t.Fatalf("AxialAlignment(%+v) = %f, want %f", tt.c, got, tt.want)
		}
	}
	partial := Coord{X: 2, Y: 1}.AxialAlignment()
	if partial <= 0 || partial >= 1 {
		t.Fatalf("expected off-axis vector to be strictly between 0 and 1, got %f", partial)
	}
}

func TestBenchTileIgnoresPairs(t *testing.T) {
	tile := NewBenchTile()
	tile.SetPair(lang.Pair{Char: "a", Seq: "a"})
	if tile.Assigned != nil {
		t.Fatalf("bench tile should not carry a pair")
	}
}
