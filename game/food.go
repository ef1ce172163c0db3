// food.go implements food placement.

package game

// foodSampleFactor bounds rejection sampling to this many draws per cell
// before falling back to enumerating free cells.
const foodSampleFactor = 4

// PlaceFood puts the food on a uniformly random cell that is neither body nor
// head. It returns ErrBoardFull, leaving the old food in place, when no such
// cell exists.
func (b *Board) PlaceFood() error {
	free := b.FreeCells()
	if free == 0 {
		return ErrBoardFull
	}
	attempts := foodSampleFactor * b.rows * b.columns
	for i := 0; i < attempts; i++ {
		p := b.randomPoint()
		if b.grid[p.Y][p.X] == CellEmpty {
			b.food = p
			return nil
		}
	}

	// Nearly full board: pick among the remaining free cells directly.
	freeSpots := make([]Point, 0, free)
	for y := 0; y < b.rows; y++ {
		for x := 0; x < b.columns; x++ {
			if b.grid[y][x] == CellEmpty {
				freeSpots = append(freeSpots, Point{X: x, Y: y})
			}
		}
	}
	if len(freeSpots) == 0 {
		return ErrBoardFull
	}
	b.food = freeSpots[b.rng.Intn(len(freeSpots))]
	return nil
}

// FreeCells counts cells that are neither body nor head.
func (b *Board) FreeCells() int {
	return max(b.rows*b.columns-b.body.Len(), 0)
}

func (b *Board) randomPoint() Point {
	return Point{X: b.rng.Intn(b.columns), Y: b.rng.Intn(b.rows)}
}
