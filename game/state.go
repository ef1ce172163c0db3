package game

import (
	"errors"
	"fmt"
	"iter"
	"math/rand"
)

// Cell is the occupancy of a single grid square.
type Cell uint8

const (
	CellEmpty Cell = iota
	CellBody
	// CellHead marks the head. It does not count as a hit, so the head never
	// collides with itself.
	CellHead
)

// MinBoardSize is the smallest rows/columns value a board accepts.
const MinBoardSize = 3

var (
	ErrBoardFull    = errors.New("board full: no free cell for food")
	ErrNotInSnake   = errors.New("point not in snake")
	ErrBodyTooShort = errors.New("body too short to remove tail")
)

// Board is the complete engine state: bounds, snake body, heading, derived
// occupancy grid and food. It does no collision checking on its own moves;
// callers check HeadCollides after moving.
type Board struct {
	rows    int
	columns int

	body      *Body
	direction Direction
	grid      [][]Cell
	food      Point
	// headHit is set by UpdateGrid when the head shares a cell with the
	// rest of the body.
	headHit bool

	rng *rand.Rand
}

// NewBoard creates an empty board. Call Reset before playing.
func NewBoard(rows, columns int, rng *rand.Rand) (*Board, error) {
	if rows < MinBoardSize || columns < MinBoardSize {
		return nil, fmt.Errorf("board %dx%d smaller than %dx%d", columns, rows, MinBoardSize, MinBoardSize)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	grid := make([][]Cell, rows)
	for y := range grid {
		grid[y] = make([]Cell, columns)
	}
	return &Board{
		rows:      rows,
		columns:   columns,
		body:      NewBody(rows*columns + 1),
		direction: Right,
		grid:      grid,
		rng:       rng,
	}, nil
}

func (b *Board) Rows() int            { return b.rows }
func (b *Board) Columns() int         { return b.columns }
func (b *Board) Len() int             { return b.body.Len() }
func (b *Board) Direction() Direction { return b.direction }
func (b *Board) Food() Point          { return b.food }
func (b *Board) Head() Point          { return b.body.Front() }
func (b *Board) Tail() Point          { return b.body.Back() }

// Body yields the snake from head to tail.
func (b *Board) Body() iter.Seq[Point] { return b.body.All() }

// BodyPoints returns a copy of the snake, head first.
func (b *Board) BodyPoints() []Point { return b.body.Points() }

// Cell returns the occupancy at p. Out of board cells read as empty.
func (b *Board) Cell(p Point) Cell {
	if b.IsOutOfBoard(p) {
		return CellEmpty
	}
	return b.grid[p.Y][p.X]
}

// Grid returns a copy of the occupancy grid indexed [row][column].
func (b *Board) Grid() [][]Cell {
	out := make([][]Cell, b.rows)
	for y := range b.grid {
		out[y] = append([]Cell(nil), b.grid[y]...)
	}
	return out
}

// Reset starts a new episode: a two cell snake at a random position at least
// one cell from the border, a random heading, and fresh food.
func (b *Board) Reset() error {
	b.body.Clear()

	b.direction = Directions[b.rng.Intn(NumActions)]
	head := Point{
		X: 1 + b.rng.Intn(b.columns-2),
		Y: 1 + b.rng.Intn(b.rows-2),
	}
	b.body.PushBack(head)
	b.body.PushBack(head.Sub(b.direction))

	b.UpdateGrid()
	return b.PlaceFood()
}

// SetBody replaces the snake with points (head first) and the heading with
// direction. Food is left untouched unless it now overlaps the body, in
// which case a new one is placed.
func (b *Board) SetBody(points []Point, direction Direction) error {
	if len(points) == 0 {
		return errors.New("empty body")
	}
	if len(points) > b.body.Cap() {
		return fmt.Errorf("body of %d cells exceeds board capacity %d", len(points), b.body.Cap())
	}
	for _, p := range points {
		if b.IsOutOfBoard(p) {
			return fmt.Errorf("body cell %v out of board", p)
		}
	}
	b.body.Clear()
	for _, p := range points {
		b.body.PushBack(p)
	}
	b.direction = direction
	b.UpdateGrid()
	if b.grid[b.food.Y][b.food.X] != CellEmpty {
		return b.PlaceFood()
	}
	return nil
}

// SetFood moves the food to p, which must be a free in-board cell.
func (b *Board) SetFood(p Point) error {
	if b.IsOutOfBoard(p) {
		return fmt.Errorf("food %v out of board", p)
	}
	if b.grid[p.Y][p.X] != CellEmpty {
		return fmt.Errorf("food %v on snake", p)
	}
	b.food = p
	return nil
}

// Move turns according to action (keeping the heading for empty or
// ambiguous actions), pushes the new head and drops the tail unless the new
// head landed on food. It reports whether food was eaten.
func (b *Board) Move(action Action) bool {
	b.direction = Decode(b.direction, action)
	head := b.Head().Add(b.direction)
	b.body.PushFront(head)

	ate := head == b.food
	if !ate {
		b.body.PopBack()
	}
	b.UpdateGrid()
	return ate
}

// RemoveTail shrinks the snake by one and returns the removed cell.
func (b *Board) RemoveTail() (Point, error) {
	if b.body.Len() <= 1 {
		return Point{}, ErrBodyTooShort
	}
	tail, _ := b.body.PopBack()
	b.UpdateGrid()
	return tail, nil
}

// UpdateGrid recomputes the occupancy grid from the body.
func (b *Board) UpdateGrid() {
	for y := range b.grid {
		clear(b.grid[y])
	}
	b.headHit = false
	for i := 1; i < b.body.Len(); i++ {
		p := b.body.At(i)
		if !b.IsOutOfBoard(p) {
			b.grid[p.Y][p.X] = CellBody
		}
	}
	if b.body.Len() > 0 {
		head := b.Head()
		if !b.IsOutOfBoard(head) {
			b.headHit = b.grid[head.Y][head.X] == CellBody
			b.grid[head.Y][head.X] = CellHead
		}
	}
}

// HeadCollides reports whether the head has left the board or landed on the
// rest of the body. A cell the tail vacated on the same move is free.
func (b *Board) HeadCollides() bool {
	if b.body.Len() == 0 {
		return false
	}
	return b.IsOutOfBoard(b.Head()) || b.headHit
}

func (b *Board) IsOutOfBoard(p Point) bool {
	return p.X < 0 || p.Y < 0 || p.X >= b.columns || p.Y >= b.rows
}

// IsHit reports whether p is a body cell other than the head, using the grid.
func (b *Board) IsHit(p Point) bool {
	if b.IsOutOfBoard(p) {
		return false
	}
	return b.grid[p.Y][p.X] == CellBody
}

// IsHitList is IsHit computed by scanning the body.
func (b *Board) IsHitList(p Point) bool {
	if b.body.Len() == 0 || p == b.Head() {
		return false
	}
	for cell := range b.body.All() {
		if cell == p {
			return true
		}
	}
	return false
}

// IsCollision reports whether p is outside the board or on the body.
func (b *Board) IsCollision(p Point) bool {
	return b.IsOutOfBoard(p) || b.IsHit(p)
}

// SnakeIndex returns the position of p in the body counting from the head.
func (b *Board) SnakeIndex(p Point) (int, error) {
	i := 0
	for cell := range b.body.All() {
		if cell == p {
			return i, nil
		}
		i++
	}
	return -1, fmt.Errorf("%w: %v", ErrNotInSnake, p)
}

// Clone performs a deep copy of the board. The clone shares the random
// source, so it is only meant for read-only snapshots.
func (b *Board) Clone() *Board {
	if b == nil {
		return nil
	}
	return &Board{
		rows:      b.rows,
		columns:   b.columns,
		body:      b.body.Clone(),
		direction: b.direction,
		grid:      b.Grid(),
		food:      b.food,
		headHit:   b.headHit,
		rng:       b.rng,
	}
}
