package convert

import (
	"fmt"

	"github.com/brensch/snekql/game"
)

// CostFunc scores stepping from the head in direction d. Larger values mean
// a more attractive direction; a move that collides scores 0.
type CostFunc func(b *game.Board, d game.Direction) float64

// ManhattanCost prefers the neighbour closest to the food. Any safe in-board
// neighbour scores at least 1.
func ManhattanCost(b *game.Board, d game.Direction) float64 {
	next := b.Head().Add(d)
	if b.IsCollision(next) {
		return 0
	}
	return float64(b.Rows() + b.Columns() - next.Distance(b.Food()))
}

// SpaceCost counts the free cells reachable from the neighbour, so moves
// that would seal the snake into a pocket score low.
func SpaceCost(b *game.Board, d game.Direction) float64 {
	start := b.Head().Add(d)
	if b.IsCollision(start) {
		return 0
	}

	seen := make([]bool, b.Rows()*b.Columns())
	index := func(p game.Point) int { return p.Y*b.Columns() + p.X }

	queue := []game.Point{start}
	seen[index(start)] = true
	reached := 0
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		reached++
		for _, step := range game.Directions {
			n := p.Add(step)
			if b.IsOutOfBoard(n) || seen[index(n)] || b.Cell(n) != game.CellEmpty {
				continue
			}
			seen[index(n)] = true
			queue = append(queue, n)
		}
	}
	return float64(reached)
}

// CostByName resolves a configured cost heuristic.
func CostByName(name string) (CostFunc, error) {
	switch name {
	case "", "manhattan":
		return ManhattanCost, nil
	case "space":
		return SpaceCost, nil
	default:
		return nil, fmt.Errorf("unknown cost heuristic %q", name)
	}
}
