// Package viewer shows training progress outside the core loop: board frame
// snapshots, a websocket feed of those frames and a terminal dashboard.
package viewer

import (
	"strings"

	"github.com/brensch/snekql/game"
	"github.com/brensch/snekql/rules"
)

// Frame is an immutable copy of one board position, safe to hand to other
// goroutines.
type Frame struct {
	Game      int          `json:"game"`
	Step      int          `json:"step"`
	Score     int          `json:"score"`
	Record    int          `json:"record"`
	Rows      int          `json:"rows"`
	Columns   int          `json:"columns"`
	Head      game.Point   `json:"head"`
	Body      []game.Point `json:"body"`
	Food      game.Point   `json:"food"`
	Direction string       `json:"direction"`
	Done      bool         `json:"done"`
	Ending    string       `json:"ending,omitempty"`
}

func NewFrame(env *rules.Env, gameNo, record int) Frame {
	b := env.Board()
	f := Frame{
		Game:      gameNo,
		Step:      env.Steps(),
		Score:     env.Score(),
		Record:    record,
		Rows:      b.Rows(),
		Columns:   b.Columns(),
		Head:      b.Head(),
		Body:      b.BodyPoints(),
		Food:      b.Food(),
		Direction: game.DirectionName(b.Direction()),
		Done:      env.Done(),
	}
	if env.Done() {
		f.Ending = env.Ending().String()
	}
	return f
}

// Render draws the frame with '#' walls, 'O' head, 'o' body and '*' food.
func (f Frame) Render() string {
	if f.Rows <= 0 || f.Columns <= 0 {
		return ""
	}
	grid := make([][]byte, f.Rows)
	for y := range grid {
		grid[y] = []byte(strings.Repeat(" ", f.Columns))
	}
	set := func(p game.Point, c byte) {
		if p.X >= 0 && p.X < f.Columns && p.Y >= 0 && p.Y < f.Rows {
			grid[p.Y][p.X] = c
		}
	}
	set(f.Food, '*')
	for _, p := range f.Body {
		set(p, 'o')
	}
	if len(f.Body) > 0 {
		set(f.Head, 'O')
	}

	var sb strings.Builder
	wall := strings.Repeat("#", f.Columns+2)
	sb.WriteString(wall)
	sb.WriteByte('\n')
	for _, row := range grid {
		sb.WriteByte('#')
		sb.Write(row)
		sb.WriteString("#\n")
	}
	sb.WriteString(wall)
	sb.WriteByte('\n')
	return sb.String()
}
