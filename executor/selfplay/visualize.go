// visualize.go - Console visualization for debugging training games.
//
// FormatBoard renders the board plus the feature vector the agent sees.
package selfplay

import (
	"fmt"
	"io"
	"strings"

	"github.com/brensch/snekql/executor/convert"
	"github.com/brensch/snekql/game"
)

var groupNames = [convert.Groups]string{"costs", "collisions", "moves", "food"}

func FormatBoard(b *game.Board, features convert.Features) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "\n=== TRACE len=%d dir=%s head=%v food=%v ===\n",
		b.Len(), game.DirectionName(b.Direction()), b.Head(), b.Food())

	for y := 0; y < b.Rows(); y++ {
		for x := 0; x < b.Columns(); x++ {
			p := game.Point{X: x, Y: y}
			switch {
			case b.Cell(p) == game.CellHead:
				sb.WriteString("O ")
			case b.Cell(p) == game.CellBody:
				sb.WriteString("o ")
			case p == b.Food():
				sb.WriteString("F ")
			default:
				sb.WriteString(". ")
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString("--- TRACE features (down left right up) ---\n")
	for g := 0; g < convert.Groups; g++ {
		fmt.Fprintf(&sb, "%-10s", groupNames[g])
		for i := 0; i < convert.GroupSize; i++ {
			fmt.Fprintf(&sb, " %5.1f", features[g*convert.GroupSize+i])
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func PrintBoard(w io.Writer, b *game.Board, features convert.Features) {
	_, _ = io.WriteString(w, FormatBoard(b, features))
}
