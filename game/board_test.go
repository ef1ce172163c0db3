package game

import (
	"errors"
	"math/rand"
	"strings"
	"testing"
)

// dumpState is a test helper to visualize board state.
func dumpState(b *Board) string {
	var sb strings.Builder
	for y := 0; y < b.Rows(); y++ {
		for x := 0; x < b.Columns(); x++ {
			p := Point{X: x, Y: y}
			switch {
			case b.Len() > 0 && p == b.Head():
				sb.WriteByte('H')
			case b.Cell(p) == CellBody:
				sb.WriteByte('o')
			case p == b.Food():
				sb.WriteByte('*')
			default:
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func newTestBoard(t *testing.T, rows, columns int, seed int64) *Board {
	t.Helper()
	b, err := NewBoard(rows, columns, rand.New(rand.NewSource(seed)))
	if err != nil {
		t.Fatalf("NewBoard: %v", err)
	}
	if err := b.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	return b
}

func setup(t *testing.T, b *Board, body []Point, dir Direction, food Point) {
	t.Helper()
	if err := b.SetBody(body, dir); err != nil {
		t.Fatalf("SetBody: %v", err)
	}
	if err := b.SetFood(food); err != nil {
		t.Fatalf("SetFood: %v", err)
	}
}

func assertBody(t *testing.T, b *Board, want []Point) {
	t.Helper()
	got := b.BodyPoints()
	if len(got) != len(want) {
		t.Fatalf("body len=%d want=%d\n%s", len(got), len(want), dumpState(b))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("body[%d]=%v want=%v\n%s", i, got[i], want[i], dumpState(b))
		}
	}
}

func TestNewBoard_TooSmall(t *testing.T) {
	if _, err := NewBoard(2, 10, nil); err == nil {
		t.Fatalf("expected error for 10x2 board")
	}
	if _, err := NewBoard(10, 2, nil); err == nil {
		t.Fatalf("expected error for 2x10 board")
	}
	if _, err := NewBoard(3, 3, nil); err != nil {
		t.Fatalf("3x3 board: %v", err)
	}
}

func TestReset_Invariants(t *testing.T) {
	for seed := int64(0); seed < 200; seed++ {
		b := newTestBoard(t, 6, 9, seed)

		if b.Len() != 2 {
			t.Fatalf("seed=%d len=%d want=2", seed, b.Len())
		}
		head := b.Head()
		if head.X < 1 || head.X > b.Columns()-2 || head.Y < 1 || head.Y > b.Rows()-2 {
			t.Fatalf("seed=%d head=%v not in interior", seed, head)
		}
		if got, want := b.Tail(), head.Sub(b.Direction()); got != want {
			t.Fatalf("seed=%d tail=%v want=%v", seed, got, want)
		}
		if DirectionIndex(b.Direction()) < 0 {
			t.Fatalf("seed=%d direction=%v not a unit direction", seed, b.Direction())
		}
		if b.IsCollision(head) {
			t.Fatalf("seed=%d head collides after reset\n%s", seed, dumpState(b))
		}
		if got, want := b.FreeCells(), 6*9-2; got != want {
			t.Fatalf("seed=%d free=%d want=%d", seed, got, want)
		}
		if food := b.Food(); b.IsOutOfBoard(food) || food == head || b.IsHitList(food) {
			t.Fatalf("seed=%d food=%v on snake or out of board\n%s", seed, food, dumpState(b))
		}
	}
}

func TestReset_ClearsPreviousEpisode(t *testing.T) {
	b := newTestBoard(t, 10, 10, 3)
	setup(t, b, []Point{{X: 5, Y: 5}, {X: 4, Y: 5}, {X: 3, Y: 5}, {X: 2, Y: 5}}, Right, Point{X: 0, Y: 0})

	if err := b.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if b.Len() != 2 {
		t.Fatalf("len=%d want=2", b.Len())
	}
	occupied := 0
	for _, row := range b.Grid() {
		for _, c := range row {
			if c != CellEmpty {
				occupied++
			}
		}
	}
	if occupied != 2 {
		t.Fatalf("occupied cells=%d want=2\n%s", occupied, dumpState(b))
	}
}

func TestMove_Straight_NoFood(t *testing.T) {
	b := newTestBoard(t, 10, 10, 1)
	setup(t, b, []Point{{X: 5, Y: 5}, {X: 4, Y: 5}}, Right, Point{X: 0, Y: 0})

	ate := b.Move(OneHot(2))
	if ate {
		t.Fatalf("ate=true want=false")
	}
	assertBody(t, b, []Point{{X: 6, Y: 5}, {X: 5, Y: 5}})
	if b.Direction() != Right {
		t.Fatalf("direction=%v want=Right", b.Direction())
	}
	if b.IsCollision(b.Head()) {
		t.Fatalf("head collides after plain move\n%s", dumpState(b))
	}
	if b.Cell(Point{X: 4, Y: 5}) != CellEmpty {
		t.Fatalf("old tail cell still occupied\n%s", dumpState(b))
	}
}

func TestMove_EatFood_Grows(t *testing.T) {
	b := newTestBoard(t, 10, 10, 1)
	setup(t, b, []Point{{X: 5, Y: 5}, {X: 4, Y: 5}}, Right, Point{X: 6, Y: 5})

	if ate := b.Move(OneHot(2)); !ate {
		t.Fatalf("ate=false want=true")
	}
	assertBody(t, b, []Point{{X: 6, Y: 5}, {X: 5, Y: 5}, {X: 4, Y: 5}})
	if b.Cell(Point{X: 6, Y: 5}) != CellHead {
		t.Fatalf("head cell=%v want=CellHead", b.Cell(Point{X: 6, Y: 5}))
	}
}

func TestMove_LengthStableWithoutFood(t *testing.T) {
	b := newTestBoard(t, 10, 10, 7)
	setup(t, b, []Point{{X: 2, Y: 2}, {X: 1, Y: 2}}, Right, Point{X: 9, Y: 9})

	for _, d := range []Direction{Right, Right, Down, Down, Left, Down, Right} {
		b.Move(ActionFor(d))
		if b.Len() != 2 {
			t.Fatalf("len=%d want=2 after %s\n%s", b.Len(), DirectionName(d), dumpState(b))
		}
	}
}

func TestMove_UpdatesDirection(t *testing.T) {
	for i, d := range Directions {
		b := newTestBoard(t, 10, 10, int64(i))
		setup(t, b, []Point{{X: 5, Y: 5}, {X: 5, Y: 6}}, Up, Point{X: 0, Y: 0})

		b.Move(OneHot(i))
		if b.Direction() != d {
			t.Fatalf("action %d: direction=%v want=%v", i, b.Direction(), d)
		}
		if got, want := b.Head(), (Point{X: 5, Y: 5}).Add(d); got != want {
			t.Fatalf("action %d: head=%v want=%v", i, got, want)
		}
	}
}

func TestMove_EmptyOrAmbiguousKeepsHeading(t *testing.T) {
	for _, action := range []Action{{}, {1, 1, 0, 0}, {0, 2, 0, 0}} {
		b := newTestBoard(t, 10, 10, 1)
		setup(t, b, []Point{{X: 5, Y: 5}, {X: 4, Y: 5}}, Right, Point{X: 0, Y: 0})

		b.Move(action)
		if b.Direction() != Right {
			t.Fatalf("action %v: direction=%v want=Right", action, b.Direction())
		}
		if b.Head() != (Point{X: 6, Y: 5}) {
			t.Fatalf("action %v: head=%v want=(6,5)", action, b.Head())
		}
	}
}

func TestIsOutOfBoard(t *testing.T) {
	b := newTestBoard(t, 4, 5, 1)
	cases := []struct {
		p    Point
		want bool
	}{
		{Point{X: 0, Y: 0}, false},
		{Point{X: 4, Y: 3}, false},
		{Point{X: 5, Y: 0}, true},
		{Point{X: 0, Y: 4}, true},
		{Point{X: -1, Y: 2}, true},
		{Point{X: 2, Y: -1}, true},
	}
	for _, c := range cases {
		if got := b.IsOutOfBoard(c.p); got != c.want {
			t.Fatalf("IsOutOfBoard(%v)=%v want=%v", c.p, got, c.want)
		}
	}
}

func TestIsHit_HeadNeverHits(t *testing.T) {
	b := newTestBoard(t, 10, 10, 1)
	setup(t, b, []Point{{X: 5, Y: 5}, {X: 4, Y: 5}, {X: 4, Y: 6}}, Right, Point{X: 0, Y: 0})

	if b.IsHit(b.Head()) || b.IsHitList(b.Head()) {
		t.Fatalf("head reported as hit")
	}
	for _, p := range []Point{{X: 4, Y: 5}, {X: 4, Y: 6}} {
		if !b.IsHit(p) || !b.IsHitList(p) || !b.IsCollision(p) {
			t.Fatalf("body cell %v not reported as hit", p)
		}
	}
	if b.IsHit(Point{X: -1, Y: 0}) {
		t.Fatalf("out of board cell reported as hit")
	}
	if !b.IsCollision(Point{X: -1, Y: 0}) {
		t.Fatalf("out of board cell not a collision")
	}
}

func TestIsHit_AgreesWithList_RandomWalk(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	b := newTestBoard(t, 7, 8, 42)

	for step := 0; step < 2000; step++ {
		i := rng.Intn(NumActions)
		next := b.Head().Add(Directions[i])
		if b.IsCollision(next) {
			if err := b.Reset(); err != nil {
				t.Fatalf("Reset: %v", err)
			}
			continue
		}
		if b.Move(OneHot(i)) {
			if err := b.PlaceFood(); errors.Is(err, ErrBoardFull) {
				if err := b.Reset(); err != nil {
					t.Fatalf("Reset: %v", err)
				}
			}
		}
		if b.IsCollision(b.Head()) {
			t.Fatalf("step %d: head collides after safe move\n%s", step, dumpState(b))
		}
		for y := 0; y < b.Rows(); y++ {
			for x := 0; x < b.Columns(); x++ {
				p := Point{X: x, Y: y}
				if b.IsHit(p) != b.IsHitList(p) {
					t.Fatalf("step %d: IsHit(%v)=%v IsHitList=%v\n%s", step, p, b.IsHit(p), b.IsHitList(p), dumpState(b))
				}
			}
		}
	}
}

func TestPlaceFood_NeverOnSnake(t *testing.T) {
	b := newTestBoard(t, 5, 5, 9)
	body := []Point{
		{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}, {X: 3, Y: 0}, {X: 4, Y: 0},
		{X: 4, Y: 1}, {X: 3, Y: 1}, {X: 2, Y: 1}, {X: 1, Y: 1}, {X: 0, Y: 1},
	}
	if err := b.SetBody(body, Left); err != nil {
		t.Fatalf("SetBody: %v", err)
	}
	for i := 0; i < 500; i++ {
		if err := b.PlaceFood(); err != nil {
			t.Fatalf("PlaceFood: %v", err)
		}
		f := b.Food()
		if f == b.Head() || b.IsHitList(f) || b.IsOutOfBoard(f) {
			t.Fatalf("food=%v on snake\n%s", f, dumpState(b))
		}
	}
}

func TestPlaceFood_LastFreeCell(t *testing.T) {
	b := newTestBoard(t, 3, 3, 5)
	body := []Point{
		{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0},
		{X: 2, Y: 1}, {X: 1, Y: 1}, {X: 0, Y: 1},
		{X: 0, Y: 2}, {X: 1, Y: 2},
	}
	if err := b.SetBody(body, Right); err != nil {
		t.Fatalf("SetBody: %v", err)
	}
	if got := b.FreeCells(); got != 1 {
		t.Fatalf("free=%d want=1", got)
	}
	if err := b.PlaceFood(); err != nil {
		t.Fatalf("PlaceFood: %v", err)
	}
	if got, want := b.Food(), (Point{X: 2, Y: 2}); got != want {
		t.Fatalf("food=%v want=%v", got, want)
	}
}

func TestPlaceFood_BoardFull(t *testing.T) {
	b := newTestBoard(t, 3, 3, 5)
	body := []Point{
		{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0},
		{X: 2, Y: 1}, {X: 1, Y: 1}, {X: 0, Y: 1},
		{X: 0, Y: 2}, {X: 1, Y: 2}, {X: 2, Y: 2},
	}
	err := b.SetBody(body, Right)
	if !errors.Is(err, ErrBoardFull) {
		t.Fatalf("err=%v want=%v", err, ErrBoardFull)
	}
	if got := b.FreeCells(); got != 0 {
		t.Fatalf("free=%d want=0", got)
	}
	if err := b.PlaceFood(); !errors.Is(err, ErrBoardFull) {
		t.Fatalf("PlaceFood err=%v want=%v", err, ErrBoardFull)
	}
}

func TestSnakeIndex(t *testing.T) {
	b := newTestBoard(t, 10, 10, 1)
	setup(t, b, []Point{{X: 5, Y: 5}, {X: 4, Y: 5}, {X: 4, Y: 6}}, Right, Point{X: 0, Y: 0})

	for want, p := range []Point{{X: 5, Y: 5}, {X: 4, Y: 5}, {X: 4, Y: 6}} {
		got, err := b.SnakeIndex(p)
		if err != nil {
			t.Fatalf("SnakeIndex(%v): %v", p, err)
		}
		if got != want {
			t.Fatalf("SnakeIndex(%v)=%d want=%d", p, got, want)
		}
	}
	if _, err := b.SnakeIndex(Point{X: 9, Y: 9}); !errors.Is(err, ErrNotInSnake) {
		t.Fatalf("err=%v want=%v", err, ErrNotInSnake)
	}
}

func TestRemoveTail(t *testing.T) {
	b := newTestBoard(t, 10, 10, 1)
	setup(t, b, []Point{{X: 5, Y: 5}, {X: 4, Y: 5}, {X: 4, Y: 6}}, Right, Point{X: 0, Y: 0})

	tail, err := b.RemoveTail()
	if err != nil {
		t.Fatalf("RemoveTail: %v", err)
	}
	if tail != (Point{X: 4, Y: 6}) {
		t.Fatalf("removed=%v want=(4,6)", tail)
	}
	if b.Len() != 2 || b.Cell(tail) != CellEmpty {
		t.Fatalf("len=%d cell=%v after RemoveTail", b.Len(), b.Cell(tail))
	}
	if _, err := b.RemoveTail(); err != nil {
		t.Fatalf("RemoveTail to 1: %v", err)
	}
	if _, err := b.RemoveTail(); !errors.Is(err, ErrBodyTooShort) {
		t.Fatalf("err=%v want=%v", err, ErrBodyTooShort)
	}
}

func TestClone_IsIndependent(t *testing.T) {
	b := newTestBoard(t, 10, 10, 1)
	setup(t, b, []Point{{X: 5, Y: 5}, {X: 4, Y: 5}}, Right, Point{X: 0, Y: 0})

	snap := b.Clone()
	b.Move(OneHot(2))

	if snap.Head() != (Point{X: 5, Y: 5}) {
		t.Fatalf("clone head=%v moved with original", snap.Head())
	}
	if snap.Cell(Point{X: 6, Y: 5}) != CellEmpty {
		t.Fatalf("clone grid shares storage with original")
	}
}

func TestHeadCollides_AfterMove(t *testing.T) {
	b := newTestBoard(t, 10, 10, 1)
	if err := b.SetFood(Point{X: 0, Y: 0}); err != nil {
		t.Fatalf("SetFood: %v", err)
	}

	// Turning into the cell the tail leaves on the same move.
	if err := b.SetBody([]Point{{X: 5, Y: 5}, {X: 5, Y: 6}, {X: 4, Y: 6}, {X: 4, Y: 5}}, Up); err != nil {
		t.Fatalf("SetBody: %v", err)
	}
	b.Move(ActionFor(Left))
	if b.HeadCollides() {
		t.Fatalf("following the tail collided\n%s", dumpState(b))
	}
	want := []Point{{X: 4, Y: 5}, {X: 5, Y: 5}, {X: 5, Y: 6}, {X: 4, Y: 6}}
	for i, p := range b.BodyPoints() {
		if p != want[i] {
			t.Fatalf("body=%v want=%v", b.BodyPoints(), want)
		}
	}

	// Same turn with a longer tail still occupying (4,5).
	if err := b.SetBody([]Point{{X: 5, Y: 5}, {X: 5, Y: 6}, {X: 4, Y: 6}, {X: 4, Y: 5}, {X: 4, Y: 4}}, Up); err != nil {
		t.Fatalf("SetBody: %v", err)
	}
	b.Move(ActionFor(Left))
	if !b.HeadCollides() {
		t.Fatalf("head on body not reported\n%s", dumpState(b))
	}
	if b.IsHit(b.Head()) != b.IsHitList(b.Head()) {
		t.Fatalf("IsHit and IsHitList disagree on the head")
	}

	// Off the board.
	if err := b.SetBody([]Point{{X: 9, Y: 5}, {X: 8, Y: 5}}, Right); err != nil {
		t.Fatalf("SetBody: %v", err)
	}
	b.Move(ActionFor(Right))
	if !b.HeadCollides() {
		t.Fatalf("head at %v not reported", b.Head())
	}
	if c := b.Clone(); !c.HeadCollides() {
		t.Fatalf("clone lost the collision")
	}
}
