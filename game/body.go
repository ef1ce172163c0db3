package game

import "iter"

// Body is the ordered list of cells a snake occupies, head first.
//
// It is a fixed-capacity ring buffer: head pushes and tail pops are O(1) and
// no per-segment allocation happens after construction.
type Body struct {
	cells []Point
	head  int // index of the head in cells
	n     int
}

// NewBody returns an empty body able to hold capacity segments.
func NewBody(capacity int) *Body {
	if capacity < 1 {
		capacity = 1
	}
	return &Body{cells: make([]Point, capacity)}
}

func (b *Body) Len() int { return b.n }
func (b *Body) Cap() int { return len(b.cells) }

// Clear drops every segment.
func (b *Body) Clear() {
	b.head = 0
	b.n = 0
}

// PushFront adds a new head. It reports false when the body is full.
func (b *Body) PushFront(p Point) bool {
	if b.n == len(b.cells) {
		return false
	}
	b.head = (b.head - 1 + len(b.cells)) % len(b.cells)
	b.cells[b.head] = p
	b.n++
	return true
}

// PushBack appends a segment behind the tail. Used when laying out a body.
func (b *Body) PushBack(p Point) bool {
	if b.n == len(b.cells) {
		return false
	}
	b.cells[(b.head+b.n)%len(b.cells)] = p
	b.n++
	return true
}

// PopBack removes and returns the tail.
func (b *Body) PopBack() (Point, bool) {
	if b.n == 0 {
		return Point{}, false
	}
	tail := b.At(b.n - 1)
	b.n--
	return tail, true
}

// At returns the i-th segment counting from the head. It panics when i is
// out of range, like a slice index.
func (b *Body) At(i int) Point {
	if i < 0 || i >= b.n {
		panic("game: body index out of range")
	}
	return b.cells[(b.head+i)%len(b.cells)]
}

func (b *Body) Front() Point { return b.At(0) }
func (b *Body) Back() Point  { return b.At(b.n - 1) }

// All yields segments from head to tail.
func (b *Body) All() iter.Seq[Point] {
	return func(yield func(Point) bool) {
		for i := 0; i < b.n; i++ {
			if !yield(b.cells[(b.head+i)%len(b.cells)]) {
				return
			}
		}
	}
}

// Points copies the segments into a new slice, head first.
func (b *Body) Points() []Point {
	out := make([]Point, 0, b.n)
	for p := range b.All() {
		out = append(out, p)
	}
	return out
}

// Clone performs a deep copy of the body.
func (b *Body) Clone() *Body {
	out := &Body{cells: make([]Point, len(b.cells)), head: b.head, n: b.n}
	copy(out.cells, b.cells)
	return out
}
