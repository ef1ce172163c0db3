package game

// Direction is a unit step on the board.
type Direction = Point

var (
	Down  = Direction{X: 0, Y: 1}
	Left  = Direction{X: -1, Y: 0}
	Right = Direction{X: 1, Y: 0}
	Up    = Direction{X: 0, Y: -1}
)

// NumActions is the width of an Action vector.
const NumActions = 4

// Directions is the fixed action index order shared by actions, features and
// network outputs: 0=Down, 1=Left, 2=Right, 3=Up.
var Directions = [NumActions]Direction{Down, Left, Right, Up}

var directionNames = [NumActions]string{"Down", "Left", "Right", "Up"}

// DirectionIndex returns the action index of d, or -1 if d is not one of the
// four unit directions.
func DirectionIndex(d Direction) int {
	for i, candidate := range Directions {
		if candidate == d {
			return i
		}
	}
	return -1
}

// DirectionName returns a readable name for d.
func DirectionName(d Direction) string {
	if i := DirectionIndex(d); i >= 0 {
		return directionNames[i]
	}
	return d.String()
}

// Action is a 4-wide move vector in Directions order. A well formed action
// is one-hot.
type Action [NumActions]int

// OneHot returns the action selecting Directions[i].
func OneHot(i int) Action {
	var a Action
	if i >= 0 && i < NumActions {
		a[i] = 1
	}
	return a
}

// ActionFor returns the one-hot action for direction d.
func ActionFor(d Direction) Action {
	return OneHot(DirectionIndex(d))
}

// Index returns the position of the single set entry, or -1 when the action
// is empty or sets more than one entry.
func (a Action) Index() int {
	idx := -1
	for i, v := range a {
		if v != 1 {
			continue
		}
		if idx >= 0 {
			return -1
		}
		idx = i
	}
	return idx
}

// Argmax returns the index of the largest entry, first occurrence on ties.
func (a Action) Argmax() int {
	best := 0
	for i := 1; i < NumActions; i++ {
		if a[i] > a[best] {
			best = i
		}
	}
	return best
}

// Count returns the number of non-zero entries.
func (a Action) Count() int {
	n := 0
	for _, v := range a {
		if v != 0 {
			n++
		}
	}
	return n
}

// Decode maps an action to a direction. Empty or ambiguous actions keep the
// current heading.
func Decode(current Direction, a Action) Direction {
	if i := a.Index(); i >= 0 {
		return Directions[i]
	}
	return current
}
