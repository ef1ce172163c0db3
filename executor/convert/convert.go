// Package convert turns a board into the fixed-length feature vector the
// agent learns from.
package convert

import (
	"github.com/brensch/snekql/game"
)

const (
	GroupSize   = game.NumActions
	Groups      = 4
	FeatureSize = Groups * GroupSize
)

// Group offsets within Features.
const (
	CostsOffset          = 0
	CollisionsOffset     = GroupSize
	MovesOffset          = 2 * GroupSize
	FoodDirectionsOffset = 3 * GroupSize
)

// Features is the per-step state vector. Layout (each group in
// game.Directions order, Down/Left/Right/Up):
//
//	 0..3  traversal cost of stepping that way (larger is better)
//	 4..7  1 if the adjacent cell is safe, 0 if it collides
//	 8..11 parity move hint from the head position
//	12..15 1 if the food lies that way from the head
type Features [FeatureSize]float64

// Group is one length-4 slice of the feature vector.
type Group [GroupSize]float64

func (f Features) group(offset int) Group {
	var g Group
	copy(g[:], f[offset:offset+GroupSize])
	return g
}

func (f Features) Costs() Group          { return f.group(CostsOffset) }
func (f Features) Collisions() Group     { return f.group(CollisionsOffset) }
func (f Features) Moves() Group          { return f.group(MovesOffset) }
func (f Features) FoodDirections() Group { return f.group(FoodDirectionsOffset) }

// Float32 converts the vector for ONNX input and parquet rows.
func (f Features) Float32() []float32 {
	out := make([]float32, FeatureSize)
	for i, v := range f {
		out[i] = float32(v)
	}
	return out
}

// FromFloat32 is the inverse of Float32. Missing entries stay zero.
func FromFloat32(data []float32) Features {
	var f Features
	for i := 0; i < FeatureSize && i < len(data); i++ {
		f[i] = float64(data[i])
	}
	return f
}

// Extract computes the feature vector for the current board. cost may be nil,
// in which case ManhattanCost is used.
func Extract(b *game.Board, cost CostFunc) Features {
	if cost == nil {
		cost = ManhattanCost
	}
	var f Features
	head := b.Head()

	for i, d := range game.Directions {
		f[CostsOffset+i] = cost(b, d)
		if !b.IsCollision(head.Add(d)) {
			f[CollisionsOffset+i] = 1
		}
	}

	// Parity hint: odd rows prefer left, even rows right; odd columns prefer
	// up, even columns down.
	if head.Y%2 != 0 {
		f[MovesOffset+1] = 1
	} else {
		f[MovesOffset+2] = 1
	}
	if head.X%2 != 0 {
		f[MovesOffset+3] = 1
	} else {
		f[MovesOffset+0] = 1
	}

	toFood := b.Food().Sub(head)
	if toFood.Y > 0 {
		f[FoodDirectionsOffset+0] = 1
	}
	if toFood.X < 0 {
		f[FoodDirectionsOffset+1] = 1
	}
	if toFood.X > 0 {
		f[FoodDirectionsOffset+2] = 1
	}
	if toFood.Y < 0 {
		f[FoodDirectionsOffset+3] = 1
	}

	return f
}
