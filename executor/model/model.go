// Package model holds the action-value function the agent learns: the
// contracts the agent trains against, the bootstrapped target rule, a gonum
// MLP implementation and an ONNX-backed predictor for exported networks.
package model

import (
	"errors"

	"github.com/brensch/snekql/executor/convert"
	"github.com/brensch/snekql/game"
)

const (
	NumInputs  = convert.FeatureSize
	NumOutputs = game.NumActions
)

var (
	ErrVersionMismatch = errors.New("model blob version mismatch")
	ErrShapeMismatch   = errors.New("model blob shape mismatch")
)

// QValues is one action value per direction, in game.Directions order.
type QValues = [NumOutputs]float64

// Predictor maps a state to action values.
type Predictor interface {
	Predict(state convert.Features) (QValues, error)
}

// QFunction is a trainable predictor whose parameters can be persisted.
type QFunction interface {
	Predictor
	// TrainStep runs one optimizer step on the batch and returns the loss.
	TrainStep(batch []Transition) float64
	Save() ([]byte, error)
	Load(blob []byte) error
}

// Transition is a single (s, a, r, s', done) experience.
type Transition struct {
	State     convert.Features
	Action    game.Action
	Reward    float64
	NextState convert.Features
	Done      bool
}

// Targets builds regression targets for a batch. Each row starts as a copy
// of pred; the slot of the taken action is replaced by the reward for a
// terminal transition, or reward + gamma*nextMax[i] otherwise.
func Targets(pred []QValues, batch []Transition, gamma float64, nextMax []float64) []QValues {
	out := make([]QValues, len(pred))
	copy(out, pred)
	for i, t := range batch {
		target := t.Reward
		if !t.Done {
			target += gamma * nextMax[i]
		}
		out[i][t.Action.Argmax()] = target
	}
	return out
}

// Argmax returns the index of the largest value, first occurrence on ties.
func Argmax(q QValues) int {
	best := 0
	for i := 1; i < len(q); i++ {
		if q[i] > q[best] {
			best = i
		}
	}
	return best
}

// Max returns the largest value.
func Max(q QValues) float64 {
	return q[Argmax(q)]
}
