package agent

import (
	"errors"
	"math/rand"

	"github.com/brensch/snekql/executor/convert"
	"github.com/brensch/snekql/executor/model"
	"github.com/brensch/snekql/game"
)

// ErrNoSafeMove is returned by the heuristic when every direction collides.
var ErrNoSafeMove = errors.New("no safe move")

// Policy picks a one-hot action from a feature vector.
type Policy interface {
	Act(state convert.Features) (game.Action, error)
}

// Heuristic follows the hand-written rule chain over the feature groups.
type Heuristic struct{}

// Mask returns every direction the rules allow, possibly more than one:
// first directions that are cheap, safe, on the parity path and towards the
// food; else safe directions towards the food; else any safe direction with
// a positive cost.
func (Heuristic) Mask(state convert.Features) (game.Action, error) {
	costs, collisions := state.Costs(), state.Collisions()
	moves, food := state.Moves(), state.FoodDirections()

	stages := []func(i int) float64{
		func(i int) float64 { return costs[i] * collisions[i] * moves[i] * food[i] },
		func(i int) float64 { return collisions[i] * food[i] },
		func(i int) float64 { return collisions[i] * costs[i] },
	}
	for _, score := range stages {
		var mask game.Action
		for i := range mask {
			if score(i) > 0 {
				mask[i] = 1
			}
		}
		if mask.Count() > 0 {
			return mask, nil
		}
	}
	return game.Action{}, ErrNoSafeMove
}

// Act returns the first direction of Mask.
func (h Heuristic) Act(state convert.Features) (game.Action, error) {
	mask, err := h.Mask(state)
	if err != nil {
		return mask, err
	}
	for i, v := range mask {
		if v == 1 {
			return game.OneHot(i), nil
		}
	}
	return game.Action{}, ErrNoSafeMove
}

// Greedy always takes the predictor's best action.
type Greedy struct {
	Predictor model.Predictor
}

func (g Greedy) Act(state convert.Features) (game.Action, error) {
	q, err := g.Predictor.Predict(state)
	if err != nil {
		return game.Action{}, err
	}
	return game.OneHot(model.Argmax(q)), nil
}

// EpsilonGreedy explores with a uniformly random direction while the agent
// is young and otherwise acts greedily.
//
// The exploration probability is (ExploreGames - Games()) / ExploreRange,
// clamped to [0, 1].
type EpsilonGreedy struct {
	Predictor    model.Predictor
	ExploreGames int
	ExploreRange int
	Games        func() int
	Rng          *rand.Rand
}

// Epsilon is the current exploration budget, floored at 0.
func (p EpsilonGreedy) Epsilon() int {
	games := 0
	if p.Games != nil {
		games = p.Games()
	}
	return max(p.ExploreGames-games, 0)
}

func (p EpsilonGreedy) Act(state convert.Features) (game.Action, error) {
	if eps := p.Epsilon(); eps > 0 && p.ExploreRange > 0 && p.Rng.Intn(p.ExploreRange) < eps {
		return game.OneHot(p.Rng.Intn(game.NumActions)), nil
	}
	return Greedy{Predictor: p.Predictor}.Act(state)
}
