// Package rules runs the snake game one discrete step at a time: it applies a
// move to the board, scores it, and decides when an episode is over.
package rules

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/brensch/snekql/game"
)

// Settings holds the reward and termination knobs.
type Settings struct {
	// StepLimitFactor ends an episode once the steps since reset exceed this
	// multiple of the snake length. It stops idle loops that never eat.
	StepLimitFactor int
	FoodReward      float64
	DeathReward     float64
}

// DefaultSettings matches the classic setup: +10 for food, -10 for dying,
// 100 steps per body segment.
var DefaultSettings = Settings{StepLimitFactor: 100, FoodReward: 10, DeathReward: -10}

// Status is the state of the episode state machine.
type Status int

const (
	Running Status = iota
	Terminal
)

func (s Status) String() string {
	if s == Terminal {
		return "terminal"
	}
	return "running"
}

// Ending records why an episode finished.
type Ending int

const (
	EndNone Ending = iota
	EndCollision
	EndStepLimit
	EndBoardFull
)

func (e Ending) String() string {
	switch e {
	case EndCollision:
		return "collision"
	case EndStepLimit:
		return "step_limit"
	case EndBoardFull:
		return "board_full"
	default:
		return "none"
	}
}

var ErrEpisodeOver = errors.New("episode over: reset required")

// Env is the game loop controller around a board.
type Env struct {
	board    *game.Board
	settings Settings

	status Status
	ending Ending
	score  int
	steps  int
}

// NewEnv builds a board of the given size and resets it.
func NewEnv(rows, columns int, settings Settings, rng *rand.Rand) (*Env, error) {
	board, err := game.NewBoard(rows, columns, rng)
	if err != nil {
		return nil, err
	}
	if settings.StepLimitFactor <= 0 {
		settings.StepLimitFactor = DefaultSettings.StepLimitFactor
	}
	e := &Env{board: board, settings: settings}
	if err := e.Reset(); err != nil {
		return nil, err
	}
	return e, nil
}

// Reset starts a new episode.
func (e *Env) Reset() error {
	if err := e.board.Reset(); err != nil {
		return fmt.Errorf("reset board: %w", err)
	}
	e.status = Running
	e.ending = EndNone
	e.score = 0
	e.steps = 0
	return nil
}

// PlayStep advances the game by one move and returns the reward, whether
// the episode ended, and the score so far.
//
// The move is applied first, then a head outside the board or on the body
// ends the episode. The tail leaves its cell before the check, so following
// it (or reversing a two cell snake) is legal. Eating grows the snake and
// places new food; if no free cell is left the episode ends with the food
// reward.
func (e *Env) PlayStep(action game.Action) (reward float64, done bool, score int, err error) {
	if e.status == Terminal {
		return 0, true, e.score, ErrEpisodeOver
	}
	e.steps++

	ate := e.board.Move(action)
	if e.board.HeadCollides() {
		return e.finish(EndCollision, e.settings.DeathReward)
	}

	if ate {
		e.score++
		reward = e.settings.FoodReward
		if err := e.board.PlaceFood(); err != nil {
			if errors.Is(err, game.ErrBoardFull) {
				return e.finish(EndBoardFull, reward)
			}
			return 0, false, e.score, err
		}
	}

	if e.steps > e.settings.StepLimitFactor*e.board.Len() {
		return e.finish(EndStepLimit, e.settings.DeathReward)
	}
	return reward, false, e.score, nil
}

func (e *Env) finish(ending Ending, reward float64) (float64, bool, int, error) {
	e.status = Terminal
	e.ending = ending
	return reward, true, e.score, nil
}

func (e *Env) Board() *game.Board { return e.board }
func (e *Env) Settings() Settings { return e.settings }
func (e *Env) Status() Status     { return e.status }
func (e *Env) Ending() Ending     { return e.ending }
func (e *Env) Done() bool         { return e.status == Terminal }
func (e *Env) Score() int         { return e.score }
func (e *Env) Steps() int         { return e.steps }
func (e *Env) Won() bool          { return e.ending == EndBoardFull }
