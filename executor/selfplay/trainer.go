// Package selfplay drives the agent through games: the training loop that
// learns online from every step, and greedy evaluation play.
package selfplay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/brensch/snekql/executor/agent"
	"github.com/brensch/snekql/executor/convert"
	"github.com/brensch/snekql/executor/model"
	"github.com/brensch/snekql/game"
	"github.com/brensch/snekql/rules"
)

type GameResult struct {
	Game      int
	Score     int
	Record    int
	Steps     int
	Length    int
	Ending    string
	Won       bool
	NewRecord bool
	Epsilon   int
	Loss      float64
	MeanScore float64
}

type Trainer struct {
	Env      *rules.Env
	Agent    *agent.Agent
	Cost     convert.CostFunc
	Recorder *Recorder
	// MaxGames stops the run after that many finished games; 0 runs until
	// the context is cancelled.
	MaxGames int
	// Trace, when set, receives an ASCII board and feature dump per step.
	Trace  io.Writer
	Logger *slog.Logger

	OnStep func(env *rules.Env, gameNo int)
	OnGame func(GameResult)
}

// Run plays and learns until ctx is done or MaxGames games finished. It
// returns ctx.Err() only when stopped by the context.
func (t *Trainer) Run(ctx context.Context) (err error) {
	if t.Env == nil || t.Agent == nil {
		return errors.New("trainer needs an env and an agent")
	}
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if t.Recorder != nil {
		defer func() {
			if cerr := t.Recorder.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
	}

	played := 0
	totalScore := 0
	state := convert.Extract(t.Env.Board(), t.Cost)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if t.Trace != nil {
			PrintBoard(t.Trace, t.Env.Board(), state)
		}

		action, err := act(t.Agent, t.Env.Board(), state)
		if err != nil {
			return err
		}
		reward, done, score, err := t.Env.PlayStep(action)
		if err != nil {
			return fmt.Errorf("play step: %w", err)
		}
		next := convert.Extract(t.Env.Board(), t.Cost)

		tr := model.Transition{State: state, Action: action, Reward: reward, NextState: next, Done: done}
		t.Agent.TrainShortMemory(tr)
		t.Agent.Remember(tr)

		gameNo := t.Agent.Games() + 1
		if t.Recorder != nil {
			t.Recorder.AddStep(gameNo, t.Env.Steps(), tr, score)
		}
		if t.OnStep != nil {
			t.OnStep(t.Env, gameNo)
		}

		if !done {
			state = next
			continue
		}

		newRecord, err := t.Agent.EndEpisode(ctx, score)
		if err != nil {
			return err
		}
		played++
		totalScore += score
		res := GameResult{
			Game:      t.Agent.Games(),
			Score:     score,
			Record:    t.Agent.Record(),
			Steps:     t.Env.Steps(),
			Length:    t.Env.Board().Len(),
			Ending:    t.Env.Ending().String(),
			Won:       t.Env.Won(),
			NewRecord: newRecord,
			Epsilon:   t.Agent.Epsilon(),
			Loss:      t.Agent.LastLoss(),
			MeanScore: float64(totalScore) / float64(played),
		}
		logger.Info("game finished",
			"game", res.Game,
			"score", res.Score,
			"record", res.Record,
			"steps", res.Steps,
			"ending", res.Ending,
			"mean_score", res.MeanScore,
		)
		if t.Recorder != nil {
			if err := t.Recorder.EndGame(res); err != nil {
				return err
			}
		}
		if t.OnGame != nil {
			t.OnGame(res)
		}

		if t.MaxGames > 0 && played >= t.MaxGames {
			return nil
		}
		if err := t.Env.Reset(); err != nil {
			return err
		}
		state = convert.Extract(t.Env.Board(), t.Cost)
	}
}

// act asks the policy for a move. When the heuristic finds no safe move the
// snake keeps its heading and the env ends the game.
func act(p agent.Policy, b *game.Board, state convert.Features) (game.Action, error) {
	action, err := p.Act(state)
	if errors.Is(err, agent.ErrNoSafeMove) {
		return game.ActionFor(b.Direction()), nil
	}
	return action, err
}

// Evaluate plays games with a fixed policy and no learning.
func Evaluate(ctx context.Context, env *rules.Env, policy agent.Policy, cost convert.CostFunc, games int, onStep func(*rules.Env)) ([]GameResult, error) {
	results := make([]GameResult, 0, games)
	record, total := 0, 0
	for g := 1; g <= games; g++ {
		if err := env.Reset(); err != nil {
			return results, err
		}
		for !env.Done() {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			action, err := act(policy, env.Board(), convert.Extract(env.Board(), cost))
			if err != nil {
				return results, err
			}
			if _, _, _, err := env.PlayStep(action); err != nil {
				return results, err
			}
			if onStep != nil {
				onStep(env)
			}
		}
		total += env.Score()
		newRecord := env.Score() > record
		record = max(record, env.Score())
		results = append(results, GameResult{
			Game:      g,
			Score:     env.Score(),
			Record:    record,
			Steps:     env.Steps(),
			Length:    env.Board().Len(),
			Ending:    env.Ending().String(),
			Won:       env.Won(),
			NewRecord: newRecord,
			MeanScore: float64(total) / float64(g),
		})
	}
	return results, nil
}
