// Package agent is the Q-learning agent: replay memory, action selection
// and the training schedule around a model.QFunction.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/brensch/snekql/executor/convert"
	"github.com/brensch/snekql/executor/model"
	"github.com/brensch/snekql/game"
	"github.com/brensch/snekql/store"
)

const (
	PolicyLearned   = "learned"
	PolicyHeuristic = "heuristic"
	PolicyGreedy    = "greedy"
)

type Config struct {
	MemorySize   int
	BatchSize    int
	ExploreGames int
	ExploreRange int
	Policy       string
	// ModelName is the key new records are saved under.
	ModelName string
}

var DefaultConfig = Config{
	MemorySize:   100_000,
	BatchSize:    1000,
	ExploreGames: 80,
	ExploreRange: 200,
	Policy:       PolicyLearned,
	ModelName:    "model",
}

type Agent struct {
	cfg    Config
	q      model.QFunction
	policy Policy
	memory *Memory
	rng    *rand.Rand
	store  store.ModelStore
	logger *slog.Logger

	games    int
	record   int
	lastLoss float64
}

// New builds an agent. models may be nil, in which case records are not
// persisted.
func New(cfg Config, q model.QFunction, models store.ModelStore, rng *rand.Rand, logger *slog.Logger) (*Agent, error) {
	if q == nil {
		return nil, errors.New("q function is required")
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ModelName == "" {
		cfg.ModelName = DefaultConfig.ModelName
	}
	a := &Agent{
		cfg:    cfg,
		q:      q,
		memory: NewMemory(cfg.MemorySize),
		rng:    rng,
		store:  models,
		logger: logger,
	}
	p, err := a.policyByName(cfg.Policy)
	if err != nil {
		return nil, err
	}
	a.policy = p
	return a, nil
}

func (a *Agent) policyByName(name string) (Policy, error) {
	switch name {
	case "", PolicyLearned:
		return a.learned(), nil
	case PolicyHeuristic:
		return Heuristic{}, nil
	case PolicyGreedy:
		return Greedy{Predictor: a.q}, nil
	default:
		return nil, fmt.Errorf("unknown policy %q", name)
	}
}

func (a *Agent) learned() EpsilonGreedy {
	return EpsilonGreedy{
		Predictor:    a.q,
		ExploreGames: a.cfg.ExploreGames,
		ExploreRange: a.cfg.ExploreRange,
		Games:        a.Games,
		Rng:          a.rng,
	}
}

// Act asks the configured policy for an action.
func (a *Agent) Act(state convert.Features) (game.Action, error) {
	return a.policy.Act(state)
}

func (a *Agent) Remember(t model.Transition) {
	a.memory.Append(t)
}

// TrainShortMemory fits the single transition that was just observed.
func (a *Agent) TrainShortMemory(t model.Transition) float64 {
	return a.q.TrainStep([]model.Transition{t})
}

// TrainLongMemory replays a batch from memory: a uniform sample without
// replacement once memory outgrows the batch size, otherwise everything in
// insertion order.
func (a *Agent) TrainLongMemory() float64 {
	if a.memory.Len() == 0 {
		return 0
	}
	return a.q.TrainStep(a.memory.Sample(a.rng, a.cfg.BatchSize))
}

// EndEpisode books a finished game. A new record is persisted before the
// long-memory replay runs.
func (a *Agent) EndEpisode(ctx context.Context, score int) (newRecord bool, err error) {
	a.games++
	if score > a.record {
		a.record = score
		newRecord = true
		if err := a.saveModel(ctx); err != nil {
			return true, err
		}
	}
	a.lastLoss = a.TrainLongMemory()
	return newRecord, nil
}

// checkpoint is the training progress saved next to the parameters so a
// resumed run keeps its record and exploration schedule.
type checkpoint struct {
	Games  int `json:"games"`
	Record int `json:"record"`
}

func checkpointName(modelName string) string {
	return modelName + ".meta"
}

func (a *Agent) saveModel(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	blob, err := a.q.Save()
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	if err := a.store.Save(ctx, a.cfg.ModelName, blob); err != nil {
		return fmt.Errorf("save model %s: %w", a.cfg.ModelName, err)
	}
	meta, err := json.Marshal(checkpoint{Games: a.games, Record: a.record})
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := a.store.Save(ctx, checkpointName(a.cfg.ModelName), meta); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", a.cfg.ModelName, err)
	}
	a.logger.Info("saved model", "name", a.cfg.ModelName, "record", a.record, "games", a.games, "bytes", len(blob))
	return nil
}

// Restore loads the saved parameters, reporting whether any were found. The
// record and games counter come back with them when a checkpoint exists.
func (a *Agent) Restore(ctx context.Context) (bool, error) {
	if a.store == nil {
		return false, nil
	}
	blob, ok, err := a.store.Load(ctx, a.cfg.ModelName)
	if err != nil || !ok {
		return false, err
	}
	if err := a.q.Load(blob); err != nil {
		return false, fmt.Errorf("load model %s: %w", a.cfg.ModelName, err)
	}
	meta, ok, err := a.store.Load(ctx, checkpointName(a.cfg.ModelName))
	if err != nil {
		return true, fmt.Errorf("load checkpoint %s: %w", a.cfg.ModelName, err)
	}
	if !ok {
		a.logger.Warn("model has no checkpoint, record starts at zero", "name", a.cfg.ModelName)
		return true, nil
	}
	var cp checkpoint
	if err := json.Unmarshal(meta, &cp); err != nil {
		return true, fmt.Errorf("decode checkpoint %s: %w", a.cfg.ModelName, err)
	}
	a.games = cp.Games
	a.record = cp.Record
	return true, nil
}

// Clone returns an independent agent sharing only the rng, logger and model
// store.
func (a *Agent) Clone() (*Agent, error) {
	mlp, ok := a.q.(*model.MLP)
	if !ok {
		return nil, fmt.Errorf("cannot clone q function of type %T", a.q)
	}
	c := &Agent{
		cfg:      a.cfg,
		q:        mlp.Clone(),
		memory:   a.memory.Clone(),
		rng:      a.rng,
		store:    a.store,
		logger:   a.logger,
		games:    a.games,
		record:   a.record,
		lastLoss: a.lastLoss,
	}
	p, err := c.policyByName(c.cfg.Policy)
	if err != nil {
		return nil, err
	}
	c.policy = p
	return c, nil
}

// Epsilon is the remaining exploration budget of the learned policy.
func (a *Agent) Epsilon() int {
	return a.learned().Epsilon()
}

func (a *Agent) Config() Config     { return a.cfg }
func (a *Agent) Q() model.QFunction { return a.q }
func (a *Agent) Policy() Policy     { return a.policy }
func (a *Agent) Memory() *Memory    { return a.memory }
func (a *Agent) Games() int         { return a.games }
func (a *Agent) Record() int        { return a.record }
func (a *Agent) LastLoss() float64  { return a.lastLoss }
func (a *Agent) SetGames(games int) { a.games = games }

func (a *Agent) String() string {
	return fmt.Sprintf("Agent(games:%d, epsilon:%d, record:%d, memory:%d/%d, policy:%s)",
		a.games, a.Epsilon(), a.record, a.memory.Len(), a.memory.Cap(), a.cfg.Policy)
}
