package selfplay

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brensch/snekql/executor/agent"
	"github.com/brensch/snekql/executor/convert"
	"github.com/brensch/snekql/executor/model"
	"github.com/brensch/snekql/game"
	"github.com/brensch/snekql/rules"
	"github.com/brensch/snekql/store"
)

func newTrainer(t *testing.T, policy string) *Trainer {
	t.Helper()
	env, err := rules.NewEnv(6, 6, rules.Settings{StepLimitFactor: 20, FoodReward: 10, DeathReward: -10}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("NewEnv: %v", err)
	}
	mlp, err := model.NewMLP(model.MLPConfig{Hidden: 8, LearningRate: 0.01, Gamma: 0.9}, rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatalf("NewMLP: %v", err)
	}
	cfg := agent.DefaultConfig
	cfg.BatchSize = 16
	cfg.MemorySize = 256
	cfg.Policy = policy
	a, err := agent.New(cfg, mlp, nil, rand.New(rand.NewSource(3)), nil)
	if err != nil {
		t.Fatalf("agent.New: %v", err)
	}
	return &Trainer{Env: env, Agent: a, Cost: convert.ManhattanCost}
}

func TestTrainer_MaxGamesAndRecording(t *testing.T) {
	dir := t.TempDir()
	tr := newTrainer(t, agent.PolicyHeuristic)
	rec, err := NewRecorder(dir, "run-1", 2, nil)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	tr.Recorder = rec
	tr.MaxGames = 3

	var results []GameResult
	steps := 0
	tr.OnGame = func(r GameResult) { results = append(results, r) }
	tr.OnStep = func(*rules.Env, int) { steps++ }

	if err := tr.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("games=%d want=3", len(results))
	}
	for i, r := range results {
		if r.Game != i+1 || r.Ending == "none" {
			t.Fatalf("result %d=%+v", i, r)
		}
	}
	if tr.Agent.Games() != 3 {
		t.Fatalf("agent games=%d want=3", tr.Agent.Games())
	}

	files, err := store.ListParquet(dir, "transitions")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("transition files=%d want=2", len(files))
	}
	rows := 0
	for _, f := range files {
		got, err := store.ReadTransitions(f)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		rows += len(got)
	}
	if rows != steps {
		t.Fatalf("recorded rows=%d want=%d steps", rows, steps)
	}

	episodes, err := store.ListParquet(filepath.Join(dir, "episodes"), "episodes")
	if err != nil {
		t.Fatalf("list episodes: %v", err)
	}
	total := 0
	for _, f := range episodes {
		got, err := store.ReadEpisodes(f)
		if err != nil {
			t.Fatalf("read episodes: %v", err)
		}
		total += len(got)
	}
	if total != 3 {
		t.Fatalf("episode rows=%d want=3", total)
	}

	loaded, err := LoadTransitions(dir)
	if err != nil {
		t.Fatalf("LoadTransitions: %v", err)
	}
	if len(loaded) != steps {
		t.Fatalf("loaded=%d want=%d", len(loaded), steps)
	}
	if last := loaded[len(loaded)-1]; !last.Done || last.Action.Count() != 1 {
		t.Fatalf("last loaded transition=%+v", last)
	}
}

func TestTrainer_StopsOnCancel(t *testing.T) {
	tr := newTrainer(t, agent.PolicyLearned)
	ctx, cancel := context.WithCancel(context.Background())
	tr.OnGame = func(GameResult) { cancel() }

	if err := tr.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want=%v", err, context.Canceled)
	}
	if tr.Agent.Games() != 1 {
		t.Fatalf("games=%d want=1", tr.Agent.Games())
	}
	if tr.Agent.Memory().Len() == 0 {
		t.Fatalf("nothing remembered")
	}
}

func TestEvaluate(t *testing.T) {
	env, err := rules.NewEnv(8, 8, rules.DefaultSettings, rand.New(rand.NewSource(4)))
	if err != nil {
		t.Fatalf("NewEnv: %v", err)
	}
	results, err := Evaluate(context.Background(), env, agent.Heuristic{}, convert.ManhattanCost, 3, nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results=%d want=3", len(results))
	}
	for _, r := range results {
		if r.Ending == "none" || r.Length < 2 || r.Length != r.Score+2 {
			t.Fatalf("bad result %+v", r)
		}
	}
}

func TestFormatBoard(t *testing.T) {
	b, err := game.NewBoard(5, 5, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("NewBoard: %v", err)
	}
	if err := b.SetBody([]game.Point{{X: 2, Y: 2}, {X: 1, Y: 2}}, game.Right); err != nil {
		t.Fatalf("SetBody: %v", err)
	}
	if err := b.SetFood(game.Point{X: 4, Y: 0}); err != nil {
		t.Fatalf("SetFood: %v", err)
	}
	out := FormatBoard(b, convert.Extract(b, nil))
	lines := strings.Split(out, "\n")
	if !strings.Contains(out, "collisions") || !strings.Contains(out, "dir=Right") {
		t.Fatalf("missing header or features:\n%s", out)
	}
	if lines[2] != ". . . . F " || lines[4] != ". o O . . " {
		t.Fatalf("unexpected board:\n%s", out)
	}
}
