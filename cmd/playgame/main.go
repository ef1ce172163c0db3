// Command playgame plays games with a trained network (or the heuristic)
// without learning and prints a score summary.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brensch/snekql/config"
	"github.com/brensch/snekql/executor/agent"
	"github.com/brensch/snekql/executor/convert"
	"github.com/brensch/snekql/executor/model"
	"github.com/brensch/snekql/executor/selfplay"
	"github.com/brensch/snekql/logging"
	"github.com/brensch/snekql/rules"
	"github.com/brensch/snekql/store"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	games := flag.Int("games", 10, "Number of games to play")
	policyName := flag.String("policy", agent.PolicyGreedy, "greedy (trained network) or heuristic")
	onnxPath := flag.String("onnx", "", "Play with an exported ONNX network instead of the stored model (overrides model.onnx)")
	ortLib := flag.String("ort-lib", "", "Path to libonnxruntime")
	cuda := flag.Bool("cuda", false, "Enable CUDA for ONNX inference")
	show := flag.Bool("show", false, "Print every board")
	delay := flag.Duration("delay", 0, "Pause between printed boards")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if *onnxPath != "" {
		cfg.Model.Onnx = *onnxPath
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy, closeFn, err := buildPolicy(ctx, cfg, *policyName, model.OnnxOptions{LibraryPath: *ortLib, CUDA: *cuda, Logger: logger})
	if err != nil {
		logger.Error("failed to load policy", "error", err)
		os.Exit(1)
	}
	defer closeFn()

	seed := cfg.Train.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	env, err := rules.NewEnv(cfg.Board.Rows, cfg.Board.Columns, cfg.RulesSettings(), rand.New(rand.NewSource(seed)))
	if err != nil {
		logger.Error("failed to create env", "error", err)
		os.Exit(1)
	}
	cost, err := convert.CostByName(cfg.Agent.Cost)
	if err != nil {
		logger.Error("bad cost function", "error", err)
		os.Exit(2)
	}

	var onStep func(*rules.Env)
	if *show {
		onStep = func(env *rules.Env) {
			selfplay.PrintBoard(os.Stdout, env.Board(), convert.Extract(env.Board(), cost))
			if *delay > 0 {
				time.Sleep(*delay)
			}
		}
	}

	results, err := selfplay.Evaluate(ctx, env, policy, cost, *games, onStep)
	for _, r := range results {
		fmt.Printf("Game %3d | score %3d | steps %5d | %s\n", r.Game, r.Score, r.Steps, r.Ending)
	}
	if n := len(results); n > 0 {
		last := results[n-1]
		fmt.Printf("\n%d games, record %d, mean score %.2f\n", n, last.Record, last.MeanScore)
	}
	if err != nil && ctx.Err() == nil {
		logger.Error("evaluation failed", "error", err)
		os.Exit(1)
	}
}

func buildPolicy(ctx context.Context, cfg config.Config, name string, opts model.OnnxOptions) (agent.Policy, func(), error) {
	noop := func() {}
	switch name {
	case agent.PolicyHeuristic:
		return agent.Heuristic{}, noop, nil
	case agent.PolicyGreedy:
	default:
		return nil, noop, fmt.Errorf("unknown policy %q", name)
	}

	if cfg.Model.Onnx != "" {
		p, err := model.NewOnnxPredictor(cfg.Model.Onnx, opts)
		if err != nil {
			return nil, noop, err
		}
		opts.Logger.Info("playing with onnx network", "path", cfg.Model.Onnx)
		return agent.Greedy{Predictor: p}, func() { _ = p.Close() }, nil
	}

	models, err := store.NewModelStore(ctx, cfg.Model.Store, cfg.Model.Path)
	if err != nil {
		return nil, noop, err
	}
	defer models.Close()
	blob, ok, err := models.Load(ctx, cfg.Model.Name)
	if err != nil {
		return nil, noop, err
	}
	if !ok {
		return nil, noop, fmt.Errorf("no saved model %q in %s store at %s", cfg.Model.Name, cfg.Model.Store, cfg.Model.Path)
	}
	q, err := model.LoadMLP(blob, cfg.MLPSettings())
	if err != nil {
		return nil, noop, err
	}
	opts.Logger.Info("playing with stored network", "name", cfg.Model.Name, "hidden", q.Config().Hidden)
	return agent.Greedy{Predictor: q}, noop, nil
}
