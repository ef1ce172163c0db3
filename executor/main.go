package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/brensch/snekql/config"
	"github.com/brensch/snekql/executor/agent"
	"github.com/brensch/snekql/executor/convert"
	"github.com/brensch/snekql/executor/model"
	"github.com/brensch/snekql/executor/selfplay"
	"github.com/brensch/snekql/logging"
	"github.com/brensch/snekql/rules"
	"github.com/brensch/snekql/store"
	"github.com/brensch/snekql/viewer"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults and SNEKQL_* env vars apply without one)")
	maxGames := flag.Int("max-games", 0, "If > 0, stop after this many games (overrides train.max_games)")
	tui := flag.Bool("tui", false, "Show the terminal dashboard (overrides viewer.tui)")
	addr := flag.String("addr", "", "Serve the websocket frame feed on this address (overrides viewer.addr)")
	trace := flag.Bool("trace", false, "Print the board and features every step (overrides train.trace)")
	printConfig := flag.Bool("print-config", false, "Print the effective config and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if *maxGames > 0 {
		cfg.Train.MaxGames = *maxGames
	}
	if *tui {
		cfg.Viewer.TUI = true
	}
	if *addr != "" {
		cfg.Viewer.Addr = *addr
	}
	if *trace {
		cfg.Train.Trace = true
	}
	if *printConfig {
		out, err := cfg.YAML()
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(out)
		return
	}

	// Keep the dashboard's screen clean by logging to a file.
	var logOut io.Writer = os.Stderr
	if cfg.Viewer.TUI {
		f, err := os.OpenFile("snekql.log", os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	logger, err := logging.New(logOut, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("training failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runID := uuid.NewString()
	seed := cfg.Train.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	logger = logger.With("run", runID)
	logger.Info("starting training", "seed", seed, "board", fmt.Sprintf("%dx%d", cfg.Board.Rows, cfg.Board.Columns), "policy", cfg.Agent.Policy)
	rng := rand.New(rand.NewSource(seed))

	env, err := rules.NewEnv(cfg.Board.Rows, cfg.Board.Columns, cfg.RulesSettings(), rng)
	if err != nil {
		return fmt.Errorf("new env: %w", err)
	}
	cost, err := convert.CostByName(cfg.Agent.Cost)
	if err != nil {
		return err
	}
	q, err := model.NewMLP(cfg.MLPSettings(), rng)
	if err != nil {
		return fmt.Errorf("new network: %w", err)
	}
	models, err := store.NewModelStore(ctx, cfg.Model.Store, cfg.Model.Path)
	if err != nil {
		return err
	}
	defer models.Close()

	a, err := agent.New(cfg.AgentSettings(), q, models, rng, logger)
	if err != nil {
		return err
	}
	restored, err := a.Restore(ctx)
	if err != nil {
		return err
	}
	if restored {
		logger.Info("resumed from saved model", "name", cfg.Model.Name, "record", a.Record(), "games", a.Games())
	}
	if cfg.Train.WarmStart != "" {
		ts, err := selfplay.LoadTransitions(cfg.Train.WarmStart)
		if err != nil {
			return fmt.Errorf("warm start: %w", err)
		}
		for _, t := range ts {
			a.Remember(t)
		}
		logger.Info("warm started replay memory", "dir", cfg.Train.WarmStart, "transitions", len(ts), "memory", a.Memory().Len())
	}

	trainer := &selfplay.Trainer{
		Env:      env,
		Agent:    a,
		Cost:     cost,
		MaxGames: cfg.Train.MaxGames,
		Logger:   logger,
	}
	if cfg.Train.Trace {
		trainer.Trace = os.Stdout
	}
	if cfg.Train.Record {
		rec, err := selfplay.NewRecorder(cfg.Train.OutDir, runID, cfg.Train.FlushGames, logger)
		if err != nil {
			return err
		}
		trainer.Recorder = rec
	}

	var steps atomic.Int64
	var hub *viewer.Hub
	var updates chan viewer.Update
	if cfg.Viewer.Addr != "" {
		hub = viewer.NewHub(logger)
		defer hub.Close()
	}
	if cfg.Viewer.TUI {
		updates = make(chan viewer.Update, 64)
	}
	trainer.OnStep = func(env *rules.Env, gameNo int) {
		steps.Add(1)
		if hub == nil && updates == nil {
			return
		}
		frame := viewer.NewFrame(env, gameNo, a.Record())
		if hub != nil {
			if err := hub.Broadcast(frame); err != nil {
				logger.Warn("broadcast frame", "error", err)
			}
		}
		if updates != nil {
			// Never block training on the UI.
			select {
			case updates <- viewer.Update{Frame: &frame}:
			default:
			}
		}
	}
	trainer.OnGame = func(res selfplay.GameResult) {
		if updates == nil {
			return
		}
		// Frames may be dropped, results may not.
		select {
		case updates <- viewer.Update{Result: &res}:
		case <-ctx.Done():
		}
	}

	group, ctx := errgroup.WithContext(ctx)
	trainDone := make(chan struct{})
	group.Go(func() error {
		defer close(trainDone)
		if updates != nil {
			defer close(updates)
		}
		err := trainer.Run(ctx)
		logger.Info("training stopped", "games", a.Games(), "record", a.Record(), "steps", steps.Load())
		return err
	})

	if hub != nil {
		srv := &http.Server{Addr: cfg.Viewer.Addr, Handler: hub.Handler()}
		group.Go(func() error {
			logger.Info("serving frames", "addr", cfg.Viewer.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("viewer server: %w", err)
			}
			return nil
		})
		group.Go(func() error {
			select {
			case <-ctx.Done():
			case <-trainDone:
			}
			hub.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if updates != nil {
		p := tea.NewProgram(viewer.NewDashboard(updates, &steps), tea.WithAltScreen(), tea.WithContext(ctx))
		group.Go(func() error {
			_, err := p.Run()
			// Quitting the dashboard stops training.
			cancel()
			if errors.Is(err, tea.ErrProgramKilled) {
				return nil
			}
			return err
		})
	}

	return group.Wait()
}
