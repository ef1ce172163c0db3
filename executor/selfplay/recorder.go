package selfplay

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/brensch/snekql/executor/convert"
	"github.com/brensch/snekql/executor/model"
	"github.com/brensch/snekql/game"
	"github.com/brensch/snekql/store"
)

// Recorder streams finished games into parquet: transitions under outDir
// and one summary row per game under outDir/episodes. A file is finalized
// every flushGames games and on Close. Steps of an unfinished game are
// dropped.
type Recorder struct {
	outDir     string
	runID      string
	flushGames int
	logger     *slog.Logger

	writer   *store.BatchWriter[store.TransitionRow]
	pending  []store.TransitionRow
	episodes []store.EpisodeRow
}

func NewRecorder(outDir, runID string, flushGames int, logger *slog.Logger) (*Recorder, error) {
	if flushGames <= 0 {
		flushGames = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	w, err := store.NewTransitionWriter(outDir)
	if err != nil {
		return nil, err
	}
	return &Recorder{outDir: outDir, runID: runID, flushGames: flushGames, logger: logger, writer: w}, nil
}

func (r *Recorder) EpisodeDir() string { return filepath.Join(r.outDir, "episodes") }

// AddStep buffers one transition of the current game.
func (r *Recorder) AddStep(gameNo, step int, t model.Transition, score int) {
	r.pending = append(r.pending, store.TransitionRow{
		RunID:     r.runID,
		Game:      int32(gameNo),
		Step:      int32(step),
		State:     t.State.Float32(),
		Action:    int32(t.Action.Argmax()),
		Reward:    float32(t.Reward),
		NextState: t.NextState.Float32(),
		Done:      t.Done,
		Score:     int32(score),
	})
}

// EndGame writes the buffered game and flushes when enough games piled up.
func (r *Recorder) EndGame(res GameResult) error {
	if err := r.writer.WriteRows(r.pending); err != nil {
		return fmt.Errorf("write transitions: %w", err)
	}
	r.pending = r.pending[:0]
	r.writer.NoteGameWritten()
	r.episodes = append(r.episodes, store.EpisodeRow{
		RunID:      r.runID,
		Game:       int32(res.Game),
		Score:      int32(res.Score),
		Record:     int32(res.Record),
		Steps:      int32(res.Steps),
		Length:     int32(res.Length),
		Ending:     res.Ending,
		Won:        res.Won,
		NewRecord:  res.NewRecord,
		Epsilon:    int32(res.Epsilon),
		Loss:       float32(res.Loss),
		FinishedAt: time.Now().UnixMilli(),
	})

	if r.writer.BufferedGames() >= r.flushGames {
		return r.flush(true)
	}
	return nil
}

func (r *Recorder) flush(reopen bool) error {
	path, rows, games, err := r.writer.Finalize()
	if err != nil {
		return err
	}
	if path != "" {
		r.logger.Info("flushed transitions", "path", path, "rows", rows, "games", games)
	}
	if len(r.episodes) > 0 {
		epPath, err := store.WriteEpisodesParquetAtomic(r.EpisodeDir(), r.episodes)
		if err != nil {
			return err
		}
		r.logger.Info("flushed episodes", "path", epPath, "games", len(r.episodes))
		r.episodes = r.episodes[:0]
	}
	if !reopen {
		return nil
	}
	w, err := store.NewTransitionWriter(r.outDir)
	if err != nil {
		return err
	}
	r.writer = w
	return nil
}

// Close flushes whatever complete games are buffered.
func (r *Recorder) Close() error {
	r.pending = nil
	return r.flush(false)
}

// LoadTransitions reads every transition file recorded under dir, in file
// name order, for warm-starting replay memory.
func LoadTransitions(dir string) ([]model.Transition, error) {
	files, err := store.ListParquet(dir, "transitions")
	if err != nil {
		return nil, err
	}
	var out []model.Transition
	for _, f := range files {
		rows, err := store.ReadTransitions(f)
		if err != nil {
			return out, fmt.Errorf("read %s: %w", f, err)
		}
		for _, row := range rows {
			out = append(out, model.Transition{
				State:     convert.FromFloat32(row.State),
				Action:    game.OneHot(int(row.Action)),
				Reward:    float64(row.Reward),
				NextState: convert.FromFloat32(row.NextState),
				Done:      row.Done,
			})
		}
	}
	return out, nil
}
