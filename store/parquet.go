// Package store persists training artifacts: parquet datasets of transitions
// and finished episodes, and the learned network parameters.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

const (
	TransitionSchema = "transition_v1"
	EpisodeSchema    = "episode_v1"
)

// TransitionRow is one (s, a, r, s', done) experience.
//
// State and NextState are the 16-wide feature vectors in Down, Left, Right,
// Up group order. Action is the direction index: 0=Down, 1=Left, 2=Right,
// 3=Up.
type TransitionRow struct {
	RunID     string    `parquet:"run_id,dict"`
	Game      int32     `parquet:"game"`
	Step      int32     `parquet:"step"`
	State     []float32 `parquet:"state"`
	Action    int32     `parquet:"action"`
	Reward    float32   `parquet:"reward"`
	NextState []float32 `parquet:"next_state"`
	Done      bool      `parquet:"done"`
	Score     int32     `parquet:"score"`
}

// EpisodeRow summarizes one finished game.
type EpisodeRow struct {
	RunID      string  `parquet:"run_id,dict"`
	Game       int32   `parquet:"game"`
	Score      int32   `parquet:"score"`
	Record     int32   `parquet:"record"`
	Steps      int32   `parquet:"steps"`
	Length     int32   `parquet:"length"`
	Ending     string  `parquet:"ending,dict"`
	Won        bool    `parquet:"won"`
	NewRecord  bool    `parquet:"new_record"`
	Epsilon    int32   `parquet:"epsilon"`
	Loss       float32 `parquet:"loss"`
	FinishedAt int64   `parquet:"finished_at_ms"`
}

// WriteTransitionsParquetAtomic writes rows into outDir/tmp and then
// atomically moves the file into outDir. Readers never observe partially
// written files. The returned path is the final parquet file path.
func WriteTransitionsParquetAtomic(outDir string, rows []TransitionRow) (string, error) {
	return writeParquetAtomic(outDir, "transitions", TransitionSchema, rows)
}

// WriteEpisodesParquetAtomic is WriteTransitionsParquetAtomic for episode
// summaries.
func WriteEpisodesParquetAtomic(outDir string, rows []EpisodeRow) (string, error) {
	return writeParquetAtomic(outDir, "episodes", EpisodeSchema, rows)
}

func writeParquetAtomic[T any](outDir, prefix, schema string, rows []T) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	tmpDir := filepath.Join(outDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", fmt.Errorf("create tmp dir: %w", err)
	}

	name := fmt.Sprintf("%s_%d.parquet", prefix, time.Now().UnixNano())
	finalPath := filepath.Join(outDir, name)
	tmpPath := filepath.Join(tmpDir, name+".tmp")
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", schema),
	); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename parquet: %w", err)
	}

	return finalPath, nil
}

// ReadTransitions loads a transitions file, e.g. to warm-start replay memory.
func ReadTransitions(path string) ([]TransitionRow, error) {
	rows, err := parquet.ReadFile[TransitionRow](path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}

// ReadEpisodes loads an episodes file.
func ReadEpisodes(path string) ([]EpisodeRow, error) {
	rows, err := parquet.ReadFile[EpisodeRow](path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}

// ListParquet returns the finished parquet files in dir with the given name
// prefix, oldest first.
func ListParquet(dir, prefix string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"_*.parquet"))
	if err != nil {
		return nil, err
	}
	return matches, nil
}
