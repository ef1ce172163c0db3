package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func sampleTransitions(n int) []TransitionRow {
	rows := make([]TransitionRow, n)
	for i := range rows {
		state := make([]float32, 16)
		next := make([]float32, 16)
		for j := range state {
			state[j] = float32(i + j)
			next[j] = float32(i + j + 1)
		}
		rows[i] = TransitionRow{
			RunID:     "run",
			Game:      int32(i / 3),
			Step:      int32(i % 3),
			State:     state,
			Action:    int32(i % 4),
			Reward:    float32(i%3) * 10,
			NextState: next,
			Done:      i%3 == 2,
			Score:     int32(i),
		}
	}
	return rows
}

func TestWriteTransitionsParquetAtomic(t *testing.T) {
	dir := t.TempDir()
	rows := sampleTransitions(9)

	path, err := WriteTransitionsParquetAtomic(dir, rows)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("path=%s not in %s", path, dir)
	}
	tmpEntries, err := os.ReadDir(filepath.Join(dir, "tmp"))
	if err != nil {
		t.Fatalf("read tmp dir: %v", err)
	}
	if len(tmpEntries) != 0 {
		t.Fatalf("tmp dir not empty: %d entries", len(tmpEntries))
	}

	got, err := ReadTransitions(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != len(rows) {
		t.Fatalf("rows=%d want=%d", len(got), len(rows))
	}
	for i := range rows {
		if got[i].Action != rows[i].Action || got[i].Done != rows[i].Done || got[i].Reward != rows[i].Reward {
			t.Fatalf("row %d=%+v want=%+v", i, got[i], rows[i])
		}
		if len(got[i].State) != 16 || got[i].State[5] != rows[i].State[5] || got[i].NextState[15] != rows[i].NextState[15] {
			t.Fatalf("row %d state mismatch", i)
		}
	}

	listed, err := ListParquet(dir, "transitions")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0] != path {
		t.Fatalf("listed=%v want=[%s]", listed, path)
	}
}

func TestWriteEpisodesParquetAtomic(t *testing.T) {
	dir := t.TempDir()
	rows := []EpisodeRow{
		{RunID: "r", Game: 1, Score: 3, Record: 3, Steps: 40, Length: 5, Ending: "collision", NewRecord: true},
		{RunID: "r", Game: 2, Score: 1, Record: 3, Steps: 12, Length: 3, Ending: "step_limit"},
	}
	path, err := WriteEpisodesParquetAtomic(dir, rows)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadEpisodes(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[0] != rows[0] || got[1] != rows[1] {
		t.Fatalf("episodes=%+v want=%+v", got, rows)
	}
}

func TestBatchWriter(t *testing.T) {
	dir := t.TempDir()
	w, err := NewTransitionWriter(dir)
	if err != nil {
		t.Fatalf("NewTransitionWriter: %v", err)
	}
	if err := w.WriteRows(sampleTransitions(3)); err != nil {
		t.Fatalf("WriteRows: %v", err)
	}
	w.NoteGameWritten()
	if err := w.WriteRows(sampleTransitions(2)); err != nil {
		t.Fatalf("WriteRows: %v", err)
	}
	w.NoteGameWritten()

	if _, err := os.Stat(w.OutPath()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("final file visible before Finalize: %v", err)
	}

	path, rows, games, err := w.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if rows != 5 || games != 2 {
		t.Fatalf("rows=%d games=%d want=5,2", rows, games)
	}
	got, err := ReadTransitions(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("read rows=%d want=5", len(got))
	}
	if err := w.WriteRows(sampleTransitions(1)); err == nil {
		t.Fatalf("write after Finalize succeeded")
	}
}

func TestBatchWriter_EmptyFinalize(t *testing.T) {
	w, err := NewTransitionWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewTransitionWriter: %v", err)
	}
	path, rows, _, err := w.Finalize()
	if err != nil || path != "" || rows != 0 {
		t.Fatalf("path=%q rows=%d err=%v want empty", path, rows, err)
	}
	if _, err := os.Stat(w.TmpPath()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("tmp file left behind: %v", err)
	}
}

func testModelStore(t *testing.T, s ModelStore) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Load(ctx, "model"); err != nil || ok {
		t.Fatalf("load missing: ok=%v err=%v", ok, err)
	}
	if err := s.Save(ctx, "model", []byte("first")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save(ctx, "model", []byte("second")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	blob, ok, err := s.Load(ctx, "model")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(blob, []byte("second")) {
		t.Fatalf("blob=%q want=second", blob)
	}
	if err := s.Save(ctx, "../escape", []byte("x")); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("err=%v want=%v", err, ErrInvalidName)
	}
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewModelStore(context.Background(), "file", dir)
	if err != nil {
		t.Fatalf("NewModelStore: %v", err)
	}
	defer s.Close()
	testModelStore(t, s)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "model.bin" {
		t.Fatalf("dir entries=%v want only model.bin", entries)
	}
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewModelStore(ctx, "sqlite", filepath.Join(t.TempDir(), "models.db"))
	if err != nil {
		t.Fatalf("NewModelStore: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	testModelStore(t, s)

	if _, ok, err := s.(*SQLiteStore).SavedAt(ctx, "model"); err != nil || !ok {
		t.Fatalf("SavedAt: ok=%v err=%v", ok, err)
	}
}

func TestNewModelStore_UnknownKind(t *testing.T) {
	if _, err := NewModelStore(context.Background(), "s3", t.TempDir()); err == nil {
		t.Fatalf("unknown backend accepted")
	}
}
