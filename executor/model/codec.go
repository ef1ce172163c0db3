package model

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

const codecVersion = 1

// envelope is the persisted form of an MLP. Each matrix is gonum's binary
// encoding, base64 wrapped by encoding/json.
type envelope struct {
	Version int         `json:"version"`
	Inputs  int         `json:"inputs"`
	Hidden  int         `json:"hidden"`
	Outputs int         `json:"outputs"`
	Layers  []layerBlob `json:"layers"`
}

type layerBlob struct {
	W []byte `json:"w"`
	B []byte `json:"b"`
}

// Save encodes the network weights.
func (m *MLP) Save() ([]byte, error) {
	env := envelope{
		Version: codecVersion,
		Inputs:  NumInputs,
		Hidden:  m.cfg.Hidden,
		Outputs: NumOutputs,
	}
	for i, l := range m.layers {
		w, err := l.w.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("marshal layer %d weights: %w", i, err)
		}
		b, err := l.b.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("marshal layer %d bias: %w", i, err)
		}
		env.Layers = append(env.Layers, layerBlob{W: w, B: b})
	}
	return json.Marshal(env)
}

// Load replaces the weights with a blob produced by Save. The network's
// shape must match the blob. Optimizer moments restart from zero.
func (m *MLP) Load(blob []byte) error {
	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return fmt.Errorf("decode model blob: %w", err)
	}
	if env.Version != codecVersion {
		return fmt.Errorf("%w: got %d want %d", ErrVersionMismatch, env.Version, codecVersion)
	}
	if env.Inputs != NumInputs || env.Outputs != NumOutputs || env.Hidden != m.cfg.Hidden || len(env.Layers) != len(m.layers) {
		return fmt.Errorf("%w: blob %dx%dx%d (%d layers), network %dx%dx%d",
			ErrShapeMismatch, env.Inputs, env.Hidden, env.Outputs, len(env.Layers), NumInputs, m.cfg.Hidden, NumOutputs)
	}

	loaded := make([]*dense, len(m.layers))
	for i, lb := range env.Layers {
		var w, b mat.Dense
		if err := w.UnmarshalBinary(lb.W); err != nil {
			return fmt.Errorf("unmarshal layer %d weights: %w", i, err)
		}
		if err := b.UnmarshalBinary(lb.B); err != nil {
			return fmt.Errorf("unmarshal layer %d bias: %w", i, err)
		}
		wr, wc := m.layers[i].w.Dims()
		if r, c := w.Dims(); r != wr || c != wc {
			return fmt.Errorf("%w: layer %d weights %dx%d want %dx%d", ErrShapeMismatch, i, r, c, wr, wc)
		}
		if _, c := b.Dims(); c != wc {
			return fmt.Errorf("%w: layer %d bias width %d want %d", ErrShapeMismatch, i, c, wc)
		}
		loaded[i] = &dense{
			w:  &w,
			b:  &b,
			mw: mat.NewDense(wr, wc, nil),
			vw: mat.NewDense(wr, wc, nil),
			mb: mat.NewDense(1, wc, nil),
			vb: mat.NewDense(1, wc, nil),
		}
	}
	copy(m.layers[:], loaded)
	m.steps = 0
	return nil
}

// LoadMLP builds a network sized from the blob itself.
func LoadMLP(blob []byte, cfg MLPConfig) (*MLP, error) {
	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, fmt.Errorf("decode model blob: %w", err)
	}
	if env.Hidden > 0 {
		cfg.Hidden = env.Hidden
	}
	m, err := NewMLP(cfg, nil)
	if err != nil {
		return nil, err
	}
	if err := m.Load(blob); err != nil {
		return nil, err
	}
	return m, nil
}
