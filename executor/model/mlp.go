package model

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/brensch/snekql/executor/convert"
)

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
)

// MLPConfig sizes and tunes the network.
type MLPConfig struct {
	Hidden       int
	LearningRate float64
	Gamma        float64
}

var DefaultMLPConfig = MLPConfig{Hidden: 256, LearningRate: 0.001, Gamma: 0.9}

// dense is one fully connected layer with its Adam moments.
type dense struct {
	w, b   *mat.Dense
	mw, vw *mat.Dense
	mb, vb *mat.Dense
}

func newDense(in, out int, rng *rand.Rand) *dense {
	bound := 1 / math.Sqrt(float64(in))
	uniform := func(n int) []float64 {
		data := make([]float64, n)
		for i := range data {
			data[i] = (rng.Float64()*2 - 1) * bound
		}
		return data
	}
	return &dense{
		w:  mat.NewDense(in, out, uniform(in*out)),
		b:  mat.NewDense(1, out, uniform(out)),
		mw: mat.NewDense(in, out, nil),
		vw: mat.NewDense(in, out, nil),
		mb: mat.NewDense(1, out, nil),
		vb: mat.NewDense(1, out, nil),
	}
}

func (d *dense) clone() *dense {
	return &dense{
		w:  mat.DenseCopyOf(d.w),
		b:  mat.DenseCopyOf(d.b),
		mw: mat.DenseCopyOf(d.mw),
		vw: mat.DenseCopyOf(d.vw),
		mb: mat.DenseCopyOf(d.mb),
		vb: mat.DenseCopyOf(d.vb),
	}
}

// forward returns x*w + b.
func (d *dense) forward(x mat.Matrix) *mat.Dense {
	var z mat.Dense
	z.Mul(x, d.w)
	z.Apply(func(_, j int, v float64) float64 { return v + d.b.At(0, j) }, &z)
	return &z
}

// MLP is a two hidden layer ReLU network trained with Adam on mean squared
// error: 16 -> hidden -> hidden -> 4.
type MLP struct {
	cfg    MLPConfig
	layers [3]*dense
	steps  int
}

// NewMLP builds a network with PyTorch-style uniform(+-1/sqrt(fan_in))
// initialization drawn from rng.
func NewMLP(cfg MLPConfig, rng *rand.Rand) (*MLP, error) {
	if cfg.Hidden <= 0 {
		return nil, fmt.Errorf("hidden size must be positive, got %d", cfg.Hidden)
	}
	if cfg.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %v", cfg.LearningRate)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &MLP{
		cfg: cfg,
		layers: [3]*dense{
			newDense(NumInputs, cfg.Hidden, rng),
			newDense(cfg.Hidden, cfg.Hidden, rng),
			newDense(cfg.Hidden, NumOutputs, rng),
		},
	}, nil
}

func (m *MLP) Config() MLPConfig { return m.cfg }

// Clone returns an independent copy including optimizer state.
func (m *MLP) Clone() *MLP {
	c := &MLP{cfg: m.cfg, steps: m.steps}
	for i, l := range m.layers {
		c.layers[i] = l.clone()
	}
	return c
}

// activations caches the intermediate values of a forward pass.
type activations struct {
	x      *mat.Dense
	z1, a1 *mat.Dense
	z2, a2 *mat.Dense
	q      *mat.Dense
}

func relu(z *mat.Dense) *mat.Dense {
	var a mat.Dense
	a.Apply(func(_, _ int, v float64) float64 { return math.Max(v, 0) }, z)
	return &a
}

func (m *MLP) forward(x *mat.Dense) activations {
	act := activations{x: x}
	act.z1 = m.layers[0].forward(x)
	act.a1 = relu(act.z1)
	act.z2 = m.layers[1].forward(act.a1)
	act.a2 = relu(act.z2)
	act.q = m.layers[2].forward(act.a2)
	return act
}

func stateMatrix(states []convert.Features) *mat.Dense {
	x := mat.NewDense(len(states), NumInputs, nil)
	for i, s := range states {
		x.SetRow(i, s[:])
	}
	return x
}

func rowsOf(q *mat.Dense) []QValues {
	n, _ := q.Dims()
	out := make([]QValues, n)
	for i := range out {
		mat.Row(out[i][:], i, q)
	}
	return out
}

// Predict runs a single state through the network.
func (m *MLP) Predict(state convert.Features) (QValues, error) {
	act := m.forward(stateMatrix([]convert.Features{state}))
	return rowsOf(act.q)[0], nil
}

// PredictBatch runs several states at once.
func (m *MLP) PredictBatch(states []convert.Features) []QValues {
	if len(states) == 0 {
		return nil
	}
	return rowsOf(m.forward(stateMatrix(states)).q)
}

// TrainStep fits the batch towards its bootstrapped targets. Each sample
// bootstraps from its own next state.
func (m *MLP) TrainStep(batch []Transition) float64 {
	if len(batch) == 0 {
		return 0
	}
	states := make([]convert.Features, len(batch))
	next := make([]convert.Features, len(batch))
	for i, t := range batch {
		states[i] = t.State
		next[i] = t.NextState
	}

	nextMax := make([]float64, len(batch))
	for i, q := range m.PredictBatch(next) {
		nextMax[i] = Max(q)
	}

	act := m.forward(stateMatrix(states))
	targets := Targets(rowsOf(act.q), batch, m.cfg.Gamma, nextMax)
	return m.fit(act, targets)
}

func (m *MLP) fit(act activations, targets []QValues) float64 {
	n, _ := act.q.Dims()
	scale := 1 / float64(n*NumOutputs)

	// dL/dq for mean squared error.
	dq := mat.NewDense(n, NumOutputs, nil)
	loss := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < NumOutputs; j++ {
			diff := act.q.At(i, j) - targets[i][j]
			loss += diff * diff
			dq.Set(i, j, 2*diff*scale)
		}
	}
	loss *= scale

	gw3, gb3 := gradients(act.a2, dq)
	dz2 := backReLU(dq, m.layers[2].w, act.z2)
	gw2, gb2 := gradients(act.a1, dz2)
	dz1 := backReLU(dz2, m.layers[1].w, act.z1)
	gw1, gb1 := gradients(act.x, dz1)

	m.steps++
	m.adam(m.layers[0], gw1, gb1)
	m.adam(m.layers[1], gw2, gb2)
	m.adam(m.layers[2], gw3, gb3)
	return loss
}

// gradients returns (input^T * delta, column sums of delta).
func gradients(input, delta *mat.Dense) (*mat.Dense, *mat.Dense) {
	var gw mat.Dense
	gw.Mul(input.T(), delta)

	n, c := delta.Dims()
	gb := mat.NewDense(1, c, nil)
	for j := 0; j < c; j++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += delta.At(i, j)
		}
		gb.Set(0, j, sum)
	}
	return &gw, gb
}

// backReLU propagates delta through w and the ReLU whose pre-activation was z.
func backReLU(delta, w, z *mat.Dense) *mat.Dense {
	var d mat.Dense
	d.Mul(delta, w.T())
	d.Apply(func(i, j int, v float64) float64 {
		if z.At(i, j) <= 0 {
			return 0
		}
		return v
	}, &d)
	return &d
}

func (m *MLP) adam(l *dense, gw, gb *mat.Dense) {
	adamUpdate(l.w, l.mw, l.vw, gw, m.cfg.LearningRate, m.steps)
	adamUpdate(l.b, l.mb, l.vb, gb, m.cfg.LearningRate, m.steps)
}

func adamUpdate(p, mom, vel, g *mat.Dense, lr float64, t int) {
	c1 := 1 - math.Pow(adamBeta1, float64(t))
	c2 := 1 - math.Pow(adamBeta2, float64(t))
	r, c := p.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			gij := g.At(i, j)
			mij := adamBeta1*mom.At(i, j) + (1-adamBeta1)*gij
			vij := adamBeta2*vel.At(i, j) + (1-adamBeta2)*gij*gij
			mom.Set(i, j, mij)
			vel.Set(i, j, vij)
			p.Set(i, j, p.At(i, j)-lr*(mij/c1)/(math.Sqrt(vij/c2)+adamEpsilon))
		}
	}
}
