package agent

import (
	"math/rand"

	"github.com/brensch/snekql/executor/model"
)

// Memory is a bounded FIFO of transitions. Appending to a full memory
// evicts the oldest entry.
type Memory struct {
	items []model.Transition
	start int
	n     int
}

func NewMemory(capacity int) *Memory {
	if capacity < 1 {
		capacity = 1
	}
	return &Memory{items: make([]model.Transition, capacity)}
}

func (m *Memory) Len() int { return m.n }
func (m *Memory) Cap() int { return len(m.items) }

func (m *Memory) Append(t model.Transition) {
	if m.n < len(m.items) {
		m.items[(m.start+m.n)%len(m.items)] = t
		m.n++
		return
	}
	m.items[m.start] = t
	m.start = (m.start + 1) % len(m.items)
}

func (m *Memory) at(i int) model.Transition {
	return m.items[(m.start+i)%len(m.items)]
}

// Items returns the stored transitions oldest first.
func (m *Memory) Items() []model.Transition {
	out := make([]model.Transition, m.n)
	for i := range out {
		out[i] = m.at(i)
	}
	return out
}

// Sample draws n distinct transitions uniformly. When n covers the whole
// memory it returns Items.
func (m *Memory) Sample(rng *rand.Rand, n int) []model.Transition {
	if n >= m.n {
		return m.Items()
	}
	out := make([]model.Transition, 0, n)
	for _, i := range rng.Perm(m.n)[:n] {
		out = append(out, m.at(i))
	}
	return out
}

func (m *Memory) Clone() *Memory {
	c := &Memory{items: make([]model.Transition, len(m.items)), start: m.start, n: m.n}
	copy(c.items, m.items)
	return c
}
