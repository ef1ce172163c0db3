package viewer

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/snekql/executor/selfplay"
)

const recentGames = 10

// Update is what the training loop feeds the dashboard. Either field may be
// nil.
type Update struct {
	Result *selfplay.GameResult
	Frame  *Frame
}

type TickMsg time.Time

// Dashboard is a bubbletea model summarising a training run.
type Dashboard struct {
	updates <-chan Update
	steps   *atomic.Int64

	startTime time.Time
	moves     int64
	games     int
	record    int
	meanScore float64
	epsilon   int
	loss      float64
	recent    []string
	frame     *Frame
	closed    bool
}

// NewDashboard reads updates until the channel closes. steps, when non-nil,
// is polled on every tick for the total move count.
func NewDashboard(updates <-chan Update, steps *atomic.Int64) Dashboard {
	return Dashboard{
		updates:   updates,
		steps:     steps,
		startTime: time.Now(),
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

type updatesClosed struct{}

func waitForUpdate(updates <-chan Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-updates
		if !ok {
			return updatesClosed{}
		}
		return u
	}
}

func (m Dashboard) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), tickCmd())
}

func (m Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case TickMsg:
		if m.steps != nil {
			m.moves = m.steps.Load()
		}
		return m, tickCmd()
	case updatesClosed:
		m.closed = true
		return m, nil
	case Update:
		if msg.Frame != nil {
			m.frame = msg.Frame
		}
		if r := msg.Result; r != nil {
			m.games = r.Game
			m.record = r.Record
			m.meanScore = r.MeanScore
			m.epsilon = r.Epsilon
			m.loss = r.Loss
			line := fmt.Sprintf("Game %d: score %d, steps %d, %s", r.Game, r.Score, r.Steps, r.Ending)
			if r.NewRecord {
				line += " (record)"
			}
			m.recent = append([]string{line}, m.recent...)
			if len(m.recent) > recentGames {
				m.recent = m.recent[:recentGames]
			}
		}
		return m, waitForUpdate(m.updates)
	}
	return m, nil
}

func (m Dashboard) View() string {
	duration := time.Since(m.startTime)
	movesPerSec := 0.0
	if duration.Seconds() >= 1 {
		movesPerSec = float64(m.moves) / duration.Seconds()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Games Played: %d\n", m.games)
	fmt.Fprintf(&sb, "Record:       %d\n", m.record)
	fmt.Fprintf(&sb, "Mean Score:   %.2f\n", m.meanScore)
	fmt.Fprintf(&sb, "Epsilon:      %d\n", m.epsilon)
	fmt.Fprintf(&sb, "Loss:         %.4f\n", m.loss)
	fmt.Fprintf(&sb, "Total Moves:  %d\n", m.moves)
	fmt.Fprintf(&sb, "Moves/Sec:    %.2f\n", movesPerSec)
	fmt.Fprintf(&sb, "Duration:     %s\n\n", duration.Round(time.Second))

	if m.frame != nil {
		fmt.Fprintf(&sb, "Game %d  step %d  score %d\n", m.frame.Game, m.frame.Step, m.frame.Score)
		sb.WriteString(m.frame.Render())
		sb.WriteByte('\n')
	}

	sb.WriteString("Recent Games:\n")
	for _, g := range m.recent {
		sb.WriteString(g)
		sb.WriteByte('\n')
	}
	if m.closed {
		sb.WriteString("\nTraining finished.")
	}
	sb.WriteString("\nPress q to quit.\n")
	return sb.String()
}
