// Package tui draws the spectrum as terminal bars and drives the deck from the
// keyboard.
package tui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"spectra/internal/analysis"
	"spectra/internal/engine"
	"spectra/internal/player"
)

const (
	seekStep  = 5000 // ms
	speedStep = 0.25

	// Rows taken by the title, axis, status and help lines.
	chromeRows = 6
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	barStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065"))

	axisStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D7D7D"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F87"))
)

// One to seven eighths, lowest first. Full cells use █.
var partials = []rune("▁▂▃▄▅▆▇")

// Analyzer is the engine surface the model reads.
type Analyzer interface {
	Slot() *engine.Slot
	Table() *analysis.BinTable
	Interval() time.Duration
}

// Deck is the transport the keys control.
type Deck interface {
	Snapshot() player.Snapshot
	Toggle() error
	Stop()
	SeekBy(deltaMs int64)
	SetSpeed(x float64) error
	Speed() float64
}

type tickMsg time.Time

// Model is the bubbletea model of the visualizer.
type Model struct {
	analyzer Analyzer
	deck     Deck
	keys     keyMap
	help     help.Model

	width    int
	height   int
	frame    *engine.Frame
	decibels bool
	err      error
}

// NewModel creates a visualizer reading frames from analyzer.
func NewModel(analyzer Analyzer, deck Deck) Model {
	return Model{
		analyzer: analyzer,
		deck:     deck,
		keys:     defaultKeyMap(),
		help:     help.New(),
		width:    80,
		height:   24,
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.analyzer.Interval(), func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the redraw cadence.
func (m Model) Init() tea.Cmd {
	return m.tick()
}

// Update handles frames, resizes and keys.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.frame = m.analyzer.Slot().Load()
		return m, m.tick()

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width

	case tea.KeyMsg:
		m.err = nil
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Toggle):
			m.err = m.deck.Toggle()
		case key.Matches(msg, m.keys.Stop):
			m.deck.Stop()
		case key.Matches(msg, m.keys.Back):
			m.deck.SeekBy(-seekStep)
		case key.Matches(msg, m.keys.Forward):
			m.deck.SeekBy(seekStep)
		case key.Matches(msg, m.keys.Faster):
			m.err = m.deck.SetSpeed(min(m.deck.Speed()+speedStep, player.MaxSpeed))
		case key.Matches(msg, m.keys.Slower):
			m.err = m.deck.SetSpeed(max(m.deck.Speed()-speedStep, player.MinSpeed))
		case key.Matches(msg, m.keys.Decibels):
			m.decibels = !m.decibels
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
	}
	return m, nil
}

// View renders the bars, the axis and the status line.
func (m Model) View() string {
	snap := m.deck.Snapshot()
	table := m.analyzer.Table()

	title := "spectra"
	if snap.Path != "" {
		title += " · " + filepath.Base(snap.Path)
	}

	var values []float64
	if m.frame != nil {
		values = m.frame.Values
	}
	cols := min(table.Len(), max(m.width, 1))
	levels := m.levels(downsample(values, table.Len(), cols))
	rows := max(m.height-chromeRows, 1)

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(title))
	sb.WriteString("\n\n")
	sb.WriteString(barStyle.Render(renderBars(levels, rows)))
	sb.WriteString("\n")
	sb.WriteString(axisStyle.Render(axisLine(table.Ticks(), table.Len(), cols)))
	sb.WriteString("\n")
	sb.WriteString(m.status(snap))
	sb.WriteString("\n")
	sb.WriteString(m.help.View(m.keys))
	return sb.String()
}

func (m Model) status(snap player.Snapshot) string {
	state := "idle"
	if m.frame != nil {
		state = m.frame.State.String()
	}
	mode := "linear"
	if m.decibels {
		mode = "dB"
	}

	line := fmt.Sprintf("%s  %s / %s  %.2fx  [%s]",
		highlightStyle.Render(snap.State.String()),
		formatClock(snap.PositionMs), formatClock(snap.DurationMs),
		snap.Speed, mode)
	if m.frame != nil && m.frame.Peak > 0 {
		line += fmt.Sprintf("  peak %.0f", m.frame.Peak)
	}
	line = infoStyle.Render(line + "  engine " + state)
	if m.err != nil {
		line += "  " + errorStyle.Render(m.err.Error())
	}
	return line
}

// levels maps values to bar heights in [0, 1].
func (m Model) levels(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if m.decibels {
			v = (analysis.Decibel(v) - analysis.MinDecibel) / -analysis.MinDecibel
		}
		out[i] = math.Min(math.Max(v, 0), 1)
	}
	return out
}

// downsample reduces values to cols columns, each the maximum of its group.
// A short or missing values slice reads as zeros.
func downsample(values []float64, n, cols int) []float64 {
	out := make([]float64, cols)
	if cols == 0 {
		return out
	}
	for j := range out {
		lo, hi := j*n/cols, (j+1)*n/cols
		for i := lo; i < hi && i < len(values); i++ {
			out[j] = math.Max(out[j], values[i])
		}
	}
	return out
}

// renderBars draws one column per level, rows lines tall, with eighth-block
// tops.
func renderBars(levels []float64, rows int) string {
	var sb strings.Builder
	for r := 0; r < rows; r++ {
		floor := (rows - 1 - r) * 8
		for _, l := range levels {
			fill := int(math.Round(l*float64(rows*8))) - floor
			switch {
			case fill >= 8:
				sb.WriteRune('█')
			case fill <= 0:
				sb.WriteByte(' ')
			default:
				sb.WriteRune(partials[fill-1])
			}
		}
		if r < rows-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// axisLine places tick labels under their columns, skipping labels that
// would overlap the previous one.
func axisLine(ticks []analysis.Tick, n, cols int) string {
	line := []rune(strings.Repeat(" ", cols))
	next := 0
	for _, t := range ticks {
		col := t.Index * cols / n
		label := []rune(t.Label)
		if col < next || col+len(label) > cols {
			continue
		}
		copy(line[col:], label)
		next = col + len(label) + 1
	}
	return string(line)
}

func formatClock(ms int64) string {
	s := ms / 1000
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

// Run starts the visualizer on the alternate screen and blocks until the user
// quits or ctx is cancelled.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
