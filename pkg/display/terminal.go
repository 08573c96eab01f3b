package display

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/itohio/gopulse/pkg/hrv"
	"github.com/itohio/gopulse/pkg/menu"
)

// ── Terminal ─────────────────────────────────────────────────────────

// Terminal lays out the latest view with lipgloss.
type Terminal struct {
	view  menu.View
	width int
}

// NewTerminal creates a terminal renderer.
func NewTerminal() *Terminal {
	return &Terminal{width: 40}
}

// Render stores v for the next frame.
func (t *Terminal) Render(v menu.View) error {
	t.view = v
	return nil
}

// SetWidth sets the layout width in cells.
func (t *Terminal) SetWidth(w int) {
	t.width = max(w-2, 32)
}

// ── Color palette ────────────────────────────────────────────────────

var (
	colorTitleFg  = lipgloss.Color("51")
	colorBorder   = lipgloss.Color("62")
	colorSelected = lipgloss.Color("213")
	colorLabel    = lipgloss.Color("252")
	colorDim      = lipgloss.Color("240")
	colorFooterBg = lipgloss.Color("235")
	colorPulse    = lipgloss.Color("203")
	colorOk       = lipgloss.Color("78")
)

var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// ── Layout ───────────────────────────────────────────────────────────

// String renders the stored view.
func (t *Terminal) String() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorTitleFg).
		Render("GOPULSE")

	body := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Width(t.width).
		Align(lipgloss.Center).
		Padding(1, 1).
		Render(strings.Join(Lines(t.view), "\n"))

	sections := []string{title, body}
	if len(t.view.Trace) > 0 {
		sections = append(sections, sparkline(t.view.Trace, t.width))
	}
	sections = append(sections, t.footer())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (t *Terminal) footer() string {
	return lipgloss.NewStyle().
		Foreground(colorDim).
		Background(colorFooterBg).
		Width(t.width).
		Render(" ↑/↓ select · enter confirm · q quit")
}

// Lines returns the text lines of a page.
func Lines(v menu.View) []string {
	switch v.Page {
	case menu.Main:
		lines := make([]string, len(v.Options))
		for i, opt := range v.Options {
			if i == v.Selection {
				lines[i] = lipgloss.NewStyle().Bold(true).Foreground(colorSelected).Render("[" + opt + "]")
			} else {
				lines[i] = lipgloss.NewStyle().Foreground(colorLabel).Render(opt)
			}
		}
		return lines

	case menu.HeartRate:
		if v.Measuring {
			return []string{"MEASURING", "", "Lightly hold the", "sensor"}
		}
		bpm := lipgloss.NewStyle().Bold(true).Foreground(colorPulse).Render(fmt.Sprintf("%d BPM", v.HeartRate))
		return []string{bpm, "Press the button", "to stop"}

	case menu.HRVIntro:
		return []string{"Start", "HRV analysis", "by pressing", "the button ->"}

	case menu.HRVResult:
		switch {
		case len(v.Result) > 0:
			return fieldLines(v.Result)
		case v.NoResult:
			return []string{"Not enough beats", "Press the button", "to return"}
		default:
			secs := int((v.Remaining + time.Second - 1) / time.Second)
			return []string{"Collecting data,", "please wait...", fmt.Sprintf("%ds remaining", secs)}
		}

	case menu.History:
		if v.NoData {
			return []string{"no data yet :("}
		}
		return fieldLines(v.History)
	}
	return nil
}

func fieldLines(fields []hrv.Field) []string {
	lines := make([]string, len(fields))
	for i, f := range fields {
		value := lipgloss.NewStyle().Foreground(colorOk).Render(fmt.Sprint(f.Value))
		lines[i] = fmt.Sprintf("%s: %s", strings.ToUpper(f.Label), value)
	}
	return lines
}

// sparkline draws the newest width trace values as block characters scaled
// to the trace's own range.
func sparkline(values []uint16, width int) string {
	if len(values) > width {
		values = values[len(values)-width:]
	}
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	span := float64(hi - lo)
	if span == 0 {
		span = 1
	}

	var sb strings.Builder
	for _, v := range values {
		idx := int(float64(v-lo) / span * float64(len(sparkBlocks)-1))
		sb.WriteRune(sparkBlocks[idx])
	}
	return lipgloss.NewStyle().Foreground(colorPulse).Render(sb.String())
}

// ── Messages ─────────────────────────────────────────────────────────

type tickMsg time.Time

// ── Model ────────────────────────────────────────────────────────────

// Model is the BubbleTea program that is the main loop: every tick runs one
// engine step and renders its view. Keys are the input boundary.
type Model struct {
	ctx      context.Context
	engine   Engine
	term     *Terminal
	extra    Display
	interval time.Duration
	confirm  *Debouncer
	now      func() time.Time
}

// NewModel creates the main loop model. extra, if not nil, receives every
// view as well (e.g. a Hub).
func NewModel(ctx context.Context, engine Engine, term *Terminal, extra Display, interval, debounce time.Duration) Model {
	return Model{
		ctx:      ctx,
		engine:   engine,
		term:     term,
		extra:    extra,
		interval: interval,
		confirm:  &Debouncer{Interval: debounce},
		now:      time.Now,
	}
}

// ── Commands ─────────────────────────────────────────────────────────

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// ── Init / Update ────────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	return m.tickCmd()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k", "left", "h":
			m.engine.Rotate(-1)
		case "down", "j", "right", "l":
			m.engine.Rotate(1)
		case "enter", " ":
			if m.confirm.Allow(m.now()) {
				m.engine.Confirm(m.ctx)
			}
		}

	case tea.WindowSizeMsg:
		m.term.SetWidth(msg.Width)

	case tickMsg:
		if m.ctx.Err() != nil {
			return m, tea.Quit
		}
		v := m.engine.Step(m.ctx)
		_ = m.term.Render(v)
		if m.extra != nil {
			if err := m.extra.Render(v); err != nil {
				log.Printf("Render failed: %v", err)
			}
		}
		return m, m.tickCmd()
	}

	return m, nil
}

// ── View ─────────────────────────────────────────────────────────────

func (m Model) View() string {
	return m.term.String()
}
