package emulator

import (
	"EyeWear/internal/input"
	"EyeWear/internal/mode"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	modeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

const (
	historySize  = 8
	refreshEvery = 250 * time.Millisecond
)

type refreshMsg struct{}

type keyMap struct {
	Submit key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Submit: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
	Quit:   key.NewBinding(key.WithKeys("ctrl+c", "esc"), key.WithHelp("esc", "quit")),
}

// Emulator — терминальный заменитель наушника: команды оператора уходят
// в контроллер как события ввода. Реализует input.Source.
type Emulator struct {
	out    chan input.Input
	mode   func() mode.Mode
	logger *zap.SugaredLogger
	opts   []tea.ProgramOption
}

func New(current func() mode.Mode, logger *zap.SugaredLogger, opts ...tea.ProgramOption) *Emulator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if current == nil {
		current = func() mode.Mode { return mode.Idle }
	}
	return &Emulator{out: make(chan input.Input, 16), mode: current, logger: logger, opts: opts}
}

func (e *Emulator) Events() <-chan input.Input { return e.out }

// Run показывает интерфейс до выхода оператора или отмены ctx.
func (e *Emulator) Run(ctx context.Context) error {
	defer close(e.out)
	opts := append([]tea.ProgramOption{tea.WithContext(ctx)}, e.opts...)
	_, err := tea.NewProgram(newModel(e), opts...).Run()
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, tea.ErrProgramKilled) {
			return context.Cause(ctx)
		}
		return fmt.Errorf("emulator: %w", err)
	}
	e.logger.Infow("Emulator closed by operator")
	return nil
}

func (e *Emulator) publish(in input.Input) bool {
	select {
	case e.out <- in:
		return true
	default:
		e.logger.Warnw("Emulator event dropped, controller busy", "kind", in.Kind.String())
		return false
	}
}

type model struct {
	em      *Emulator
	input   textinput.Model
	history []string
	status  string
	failed  bool
}

func newModel(e *Emulator) model {
	inp := textinput.New()
	inp.Prompt = ""
	inp.Placeholder = "cc"
	inp.CharLimit = 32
	inp.Focus()
	return model{em: e, input: inp, status: "Type a command and press Enter. q to quit."}
}

func refresh() tea.Cmd {
	return tea.Tick(refreshEvery, func(time.Time) tea.Msg { return refreshMsg{} })
}

func (m model) Init() tea.Cmd { return tea.Batch(refresh(), textinput.Blink) }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case refreshMsg:
		return m, refresh()
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Submit):
			return m.submit()
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) submit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	m.input.Reset()
	if line == "" {
		return m, nil
	}
	switch strings.ToLower(line) {
	case "q", "quit", "exit":
		return m, tea.Quit
	}

	in, err := input.ParseLine(line)
	if err != nil {
		m.failed = true
		m.status = fmt.Sprintf("Unknown command %q, expected one of: %s", line, mode.CommandHelp())
		return m, nil
	}
	in.At = time.Now()
	m.failed = false
	if !m.em.publish(in) {
		m.failed = true
		m.status = "Controller busy, command dropped"
		return m, nil
	}
	label := in.Action.String()
	if in.Kind == input.Press {
		label = in.Event.String()
	}
	m.status = "Sent " + label
	m.history = append(m.history, fmt.Sprintf("[%s] %s", m.em.mode(), line))
	if len(m.history) > historySize {
		m.history = m.history[len(m.history)-historySize:]
	}
	return m, nil
}

// Prompt — строка приглашения с текущим режимом.
func Prompt(current mode.Mode) string {
	return fmt.Sprintf("[%s] Enter action (%s): ", current, mode.CommandHelp())
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("EyeWear earbud emulator"))
	b.WriteString("  mode: ")
	b.WriteString(modeStyle.Render(m.em.mode().String()))
	b.WriteString("\n\n")
	for _, h := range m.history {
		b.WriteString(statusStyle.Render(h))
		b.WriteString("\n")
	}
	if len(m.history) > 0 {
		b.WriteString("\n")
	}
	b.WriteString(promptStyle.Render(Prompt(m.em.mode())))
	b.WriteString(m.input.View())
	b.WriteString("\n")
	if m.failed {
		b.WriteString(errorStyle.Render(m.status))
	} else {
		b.WriteString(statusStyle.Render(m.status))
	}
	b.WriteString("\n")
	return b.String()
}
