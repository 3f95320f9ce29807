package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/lazyjit/engine"
	"github.com/wippyai/lazyjit/host"
	"github.com/wippyai/lazyjit/ir"
	"github.com/wippyai/lazyjit/orc"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#1E1E2E")).
			Background(lipgloss.Color("#F9E2AF")).
			Padding(0, 1)

	nameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1"))
	kindStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#89B4FA"))
	cursorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F9E2AF"))
	okStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#A6E3A1"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
)

type replOptions struct {
	*rootOptions
	Set bool
}

func newReplCommand(root *rootOptions) *cobra.Command {
	opts := &replOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "repl <module.yaml>...",
		Short: "Pick functions to call interactively and watch them compile",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
				return fmt.Errorf("repl needs an interactive terminal; use run instead")
			}
			p := tea.NewProgram(newReplModel(opts, args), tea.WithAltScreen())
			_, err := p.Run()
			return err
		},
	}

	cmd.Flags().BoolVar(&opts.Set, "set", false, "add all modules as one module set")

	return cmd
}

// lockedBuffer collects host output written from call goroutines.
type lockedBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// drain returns everything written so far and empties the buffer.
func (b *lockedBuffer) drain() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.buf.String()
	b.buf.Reset()
	return s
}

type replState int

const (
	stateSelectFunc replState = iota
	stateInputArgs
	stateShowResult
)

type funcInfo struct {
	name   string
	module string
	params []ir.Type
	result ir.Type
}

type replModel struct {
	err      error
	eng      *engine.Engine
	opts     *replOptions
	output   *lockedBuffer
	files    []string
	result   string
	printed  string
	funcs    []funcInfo
	inputs   []textinput.Model
	stats    orc.CompileOnDemandStats
	selected int
	focusIdx int
	state    replState
}

func newReplModel(opts *replOptions, files []string) *replModel {
	return &replModel{
		opts:   opts,
		files:  files,
		output: &lockedBuffer{},
		state:  stateSelectFunc,
	}
}

type loadedMsg struct {
	err   error
	eng   *engine.Engine
	funcs []funcInfo
}

type callResultMsg struct {
	err     error
	result  string
	printed string
	stats   orc.CompileOnDemandStats
}

func (m *replModel) Init() tea.Cmd {
	return m.load
}

func (m *replModel) load() tea.Msg {
	ctx := context.Background()

	mods, err := loadModules(m.files)
	if err != nil {
		return loadedMsg{err: err}
	}

	var funcs []funcInfo
	for _, mod := range mods {
		for _, f := range mod.Functions {
			if f.IsDeclaration() || f.Linkage == ir.Internal {
				continue
			}
			funcs = append(funcs, funcInfo{name: f.Name, module: mod.Name, params: f.Params, result: f.Result})
		}
	}
	sort.Slice(funcs, func(i, j int) bool { return funcs[i].name < funcs[j].name })

	cfg := m.opts.config()
	cfg.Host = host.Process(m.output)
	eng, err := engine.New(ctx, cfg)
	if err != nil {
		return loadedMsg{err: err}
	}
	if _, err := addModules(ctx, eng, mods, m.opts.Set); err != nil {
		eng.Close(ctx)
		return loadedMsg{err: err}
	}
	return loadedMsg{eng: eng, funcs: funcs}
}

func (m *replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if cmd, done := m.handleKey(msg.String()); done {
			return m, cmd
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.eng = msg.eng
		m.funcs = msg.funcs
		m.stats = m.eng.Stats()

	case callResultMsg:
		m.result = msg.result
		m.printed = msg.printed
		m.err = msg.err
		m.stats = msg.stats
		m.state = stateShowResult
	}

	if m.state != stateInputArgs {
		return m, nil
	}
	cmds := make([]tea.Cmd, len(m.inputs))
	for i := range m.inputs {
		m.inputs[i], cmds[i] = m.inputs[i].Update(msg)
	}
	return m, tea.Batch(cmds...)
}

// handleKey applies a navigation key. It reports done when the key was
// consumed and must not reach the argument inputs.
func (m *replModel) handleKey(key string) (tea.Cmd, bool) {
	if key == "ctrl+c" || (key == "q" && m.state != stateInputArgs) {
		if m.eng != nil {
			m.eng.Close(context.Background())
		}
		return tea.Quit, true
	}

	switch m.state {
	case stateSelectFunc:
		switch key {
		case "up", "k":
			m.selected = max(m.selected-1, 0)
		case "down", "j":
			m.selected = min(m.selected+1, max(len(m.funcs)-1, 0))
		case "enter":
			if len(m.funcs) == 0 {
				return nil, true
			}
			m.prepareInputs()
			if len(m.inputs) == 0 {
				return m.callFunction, true
			}
			m.state = stateInputArgs
		}
		return nil, true

	case stateInputArgs:
		switch key {
		case "enter":
			return m.callFunction, true
		case "esc":
			m.state = stateSelectFunc
			m.inputs = nil
			return nil, true
		case "tab":
			if len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}
			return nil, true
		}
		return nil, false

	case stateShowResult:
		if key == "enter" || key == "esc" {
			m.resetResult()
		}
		return nil, true
	}
	return nil, false
}

func (m *replModel) resetResult() {
	m.state = stateSelectFunc
	m.result = ""
	m.printed = ""
	m.err = nil
}

func (m *replModel) prepareInputs() {
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, len(f.params))
	for i, p := range f.params {
		ti := textinput.New()
		ti.Placeholder = p.String()
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 24
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *replModel) callFunction() tea.Msg {
	ctx := context.Background()
	f := m.funcs[m.selected]

	args := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		args[i] = strings.TrimSpace(input.Value())
	}
	words, err := parseArgs(args)
	if err != nil {
		return callResultMsg{err: err, stats: m.eng.Stats()}
	}

	sym, ok, err := m.eng.FindSymbol(ctx, f.name)
	if err == nil && !ok {
		err = fmt.Errorf("%s is not exported", f.name)
	}
	if err != nil {
		return callResultMsg{err: err, stats: m.eng.Stats()}
	}
	addr, err := sym.Address(ctx)
	if err != nil {
		return callResultMsg{err: err, stats: m.eng.Stats()}
	}

	results, err := m.eng.Call(ctx, addr, words...)
	msg := callResultMsg{err: err, printed: m.output.drain(), stats: m.eng.Stats()}
	if err == nil {
		msg.result = "(void)"
		if len(results) > 0 && f.result != ir.Void {
			msg.result = formatResult(f.result, results[0])
		}
	}
	return msg
}

func (m *replModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return failStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.eng == nil {
		return "Loading modules..."
	}

	var b strings.Builder

	b.WriteString(headerStyle.Render("lazyjit"))
	b.WriteString(" ")
	b.WriteString(strings.Join(m.files, " "))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("stubs %d • compiled %d • partitions %d",
		m.stats.Stubs, m.stats.Fired, m.stats.Partitions)))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		if len(m.funcs) == 0 {
			b.WriteString("No exported functions.\n")
		} else {
			b.WriteString("Select a function to call:\n\n")
		}
		for i, f := range m.funcs {
			if i == m.selected {
				b.WriteString(cursorStyle.Render("> " + formatFunc(f)))
			} else {
				b.WriteString("  " + formatFunc(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", nameStyle.Render(f.name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(kindStyle.Render(f.params[i].String()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", nameStyle.Render(f.name)))
		if m.printed != "" {
			b.WriteString(m.printed)
			if !strings.HasSuffix(m.printed, "\n") {
				b.WriteString("\n")
			}
		}
		if m.err != nil {
			b.WriteString(failStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(okStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(dimStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func formatFunc(f funcInfo) string {
	params := make([]string, len(f.params))
	for i, p := range f.params {
		params[i] = kindStyle.Render(p.String())
	}
	result := ""
	if f.result != ir.Void {
		result = " -> " + kindStyle.Render(f.result.String())
	}
	return nameStyle.Render(f.name) + "(" + strings.Join(params, ", ") + ")" + result +
		dimStyle.Render("  "+f.module)
}
