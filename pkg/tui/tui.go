// Package tui provides the practice track parameter dialog
package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/james-see/practicetrack/pkg/practice"
)

// ErrCanceled is returned when the user dismisses the dialog
var ErrCanceled = errors.New("dialog canceled")

var (
	accent     = lipgloss.Color("#39FF14")
	highlight  = lipgloss.Color("#FFFF00")
	silverGray = lipgloss.Color("#C0C0C0")
	darkGray   = lipgloss.Color("#333333")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accent).
			Background(darkGray).
			Padding(0, 2).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(silverGray).
			PaddingLeft(2)

	focusedStyle = lipgloss.NewStyle().
			Foreground(accent).
			Bold(true).
			PaddingLeft(2)

	policyStyle = lipgloss.NewStyle().
			Foreground(highlight)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(1, 2)
)

const (
	fieldDuplicates = iota
	fieldSilence
	fieldPolicy
	fieldCount
)

// Model is the dialog state
type Model struct {
	inputs   []textinput.Model
	policies []practice.GapPolicy
	policy   int
	focus    int
	err      error
	result   *practice.Options
	canceled bool
}

// New creates a dialog prefilled with initial
func New(initial practice.Options) Model {
	m := Model{
		inputs: []textinput.Model{
			newInput("Number of duplicates: ", initial.DuplicateCount),
			newInput("Bars of silence between: ", initial.SilenceBars),
		},
		policies: practice.GapPolicies(),
	}
	for i, p := range m.policies {
		if p == initial.Gaps {
			m.policy = i
		}
	}
	m.inputs[0].Focus()
	return m
}

func newInput(prompt string, value int) textinput.Model {
	input := textinput.New()
	input.Prompt = prompt
	input.CharLimit = 6
	input.SetValue(strconv.Itoa(value))
	input.CursorEnd()
	return input
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m.updateInputs(msg)
	}

	switch key.String() {
	case "esc", "ctrl+c":
		m.canceled = true
		return m, tea.Quit
	case "tab", "down":
		m.setFocus((m.focus + 1) % fieldCount)
		return m, nil
	case "shift+tab", "up":
		m.setFocus((m.focus + fieldCount - 1) % fieldCount)
		return m, nil
	case "left", "right":
		if m.focus == fieldPolicy {
			step := 1
			if key.String() == "left" {
				step = len(m.policies) - 1
			}
			m.policy = (m.policy + step) % len(m.policies)
			return m, nil
		}
	case "enter":
		opts, err := ParseParams(m.inputs[fieldDuplicates].Value(), m.inputs[fieldSilence].Value(), m.policies[m.policy])
		if err != nil {
			m.err = err
			return m, nil
		}
		m.result = &opts
		return m, tea.Quit
	}
	return m.updateInputs(msg)
}

func (m Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.focus >= len(m.inputs) {
		return m, nil
	}
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	m.err = nil
	return m, cmd
}

func (m *Model) setFocus(i int) {
	m.focus = i
	for j := range m.inputs {
		if j == i {
			m.inputs[j].Focus()
		} else {
			m.inputs[j].Blur()
		}
	}
}

// Result returns the accepted options; ok is false until the user submits
func (m Model) Result() (practice.Options, bool) {
	if m.result == nil {
		return practice.Options{}, false
	}
	return *m.result, true
}

// Canceled reports whether the user dismissed the dialog
func (m Model) Canceled() bool {
	return m.canceled
}

// View implements tea.Model
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" CREATE PRACTICE TRACK "))
	s.WriteString("\n\n")
	for i, input := range m.inputs {
		style := labelStyle
		if i == m.focus {
			style = focusedStyle
		}
		s.WriteString(style.Render(input.View()))
		s.WriteString("\n")
	}

	style := labelStyle
	if m.focus == fieldPolicy {
		style = focusedStyle
	}
	s.WriteString(style.Render(fmt.Sprintf("Silence placement: ◂ %s ▸", policyStyle.Render(string(m.policies[m.policy])))))
	s.WriteString("\n")

	if m.err != nil {
		s.WriteString("\n")
		s.WriteString(errorStyle.Render("✗ " + m.err.Error()))
		s.WriteString("\n")
	}

	s.WriteString(helpStyle.Render("tab: next field • ←/→: placement • enter: create • esc: cancel"))

	return boxStyle.Render(s.String())
}

// ParseParams converts the dialog's text fields into options. Both counts
// must be whole numbers of zero or more.
func ParseParams(duplicates, silence string, policy practice.GapPolicy) (practice.Options, error) {
	n, err := strconv.Atoi(strings.TrimSpace(duplicates))
	if err != nil {
		return practice.Options{}, fmt.Errorf("%w: number of duplicates %q is not a whole number", practice.ErrInvalidParameter, duplicates)
	}
	s, err := strconv.Atoi(strings.TrimSpace(silence))
	if err != nil {
		return practice.Options{}, fmt.Errorf("%w: bars of silence %q is not a whole number", practice.ErrInvalidParameter, silence)
	}
	opts := practice.Options{DuplicateCount: n, SilenceBars: s, Gaps: policy}
	if err := opts.Validate(); err != nil {
		return practice.Options{}, err
	}
	return opts, nil
}

// Run shows the dialog and returns the accepted options, or ErrCanceled
func Run(initial practice.Options) (practice.Options, error) {
	final, err := tea.NewProgram(New(initial)).Run()
	if err != nil {
		return practice.Options{}, err
	}
	m, ok := final.(Model)
	if !ok || m.Canceled() {
		return practice.Options{}, ErrCanceled
	}
	opts, ok := m.Result()
	if !ok {
		return practice.Options{}, ErrCanceled
	}
	return opts, nil
}
