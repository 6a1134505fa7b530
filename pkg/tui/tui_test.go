package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/james-see/practicetrack/pkg/practice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func press(t *testing.T, m Model, keys ...tea.KeyMsg) Model {
	t.Helper()
	for _, k := range keys {
		next, _ := m.Update(k)
		var ok bool
		m, ok = next.(Model)
		require.True(t, ok)
	}
	return m
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

var (
	enter     = tea.KeyMsg{Type: tea.KeyEnter}
	tab       = tea.KeyMsg{Type: tea.KeyTab}
	right     = tea.KeyMsg{Type: tea.KeyRight}
	esc       = tea.KeyMsg{Type: tea.KeyEsc}
	backspace = tea.KeyMsg{Type: tea.KeyBackspace}
)

func TestParseParams(t *testing.T) {
	tests := []struct {
		name       string
		duplicates string
		silence    string
		want       practice.Options
		wantErr    bool
	}{
		{"defaults", "1", "1", practice.Options{DuplicateCount: 1, SilenceBars: 1, Gaps: practice.GapTrailing}, false},
		{"spaces", " 3 ", "0", practice.Options{DuplicateCount: 3, SilenceBars: 0, Gaps: practice.GapTrailing}, false},
		{"not a number", "two", "1", practice.Options{}, true},
		{"fraction", "2", "1.5", practice.Options{}, true},
		{"negative", "-1", "1", practice.Options{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseParams(tt.duplicates, tt.silence, practice.GapTrailing)
			if tt.wantErr {
				assert.ErrorIs(t, err, practice.ErrInvalidParameter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDialogSubmitsDefaults(t *testing.T) {
	m := press(t, New(practice.DefaultOptions()), enter)

	opts, ok := m.Result()
	require.True(t, ok)
	assert.Equal(t, practice.DefaultOptions(), opts)
	assert.False(t, m.Canceled())
}

func TestDialogEditsFields(t *testing.T) {
	m := New(practice.DefaultOptions())
	m = press(t, m, backspace, runes("4"), tab, backspace, runes("2"), tab, right, enter)

	opts, ok := m.Result()
	require.True(t, ok)
	assert.Equal(t, practice.Options{DuplicateCount: 4, SilenceBars: 2, Gaps: practice.GapBetween}, opts)
}

func TestDialogBadInputStaysOpen(t *testing.T) {
	m := press(t, New(practice.DefaultOptions()), runes("x"), enter)

	_, ok := m.Result()
	assert.False(t, ok)
	assert.False(t, m.Canceled())
	assert.Contains(t, m.View(), "not a whole number")
}

func TestDialogCancel(t *testing.T) {
	m := press(t, New(practice.DefaultOptions()), esc)

	assert.True(t, m.Canceled())
	_, ok := m.Result()
	assert.False(t, ok)
}

func TestDialogStartsOnConfiguredPolicy(t *testing.T) {
	m := New(practice.Options{DuplicateCount: 2, SilenceBars: 1, Gaps: practice.GapEvery})
	assert.Contains(t, m.View(), "every")
}
