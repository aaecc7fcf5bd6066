package ui

import "charm.land/bubbles/v2/key"

type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Pick   key.Binding
	Submit key.Binding
	Next   key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Pick: key.NewBinding(
		key.WithKeys("1", "2", "3", "4", "a", "b", "c", "d"),
		key.WithHelp("1-4", "choose"),
	),
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "answer"),
	),
	Next: key.NewBinding(
		key.WithKeys("enter", "space", "n"),
		key.WithHelp("enter", "next question"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// pickIndex maps a direct-pick key to a 0-based choice.
func pickIndex(k string) (int, bool) {
	switch k {
	case "1", "a":
		return 0, true
	case "2", "b":
		return 1, true
	case "3", "c":
		return 2, true
	case "4", "d":
		return 3, true
	}
	return 0, false
}
