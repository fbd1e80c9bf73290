package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings of the reconstruction picker
type KeyMap struct {
	Up       key.Binding
	Down     key.Binding
	Select   key.Binding
	Raise    key.Binding
	Lower    key.Binding
	Coarser  key.Binding
	Finer    key.Binding
	Snapshot key.Binding
	Quit     key.Binding
}

// DefaultKeyMap returns the default key bindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "load"),
		),
		Raise: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "raise min cc"),
		),
		Lower: key.NewBinding(
			key.WithKeys("-"),
			key.WithHelp("-", "lower min cc"),
		),
		Coarser: key.NewBinding(
			key.WithKeys("b"),
			key.WithHelp("b", "bin +1"),
		),
		Finer: key.NewBinding(
			key.WithKeys("B"),
			key.WithHelp("B", "bin -1"),
		),
		Snapshot: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "snapshot"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Select, k.Raise, k.Lower, k.Coarser, k.Finer, k.Snapshot, k.Quit}
}

// FullHelp implements help.KeyMap
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
