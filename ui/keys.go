package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Pause    key.Binding
	Next     key.Binding
	Previous key.Binding
	Play     key.Binding
	Stop     key.Binding
	Up       key.Binding
	Down     key.Binding
	MoveUp   key.Binding
	MoveDown key.Binding
	Remove   key.Binding
	Faster   key.Binding
	Slower   key.Binding
	Longer   key.Binding
	Shorter  key.Binding
	Repeat   key.Binding
	Backend  key.Binding
	Voice    key.Binding
	Copy     key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Pause:    key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "play/pause")),
		Next:     key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next")),
		Previous: key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "previous")),
		Play:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "play selected")),
		Stop:     key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop")),
		Up:       key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("↑/k", "up")),
		Down:     key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("↓/j", "down")),
		MoveUp:   key.NewBinding(key.WithKeys("K", "shift+up"), key.WithHelp("K", "move up")),
		MoveDown: key.NewBinding(key.WithKeys("J", "shift+down"), key.WithHelp("J", "move down")),
		Remove:   key.NewBinding(key.WithKeys("d", "delete"), key.WithHelp("d", "remove")),
		Faster:   key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "faster")),
		Slower:   key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "slower")),
		Longer:   key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "longer crossfade")),
		Shorter:  key.NewBinding(key.WithKeys("["), key.WithHelp("[", "shorter crossfade")),
		Repeat:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "repeat mode")),
		Backend:  key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "local/remote")),
		Voice:    key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "next voice")),
		Copy:     key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy reference")),
		Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pause, k.Next, k.Previous, k.Stop, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Pause, k.Next, k.Previous, k.Play, k.Stop},
		{k.Up, k.Down, k.MoveUp, k.MoveDown, k.Remove},
		{k.Faster, k.Slower, k.Longer, k.Shorter, k.Repeat},
		{k.Backend, k.Voice, k.Copy, k.Help, k.Quit},
	}
}
