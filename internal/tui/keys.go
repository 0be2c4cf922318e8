package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Toggle   key.Binding
	Stop     key.Binding
	Back     key.Binding
	Forward  key.Binding
	Faster   key.Binding
	Slower   key.Binding
	Decibels key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Toggle:   key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "play/pause")),
		Stop:     key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop")),
		Back:     key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←", "-5s")),
		Forward:  key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→", "+5s")),
		Faster:   key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "faster")),
		Slower:   key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "slower")),
		Decibels: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "linear/dB")),
		Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Back, k.Forward, k.Decibels, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.Stop},
		{k.Back, k.Forward},
		{k.Faster, k.Slower},
		{k.Decibels, k.Help, k.Quit},
	}
}
