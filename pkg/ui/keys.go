package ui

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	ToggleAudio key.Binding
	ToggleVideo key.Binding
	Chat        key.Binding
	Send        key.Binding
	Cancel      key.Binding
	Quit        key.Binding
}

// DefaultKeyMap provides the default session keybindings.
var DefaultKeyMap = KeyMap{
	ToggleAudio: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "audio on/off")),
	ToggleVideo: key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "video on/off")),
	Chat:        key.NewBinding(key.WithKeys("c", "/"), key.WithHelp("c", "chat")),
	Send:        key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
	Cancel:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "stop")),
}
