package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Quit     key.Binding
	Open     key.Binding
	Submit   key.Binding
	Cancel   key.Binding
	Model    key.Binding
	Debug    key.Binding
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Home     key.Binding
	End      key.Binding
}

var keys = keyMap{
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Open:     key.NewBinding(key.WithKeys("o", "/"), key.WithHelp("o", "open pdf")),
	Submit:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "upload")),
	Cancel:   key.NewBinding(key.WithKeys("esc", "x"), key.WithHelp("x", "cancel")),
	Model:    key.NewBinding(key.WithKeys("m", "tab"), key.WithHelp("m", "model")),
	Debug:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "debug")),
	Up:       key.NewBinding(key.WithKeys("up", "k")),
	Down:     key.NewBinding(key.WithKeys("down", "j")),
	PageUp:   key.NewBinding(key.WithKeys("pgup", "ctrl+u")),
	PageDown: key.NewBinding(key.WithKeys("pgdown", "ctrl+d")),
	Home:     key.NewBinding(key.WithKeys("home", "g")),
	End:      key.NewBinding(key.WithKeys("end", "G")),
}
