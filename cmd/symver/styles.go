package main

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	styleHeader = lipgloss.NewStyle().Bold(true)
	styleLatest = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	styleCopied = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	styleLinked = lipgloss.NewStyle().Faint(true)
	styleWarn   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleError  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// actionStyle colours a catalog action in listings.
func actionStyle(action string) lipgloss.Style {
	switch action {
	case "copy":
		return styleCopied
	case "link":
		return styleLinked
	default:
		return lipgloss.NewStyle()
	}
}
