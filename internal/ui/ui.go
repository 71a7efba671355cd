// Package ui provides terminal rendering helpers for the CLI.
package ui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	accentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// RenderAccent highlights a primary label.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderSuccess renders a success marker.
func RenderSuccess(s string) string { return successStyle.Render(s) }

// RenderWarn renders a warning.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderError renders an error marker.
func RenderError(s string) string { return errorStyle.Render(s) }

// RenderMuted renders secondary detail text.
func RenderMuted(s string) string { return mutedStyle.Render(s) }
