package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/other-side/backend/internal/model/chat"
	"github.com/zhouzirui/other-side/backend/internal/model/persona"
)

// Palette
var (
	colorPrimary = lipgloss.Color("#6C5CE7")
	colorAccent  = lipgloss.Color("#00B894")
	colorMuted   = lipgloss.Color("#95A5A6")
	colorDanger  = lipgloss.Color("#E53935")
)

var (
	titleStyle       = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	mutedStyle       = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)
	errorStyle       = lipgloss.NewStyle().Foreground(colorDanger).Bold(true)
	personaNameStyle = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	youStyle         = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimary).
			Padding(0, 1).
			Width(64)
)

func renderTopics(topics []string) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Choose a topic"))
	for i, topic := range topics {
		fmt.Fprintf(&b, "\n  %2d. %s", i+1, topic)
	}
	return b.String()
}

func renderPersonaCard(p persona.Persona, topic string) string {
	var b strings.Builder
	b.WriteString(personaNameStyle.Render(p.Name))
	fmt.Fprintf(&b, ", %d\n", p.Age)
	fmt.Fprintf(&b, "%s · %s\n", p.Occupation, p.Location)
	b.WriteString(mutedStyle.Render(p.OneLineSummary))
	fmt.Fprintf(&b, "\n\nOn %s: %s", topic, p.Stance)
	for _, belief := range p.CoreBeliefs {
		fmt.Fprintf(&b, "\n  • %s", belief)
	}
	return cardStyle.Render(b.String())
}

func renderMessage(m chat.ChatMessage, personaName string) string {
	if m.Role == chat.RoleUser {
		return youStyle.Render("You") + ": " + m.Content
	}
	return personaNameStyle.Render(personaName) + ": " + m.Content
}

func renderReflection(questions []string) string {
	if len(questions) == 0 {
		return mutedStyle.Render("No reflection questions this time.")
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Something to think about"))
	for i, q := range questions {
		fmt.Fprintf(&b, "\n  %d. %s", i+1, q)
	}
	return b.String()
}

func renderError(msg string) string {
	return errorStyle.Render("! " + msg)
}
