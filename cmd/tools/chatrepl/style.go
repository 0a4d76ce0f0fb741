package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/retailbot/support-widget/internal/model/chat"
	"github.com/retailbot/support-widget/internal/render"
)

var (
	brand   = lipgloss.Color("#4F46E5")
	muted   = lipgloss.Color("#6B7280")
	warning = lipgloss.Color("#F59E0B")
)

type styles struct {
	user   lipgloss.Style
	bot    lipgloss.Style
	bold   lipgloss.Style
	italic lipgloss.Style
	bullet lipgloss.Style
	status lipgloss.Style
	hint   lipgloss.Style
}

func newStyles() styles {
	return styles{
		user:   lipgloss.NewStyle().Bold(true).Foreground(brand),
		bot:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#10B981")),
		bold:   lipgloss.NewStyle().Bold(true),
		italic: lipgloss.NewStyle().Italic(true).Foreground(muted),
		bullet: lipgloss.NewStyle().PaddingLeft(2),
		status: lipgloss.NewStyle().Foreground(muted),
		hint:   lipgloss.NewStyle().Foreground(warning),
	}
}

// formatMessage renders one log entry line by line using its markup.
func (s styles) formatMessage(name string, msg chat.Message) string {
	var b strings.Builder
	if msg.IsUser() {
		b.WriteString(s.user.Render("You"))
	} else {
		b.WriteString(s.bot.Render(name))
	}
	b.WriteString("\n")

	for _, line := range render.Lines(msg.Content) {
		switch line.Kind {
		case render.Bold:
			b.WriteString(s.bold.Render(line.Text))
		case render.Italic:
			b.WriteString(s.italic.Render(line.Text))
		case render.Bullet:
			b.WriteString(s.bullet.Render(render.BulletGlyph + line.Text))
		default:
			b.WriteString(line.Text)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (s styles) formatStatus(state chat.State) string {
	return s.status.Render("[" + state.Status() + "]")
}
