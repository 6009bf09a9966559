package client

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	scoreStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	citationStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	sourceBox     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

const separatorWidth = 40

func separator() string {
	return mutedStyle.Render(strings.Repeat("-", separatorWidth))
}

func formatScore(score float32) string {
	return scoreStyle.Render(fmt.Sprintf("%.3f", score))
}

// truncate shortens s to at most n runes with a trailing ellipsis.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// renderSources lists the documents an answer drew from.
func renderSources(sources []Source) string {
	if len(sources) == 0 {
		return ""
	}
	lines := []string{titleStyle.Render("Sources")}
	for i, s := range sources {
		lines = append(lines, fmt.Sprintf("%d. %s %s (%d fragments)", i+1, s.DocumentID, formatScore(s.Score), s.Fragments))
		if s.Preview != "" {
			lines = append(lines, "   "+mutedStyle.Render(truncate(s.Preview, 100)))
		}
	}
	return sourceBox.Render(strings.Join(lines, "\n"))
}

func renderCitation(c Citation) string {
	return fmt.Sprintf("%s %s #%d %s",
		citationStyle.Render(fmt.Sprintf("[%d]", c.Index)),
		c.DocumentID, c.SequenceIndex, formatScore(c.Score))
}
