package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"

	"github.com/dmelnik/lumen/pkg/generation"
)

var (
	badgeIdle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Render("· idle")
	badgeLoading = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Render("… generating")
	badgeDone    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render("✓ done")
	badgeError   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗ error")

	headingStyle = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func statusBadge(s generation.Status) string {
	switch s {
	case generation.StatusLoading:
		return badgeLoading
	case generation.StatusDone:
		return badgeDone
	case generation.StatusError:
		return badgeError
	default:
		return badgeIdle
	}
}

// printHTML writes text with HTML syntax highlighting, falling back to plain
// output when the highlighter cannot handle it.
func printHTML(w io.Writer, text string) {
	if err := quick.Highlight(w, text, "html", "terminal256", "monokai"); err != nil {
		fmt.Fprint(w, text)
	}
	fmt.Fprintln(w)
}

func printSources(w io.Writer, sources []generation.GroundingSource, queries []string) {
	if len(sources) == 0 && len(queries) == 0 {
		return
	}
	fmt.Fprintln(w)
	if len(queries) > 0 {
		fmt.Fprintln(w, headingStyle.Render("Search queries"))
		for _, q := range queries {
			fmt.Fprintf(w, "  %s\n", dimStyle.Render(q))
		}
	}
	if len(sources) > 0 {
		fmt.Fprintln(w, headingStyle.Render("Sources"))
		for _, s := range sources {
			title := s.Title
			if title == "" {
				title = s.URI
			}
			fmt.Fprintf(w, "  %s — %s\n", title, dimStyle.Render(s.URI))
		}
	}
}

func formatDuration(d time.Duration) string {
	return d.Round(100 * time.Millisecond).String()
}
