// Package tui renders alignment results for the terminal.
package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/logflow/ptalign/pkg/align"
	"github.com/logflow/ptalign/pkg/eventlog"
	"github.com/logflow/ptalign/pkg/ptree"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	codeStyle    = lipgloss.NewStyle().Background(lipgloss.Color("#1a1a1a")).Foreground(white).Padding(0, 1)
)

// Summary aggregates a conformance run.
type Summary struct {
	RunID       string
	Traces      int
	Variants    int
	Failed      int
	Perfect     int // traces with cost 0
	TotalCost   int64
	MeanFitness float64
	Output      string
	Duration    time.Duration
}

// Summarize aggregates per-trace results. Nil entries count as failed.
func Summarize(results []*align.Alignment, variants int) *Summary {
	s := &Summary{Traces: len(results), Variants: variants}
	var fitness float64
	for _, r := range results {
		if r == nil {
			s.Failed++
			continue
		}
		if r.Cost == 0 {
			s.Perfect++
		}
		s.TotalCost += int64(r.Cost)
		fitness += r.Fitness
	}
	if ok := s.Traces - s.Failed; ok > 0 {
		s.MeanFitness = fitness / float64(ok)
	}
	return s
}

// PrintSummary prints the results of a run.
func PrintSummary(w io.Writer, s *Summary) {
	fmt.Fprintln(w)
	if s.Failed == 0 {
		fmt.Fprintln(w, successStyle.Render("  ✓ ALIGNMENT COMPLETE"))
	} else {
		fmt.Fprintln(w, accentStyle.Render(fmt.Sprintf("  ✗ ALIGNMENT COMPLETE WITH %d FAILED TRACES", s.Failed)))
	}
	fmt.Fprintln(w)
	if s.RunID != "" {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Run:"), codeStyle.Render(s.RunID))
	}
	fmt.Fprintf(w, "  %s %s %s\n", mutedStyle.Render("Traces:"),
		titleStyle.Render(formatNumber(int64(s.Traces))),
		mutedStyle.Render(fmt.Sprintf("(%s variants)", formatNumber(int64(s.Variants)))))
	fmt.Fprintf(w, "  %s %s %s\n", mutedStyle.Render("Fitness:"),
		titleStyle.Render(fmt.Sprintf("%.4f", s.MeanFitness)),
		mutedStyle.Render(fmt.Sprintf("(%s perfectly fitting)", formatNumber(int64(s.Perfect)))))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Cost:"), titleStyle.Render(formatNumber(s.TotalCost)))
	if s.Output != "" {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Output:"), codeStyle.Render(s.Output))
	}
	if s.Duration > 0 {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Time:"), titleStyle.Render(formatDuration(s.Duration)))
	}
	fmt.Fprintln(w)
}

// PrintAlignment prints the moves of one alignment as a two-row table.
func PrintAlignment(w io.Writer, caseID string, a *align.Alignment) {
	fmt.Fprintf(w, "  %s %s %s\n", accentStyle.Render("▸"), titleStyle.Render(caseID),
		mutedStyle.Render(fmt.Sprintf("cost=%d fitness=%.4f", a.Cost, a.Fitness)))

	logRow := make([]string, len(a.Moves))
	modelRow := make([]string, len(a.Moves))
	for i, m := range a.Moves {
		model := m.ModelLabel()
		if m.IsSilent() {
			model = "τ"
		}
		width := max(lipgloss.Width(m.Log), lipgloss.Width(model))
		logRow[i] = pad(m.Log, width)
		modelRow[i] = pad(model, width)
		if !m.IsSync() && !m.IsSilent() {
			logRow[i] = accentStyle.Render(logRow[i])
			modelRow[i] = accentStyle.Render(modelRow[i])
		}
	}
	fmt.Fprintf(w, "    %s %s\n", mutedStyle.Render("log  "), strings.Join(logRow, " │ "))
	fmt.Fprintf(w, "    %s %s\n", mutedStyle.Render("model"), strings.Join(modelRow, " │ "))
}

// PrintVariants lists variants by case count.
func PrintVariants(w io.Writer, variants []*eventlog.Variant) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s\n", titleStyle.Render("VARIANTS"), mutedStyle.Render(fmt.Sprintf("(%d)", len(variants))))
	for _, v := range variants {
		acts := strings.Join(v.Activities, ", ")
		if acts == "" {
			acts = "<empty>"
		}
		fmt.Fprintf(w, "  %s  %s\n", titleStyle.Render(fmt.Sprintf("%6d", v.Count())), acts)
	}
	fmt.Fprintln(w)
}

// PrintTree prints a validated tree and its visible labels.
func PrintTree(w io.Writer, t *ptree.Tree) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s\n", successStyle.Render("✓"), codeStyle.Render(t.String()))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Nodes:"), titleStyle.Render(fmt.Sprint(t.Size())))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Leaves:"), titleStyle.Render(fmt.Sprint(len(t.Leaves()))))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Labels:"), strings.Join(t.Labels(), ", "))
	fmt.Fprintln(w)
}

func pad(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}
