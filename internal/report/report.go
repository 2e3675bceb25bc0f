// Package report summarizes the trigger ledger by calendar month.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/withObsrvr/seismic-trigger-catalog/internal/ledger"
)

// MonthLayout labels a month.
const MonthLayout = "2006-01"

// DefaultWidth is the bar width of the busiest month.
const DefaultWidth = 50

// MonthTotal is the number of files and triggers whose Start_Time falls in
// one UTC calendar month.
type MonthTotal struct {
	Month    time.Time
	Files    int
	Triggers int
}

// Label returns the month as YYYY-MM.
func (m MonthTotal) Label() string {
	return m.Month.Format(MonthLayout)
}

// MonthlyTotals groups rows by the month of Start and sums
// Number_of_Triggers. The result is ordered by month.
func MonthlyTotals(rows []ledger.Row) []MonthTotal {
	byMonth := make(map[time.Time]*MonthTotal)
	for _, r := range rows {
		start := r.Start.UTC()
		month := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
		t, ok := byMonth[month]
		if !ok {
			t = &MonthTotal{Month: month}
			byMonth[month] = t
		}
		t.Files++
		t.Triggers += r.Count
	}

	totals := make([]MonthTotal, 0, len(byMonth))
	for _, t := range byMonth {
		totals = append(totals, *t)
	}
	sort.Slice(totals, func(i, j int) bool {
		return totals[i].Month.Before(totals[j].Month)
	})
	return totals
}

// BarLength scales n against peak into at most width cells. Any non-zero
// count gets at least one cell.
func BarLength(n, peak, width int) int {
	if n <= 0 || peak <= 0 || width <= 0 {
		return 0
	}
	l := n * width / peak
	if l == 0 {
		l = 1
	}
	return l
}

// Render writes one bar per month to w, scaled so the busiest month spans
// width cells. Colors are used only when w is a terminal.
func Render(w io.Writer, totals []MonthTotal, width int) error {
	if width <= 0 {
		width = DefaultWidth
	}

	r := lipgloss.NewRenderer(w)
	title := r.NewStyle().Bold(true)
	label := r.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	bar := r.NewStyle().Foreground(lipgloss.Color("#3B82F6"))

	if len(totals) == 0 {
		_, err := fmt.Fprintln(w, "no ledger rows")
		return err
	}

	peak, sum := 0, 0
	for _, t := range totals {
		if t.Triggers > peak {
			peak = t.Triggers
		}
		sum += t.Triggers
	}

	var b strings.Builder
	b.WriteString(title.Render("Triggers per month"))
	b.WriteString("\n")
	for _, t := range totals {
		cells := strings.Repeat("█", BarLength(t.Triggers, peak, width))
		fmt.Fprintf(&b, "%s %s %d (%d files)\n",
			label.Render(t.Label()), bar.Render(fmt.Sprintf("%-*s", width, cells)), t.Triggers, t.Files)
	}
	fmt.Fprintf(&b, "total %d triggers in %d months\n", sum, len(totals))

	_, err := io.WriteString(w, b.String())
	return err
}
