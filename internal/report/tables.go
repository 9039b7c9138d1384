package report

import (
	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	highlightRowStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "2", Dark: "10"}).
				Bold(true).
				PaddingLeft(1).PaddingRight(1)
)

// table wraps a lipgloss table and remembers highlighted rows.
type table struct {
	t         *lgtable.Table
	count     int
	highlight map[int]bool
}

func (t *table) Row(highlight bool, row ...string) {
	if highlight {
		t.highlight[t.count] = true
	}
	t.t.Row(row...)
	t.count++
}

func (t *table) Render() string { return t.t.Render() }

// newTable creates a bordered table. alignments apply per column, the last
// one repeating for the remaining columns.
func newTable(headers []string, alignments ...lipgloss.Position) *table {
	t := &table{highlight: make(map[int]bool)}
	t.t = lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			switch {
			case row < 0:
				s = headerRowStyle
			case t.highlight[row]:
				s = highlightRowStyle
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			} else if len(alignments) > 0 {
				alignment = alignments[len(alignments)-1]
			}
			return s.Align(alignment)
		})
	if len(headers) > 0 {
		t.t.Headers(headers...)
	}
	return t
}
