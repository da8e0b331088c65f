package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Luchitomori/frostwire-desktop/internal/util"
)

// row is one rendered line of a result list.
type row struct {
	name  string
	seeds int
	size  int64
}

// listModel is a scrollable list of rows with a cursor.
type listModel struct {
	rows   []row
	cursor int
	offset int
	height int
}

func (l *listModel) pageSize() int {
	if l.height > 0 {
		return l.height
	}
	return 1
}

func (l *listModel) setRows(rows []row) {
	l.rows = rows
	l.normalize()
}

func (l *listModel) normalize() {
	rows := l.pageSize()
	if len(l.rows) == 0 {
		l.cursor = 0
		l.offset = 0
		return
	}
	l.cursor = min(max(l.cursor, 0), len(l.rows)-1)
	if l.cursor < l.offset {
		l.offset = l.cursor
	}
	if l.cursor >= l.offset+rows {
		l.offset = l.cursor - rows + 1
	}
	l.offset = min(max(l.offset, 0), max(len(l.rows)-rows, 0))
}

func (l *listModel) moveUp() {
	l.cursor--
	l.normalize()
}

func (l *listModel) moveDown() {
	l.cursor++
	l.normalize()
}

func (l *listModel) pageUp() {
	l.cursor -= l.pageSize()
	l.normalize()
}

func (l *listModel) pageDown() {
	l.cursor += l.pageSize()
	l.normalize()
}

func (l *listModel) view(width int, empty string) string {
	if len(l.rows) == 0 {
		return padToWidth(helpStyle.Render("  "+empty), width) + "\n"
	}

	var sb strings.Builder
	l.normalize()
	rowWidth := max(width-selectedStyle.GetHorizontalFrameSize(), 12)
	end := min(l.offset+l.pageSize(), len(l.rows))
	for i := l.offset; i < end; i++ {
		sb.WriteString(renderRow(l.rows[i], rowWidth, i == l.cursor))
		sb.WriteString("\n")
	}
	if len(l.rows) > l.pageSize() {
		sb.WriteString(padToWidth(helpStyle.Render(
			fmt.Sprintf("  %d/%d", l.cursor+1, len(l.rows)),
		), width))
		sb.WriteString("\n")
	}
	return sb.String()
}

func renderRow(r row, rowWidth int, isSelected bool) string {
	nameWidth := max(12, rowWidth-24)
	name := fileStyle.Width(nameWidth).Render(util.TruncatePath(r.name, nameWidth))
	line := fmt.Sprintf("  %s  %s  %s",
		name,
		seedsStyle.Render(util.FormatSeeds(r.seeds)),
		sizeStyle.Render(util.FormatBytes(r.size)),
	)
	if isSelected {
		return selectedStyle.Render(padToWidth(line, rowWidth))
	}
	return normalStyle.Render(padToWidth(line, rowWidth))
}

func padToWidth(s string, width int) string {
	pad := width - lipgloss.Width(s)
	if pad <= 0 {
		return s
	}
	return s + strings.Repeat(" ", pad)
}
