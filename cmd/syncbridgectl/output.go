package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/macjediwizard/syncbridge/internal/console"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))

	variantStyles = map[console.Variant]lipgloss.Style{
		console.VariantSuccess: successStyle,
		console.VariantError:   errorStyle,
		console.VariantWarning: warningStyle,
		console.VariantInfo:    infoStyle,
	}

	classStyles = map[string]lipgloss.Style{
		"success": successStyle,
		"error":   errorStyle,
		"weak":    subtleStyle,
	}
)

// newToaster prints toasts to w as styled lines.
func newToaster(w io.Writer) console.ToasterFunc {
	return func(toast console.Toast) {
		style, ok := variantStyles[toast.Variant]
		if !ok {
			style = lipgloss.NewStyle()
		}
		fmt.Fprintln(w, style.Render(toast.Title+": "+toast.Message))
	}
}

// formatClass renders value in the style of a display class.
func formatClass(class, value string) string {
	style, ok := classStyles[class]
	if !ok {
		return value
	}
	return style.Render(value)
}

// promptConfirmer asks yes/no questions on the terminal.
type promptConfirmer struct {
	assumeYes bool
}

func (p *promptConfirmer) Confirm(ctx context.Context, title, message string) (bool, error) {
	if p.assumeYes {
		return true, nil
	}

	var ok bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(title).
			Description(message).
			Affirmative("Yes").
			Negative("No").
			Value(&ok),
	)).WithTheme(huh.ThemeDracula())

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

// table writes left-aligned columns. Cells may carry styling; widths are
// measured on the visible text.
type table struct {
	headers []string
	rows    [][]string
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) write(w io.Writer) {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	line := func(cells []string, style *lipgloss.Style) {
		parts := make([]string, 0, len(cells))
		for i, cell := range cells {
			if style != nil {
				cell = style.Render(cell)
			}
			if i < len(cells)-1 && i < len(widths) {
				cell += strings.Repeat(" ", max(0, widths[i]-lipgloss.Width(cell)))
			}
			parts = append(parts, cell)
		}
		fmt.Fprintln(w, strings.Join(parts, "  "))
	}

	line(t.headers, &titleStyle)
	for _, row := range t.rows {
		line(row, nil)
	}
}

// field prints a labelled value, used by the detail views.
func field(w io.Writer, label, value string) {
	fmt.Fprintf(w, "%s %s\n", titleStyle.Render(label+":"), value)
}
