package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muurk/ippower/internal/device"
)

// Printer writes styled one-shot output for CLI commands.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{
		out:   w,
		width: GetTerminalWidth(),
	}
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// PrintSockets prints the socket table in a box titled with the device status
func (p *Printer) PrintSockets(title string, sockets []device.SocketRecord) {
	content := lipgloss.JoinVertical(lipgloss.Left,
		TitleStyle.Render(title),
		"",
		RenderSocketTable(sockets, -1),
	)
	p.Println(BoxStyle(p.width, PrimaryColor).Render(content))
}

// PrintSuccess prints a success result box. keys fixes the detail order.
func (p *Printer) PrintSuccess(title string, keys []string, details map[string]string) {
	lines := []string{SuccessTitleStyle.Render(SuccessMarker + "  " + title)}
	for _, k := range keys {
		lines = append(lines, ResultKeyStyle.Render(k+":")+" "+ResultValueStyle.Render(details[k]))
	}
	p.Println(BoxStyle(p.width, SuccessColor).Render(strings.Join(lines, "\n")))
}

// PrintError prints an error result box with the troubleshooting hint for err
func (p *Printer) PrintError(title string, err error) {
	lines := []string{ErrorTitleStyle.Render(FailureMarker + "  " + title)}
	if err != nil {
		lines = append(lines,
			"",
			ErrorMessageStyle.Render(device.ShortMessage(err)),
			"",
			HintStyle.Render(device.TroubleshootingHint(err)),
		)
	}
	p.Println(BoxStyle(p.width, ErrorColor).Render(strings.Join(lines, "\n")))
}

// RenderPower renders a power state with its color
func RenderPower(p device.PowerState) string {
	switch p {
	case device.PowerOn:
		return PowerOnStyle.Render("● ON")
	case device.PowerOff:
		return PowerOffStyle.Render("○ OFF")
	default:
		return PowerUnsetStyle.Render("? UNKNOWN")
	}
}

// RenderSocketTable renders one row per socket. The row at index selected
// is highlighted; pass -1 for no selection.
func RenderSocketTable(sockets []device.SocketRecord, selected int) string {
	idCol := lipgloss.NewStyle().Width(4)
	nameCol := lipgloss.NewStyle().Width(20)

	rows := []string{
		ColumnHeaderStyle.Render("  " + idCol.Render("#") + nameCol.Render("NAME") + "POWER"),
	}
	for i, rec := range sockets {
		marker := "  "
		name := rec.Name
		if i == selected {
			marker = SelectedRowStyle.Render(CursorMarker + " ")
			name = SelectedRowStyle.Render(name)
		}
		rows = append(rows, marker+idCol.Render(fmt.Sprintf("%d", int(rec.ID)))+nameCol.Render(name)+RenderPower(rec.Power))
	}
	return strings.Join(rows, "\n")
}
