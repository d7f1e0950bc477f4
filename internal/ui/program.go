package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/muurk/alpacanet/internal/history"
	"github.com/muurk/alpacanet/internal/registry"
)

// Printer provides methods for printing UI components to a writer.
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

// SetWidth overrides the detected terminal width.
func (p *Printer) SetWidth(width int) *Printer {
	p.width = width
	return p
}

// Width returns the current terminal width used by this printer
func (p *Printer) Width() int {
	return p.width
}

// Print writes content to the output
func (p *Printer) Print(content string) {
	_, _ = fmt.Fprint(p.out, content)
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// PrintLines writes multiple lines
func (p *Printer) PrintLines(lines ...string) {
	for _, line := range lines {
		_, _ = fmt.Fprintln(p.out, line)
	}
}

// PrintHeader prints a command header box
func (p *Printer) PrintHeader(title, command string, params ...Param) {
	p.Println(NewHeader(title, command, params...).SetWidth(p.width).Render())
}

// PrintSuccess prints a success result box
func (p *Printer) PrintSuccess(title string, details ...Param) {
	p.Println(NewSuccessResult(title, details...).SetWidth(p.width).Render())
}

// PrintWarning prints a warning result box
func (p *Printer) PrintWarning(title string, details ...Param) {
	p.Println(NewWarningResult(title, details...).SetWidth(p.width).Render())
}

// PrintError prints an error result box with troubleshooting tips
func (p *Printer) PrintError(title string, err error, troubleshooting []string) {
	p.Println(NewFailureResult(title, err, troubleshooting).SetWidth(p.width).Render())
}

// PrintResult prints a result box built by the caller.
func (p *Printer) PrintResult(r *Result) {
	p.Println(r.SetWidth(p.width).Render())
}

// PrintSnapshot prints the unit table and, when there are any, the device
// and software tables of snap.
func (p *Printer) PrintSnapshot(snap registry.Snapshot) {
	if len(snap.Units) == 0 {
		return
	}
	p.Println(RenderUnits(snap.Units, p.width))
	if len(snap.Devices) > 0 {
		p.Println(RenderDevices(snap.Devices, p.width))
	}
	if sw := RenderSoftware(snap.Units, p.width); sw != "" {
		p.Println(sw)
	}
}

// PrintHistory prints stored units and devices.
func (p *Printer) PrintHistory(units []history.UnitRecord, devices []history.DeviceRecord) {
	p.Println(RenderHistoryUnits(units, p.width))
	if len(devices) > 0 {
		p.Println(RenderHistoryDevices(devices, p.width))
	}
}
