// Package indicator prints status-tagged progress lines for the setup pipeline.
package indicator

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/justinbetabox/robot-hat/internal/errcode"
	"github.com/justinbetabox/robot-hat/internal/fsm"
)

const (
	tagOK   = "[ OK ]"
	tagWarn = "[WARN]"
	tagFail = "[FAIL]"
	tagInfo = "[INFO]"

	indent = "       "
)

// Printer renders one line per event. Colors are dropped when w is not a terminal.
type Printer struct {
	mu       sync.Mutex
	w        io.Writer
	messages messages

	ok   lipgloss.Style
	warn lipgloss.Style
	fail lipgloss.Style
	info lipgloss.Style
	dim  lipgloss.Style
}

// NewPrinter binds a lipgloss renderer to w.
func NewPrinter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:        w,
		messages: defaultMessages,
		ok:       r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		warn:     r.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
		fail:     r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		info:     r.NewStyle().Foreground(lipgloss.Color("6")),
		dim:      r.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// Stage prints the state the pipeline just reached.
func (p *Printer) Stage(state fsm.State, detail string) {
	label := p.messages.stage(state)
	if detail != "" {
		label += ": " + detail
	}
	p.line(p.ok.Render(tagOK), label)
}

// Info prints a neutral line, used for the detection report.
func (p *Printer) Info(detail string) {
	p.line(p.info.Render(tagInfo), p.dim.Render(detail))
}

// Warn prints a soft failure.
func (p *Printer) Warn(detail string) {
	p.line(p.warn.Render(tagWarn), detail)
}

// Fail prints the failure category and remediation hint, then the underlying error.
func (p *Printer) Fail(state fsm.State, err error) {
	code := errcode.Of(err)
	p.line(p.fail.Render(tagFail), fmt.Sprintf("%s %s: %s", p.messages.stoppedAt, p.messages.stage(state), errcode.Category(code)))
	p.line(indent, fmt.Sprintf("%s: %s", p.messages.hint, errcode.Hint(code)))
	if err != nil {
		p.line(indent, p.dim.Render(err.Error()))
	}
}

// Done prints the closing line of a completed run.
func (p *Printer) Done(needsReboot bool) {
	if needsReboot {
		p.line(p.warn.Render(tagWarn), p.messages.rebootNotice)
		return
	}
	p.line(p.ok.Render(tagOK), p.messages.done)
}

func (p *Printer) line(tag, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.w, "%s %s\n", tag, text)
}
